package dto

import (
	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
)

// CellRef addresses a grid cell in request payloads.
type CellRef struct {
	Weekday int `json:"weekday" validate:"min=1,max=7"`
	Period  int `json:"period" validate:"min=1,max=8"`
}

// ReconcileCellRequest is the body of a reconcile call. Current is omitted
// when the edit was opened on an empty cell.
type ReconcileCellRequest struct {
	Current          *CellRef           `json:"current,omitempty"`
	Desired          models.DesiredEdit `json:"desired"`
	ConfirmOverwrite bool               `json:"confirm_overwrite"`
}

// WeekCell is one rendered grid position.
type WeekCell struct {
	Period     int                     `json:"period"`
	Kind       string                  `json:"kind"`
	Session    *models.Session         `json:"session,omitempty"`
	Head       *timetable.Coord        `json:"head,omitempty"`
	FragmentID int64                   `json:"fragment_id,omitempty"`
	Orphan     bool                    `json:"orphan,omitempty"`
	Status     timetable.SessionStatus `json:"status,omitempty"`
}

// WeekDay is one column of the rendered grid.
type WeekDay struct {
	Date    string             `json:"date"`
	Weekday int                `json:"weekday"`
	Periods []timetable.Period `json:"periods"`
	Cells   []WeekCell         `json:"cells"`
}

// WeekResponse is the rendered week of a lab.
type WeekResponse struct {
	LabID    int64     `json:"lab_id"`
	LabName  string    `json:"lab_name"`
	Capacity int       `json:"capacity"`
	Monday   string    `json:"monday"`
	Days     []WeekDay `json:"days"`
}

// PeriodTable lists the period windows of a date.
type PeriodTable struct {
	Date    string             `json:"date"`
	Summer  bool               `json:"summer"`
	Periods []timetable.Period `json:"periods"`
}
