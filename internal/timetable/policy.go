package timetable

import (
	"fmt"

	"github.com/noah-isme/lab-timetable-api/internal/models"
)

// Placement is a requested session position.
type Placement struct {
	Weekday     int `json:"weekday"`
	StartPeriod int `json:"start_period"`
	Duration    int `json:"duration"`
}

// End is the last period the placement covers.
func (p Placement) End() int {
	return p.StartPeriod + p.Duration - 1
}

// Validate checks coordinate ranges. Duration overflow is not an error; it is clamped.
func (p Placement) Validate() error {
	switch {
	case !ValidWeekday(p.Weekday):
		return fmt.Errorf("weekday %d must be between 1 and %d", p.Weekday, DaysPerWeek)
	case !ValidPeriod(p.StartPeriod):
		return fmt.Errorf("start period %d must be between 1 and %d", p.StartPeriod, PeriodsPerDay)
	case p.Duration < 1:
		return fmt.Errorf("duration %d must be at least 1", p.Duration)
	}
	return nil
}

// ClampWarning notes that a duration was truncated at the end of the day.
type ClampWarning struct {
	StartPeriod int `json:"start_period"`
	Requested   int `json:"requested"`
	Clamped     int `json:"clamped"`
}

// Warning converts the notice into the shared warning shape.
func (w ClampWarning) Warning(weekday int) models.Warning {
	return models.Warning{
		Kind:    models.WarningClamp,
		Message: fmt.Sprintf("duration %d from period %d exceeds the day; clamped to %d", w.Requested, w.StartPeriod, w.Clamped),
		Weekday: weekday,
		Period:  w.StartPeriod,
	}
}

// Clamp truncates duration so start+duration-1 never passes the last period.
func Clamp(start, duration int) (int, *ClampWarning) {
	limit := PeriodsPerDay - start + 1
	if duration <= limit {
		return duration, nil
	}
	return limit, &ClampWarning{StartPeriod: start, Requested: duration, Clamped: limit}
}

// PlacementResult is the outcome of EvaluatePlacement. Placement holds the
// effective (clamped) target.
type PlacementResult struct {
	OK         bool            `json:"ok"`
	Placement  Placement       `json:"placement"`
	Clamp      *ClampWarning   `json:"clamp,omitempty"`
	Conflict   *models.Session `json:"conflict,omitempty"`
	ConflictAt Coord           `json:"conflict_at"`
}

// ConflictError builds the domain error for a rejected placement.
func (r PlacementResult) ConflictError() *models.SessionConflictError {
	if r.OK {
		return nil
	}
	return &models.SessionConflictError{
		Weekday:     r.Placement.Weekday,
		StartPeriod: r.Placement.StartPeriod,
		Duration:    r.Placement.Duration,
		Conflict:    r.Conflict,
	}
}

// EvaluatePlacement clamps target to the day and checks every covered cell.
// A cell held by a session other than excludingID is a conflict; the first one
// found (lowest period) is reported. Zero excludingID excludes nothing.
func EvaluatePlacement(g *Grid, target Placement, excludingID int64) (PlacementResult, error) {
	if err := target.Validate(); err != nil {
		return PlacementResult{}, err
	}
	duration, warning := Clamp(target.StartPeriod, target.Duration)
	effective := target
	effective.Duration = duration
	result := PlacementResult{OK: true, Placement: effective, Clamp: warning}

	for p := effective.StartPeriod; p <= effective.End(); p++ {
		occupant := g.Occupant(effective.Weekday, p)
		if occupant == nil {
			continue
		}
		if excludingID != 0 && occupant.ID == excludingID {
			continue
		}
		result.OK = false
		result.Conflict = occupant
		result.ConflictAt = Coord{Weekday: effective.Weekday, Period: p}
		return result, nil
	}
	return result, nil
}
