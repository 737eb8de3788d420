package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-timetable-api/internal/dto"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	"github.com/noah-isme/lab-timetable-api/pkg/response"
)

type weekService interface {
	Get(ctx context.Context, labID int64, date time.Time) (*service.WeekSnapshot, error)
	Export(ctx context.Context, labID int64, date time.Time, format service.ExportFormat) (*service.ExportFile, error)
}

// WeekHandler serves the weekly grid of a lab.
type WeekHandler struct {
	service weekService
}

// NewWeekHandler constructs the handler.
func NewWeekHandler(service weekService) *WeekHandler {
	return &WeekHandler{service: service}
}

// Get godoc
// @Summary Weekly grid of a lab
// @Tags Weeks
// @Produce json
// @Param id path int true "Lab ID"
// @Param date path string true "Any date inside the week (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /labs/{id}/weeks/{date} [get]
func (h *WeekHandler) Get(c *gin.Context) {
	labID, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	date, err := paramDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	snapshot, err := h.service.Get(c.Request.Context(), labID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, weekResponse(snapshot), nil)
}

// Export godoc
// @Summary Export a lab week
// @Tags Weeks
// @Produce text/csv
// @Produce application/pdf
// @Produce text/calendar
// @Param id path int true "Lab ID"
// @Param date path string true "Any date inside the week (YYYY-MM-DD)"
// @Param format query string false "csv, pdf or ics" default(csv)
// @Success 200 {file} file
// @Router /labs/{id}/weeks/{date}/export [get]
func (h *WeekHandler) Export(c *gin.Context) {
	labID, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	date, err := paramDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportCSV)))
	file, err := h.service.Export(c.Request.Context(), labID, date, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Body)
}

func weekResponse(snapshot *service.WeekSnapshot) dto.WeekResponse {
	g := snapshot.Grid
	out := dto.WeekResponse{
		LabID:    snapshot.Lab.ID,
		LabName:  snapshot.Lab.Name,
		Capacity: snapshot.Lab.Capacity,
		Monday:   g.Monday.Format(dateLayout),
		Days:     make([]dto.WeekDay, 0, timetable.DaysPerWeek),
	}
	for w, row := range g.Rows() {
		weekday := w + 1
		day := dto.WeekDay{
			Date:    g.Date(weekday).Format(dateLayout),
			Weekday: weekday,
			Periods: snapshot.Periods[weekday],
			Cells:   make([]dto.WeekCell, 0, len(row)),
		}
		for p, cell := range row {
			day.Cells = append(day.Cells, weekCell(snapshot, p+1, cell))
		}
		out.Days = append(out.Days, day)
	}
	return out
}

func weekCell(snapshot *service.WeekSnapshot, period int, cell timetable.Cell) dto.WeekCell {
	out := dto.WeekCell{Period: period, FragmentID: cell.FragmentID, Orphan: cell.Orphan}
	switch {
	case cell.Orphan:
		out.Kind = "orphan"
		out.Session = cell.Session
	case cell.Kind == timetable.CellHead:
		out.Kind = "head"
		out.Session = cell.Session
		out.Status = snapshot.Statuses[cell.Session.ID]
	case cell.Kind == timetable.CellContinuation:
		head := cell.Head
		out.Kind = "continuation"
		out.Head = &head
	default:
		out.Kind = "empty"
	}
	return out
}
