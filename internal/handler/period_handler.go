package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-timetable-api/internal/dto"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
	"github.com/noah-isme/lab-timetable-api/pkg/response"
)

// PeriodHandler serves the period calendar.
type PeriodHandler struct {
	location *time.Location
	now      func() time.Time
}

// NewPeriodHandler constructs the handler; dates default to today in loc.
func NewPeriodHandler(loc *time.Location) *PeriodHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &PeriodHandler{location: loc, now: time.Now}
}

// List godoc
// @Summary Period windows of a date
// @Tags Periods
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *PeriodHandler) List(c *gin.Context) {
	date := h.now().In(h.location)
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.ParseInLocation(dateLayout, raw, h.location)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "date must be formatted as YYYY-MM-DD"))
			return
		}
		date = parsed
	}
	response.JSON(c, http.StatusOK, dto.PeriodTable{
		Date:    date.Format(dateLayout),
		Summer:  timetable.IsSummer(date),
		Periods: timetable.PeriodsFor(date),
	}, nil)
}
