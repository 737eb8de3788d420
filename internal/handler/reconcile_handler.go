package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-timetable-api/internal/dto"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	"github.com/noah-isme/lab-timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
	"github.com/noah-isme/lab-timetable-api/pkg/response"
)

type reconciler interface {
	Reconcile(ctx context.Context, req service.ReconcileRequest) (*service.ReconcileResult, error)
	Delete(ctx context.Context, req service.DeleteRequest) (*service.ReconcileResult, error)
}

// ReconcileHandler applies cell edits to a lab week.
type ReconcileHandler struct {
	service reconciler
}

// NewReconcileHandler constructs the handler.
func NewReconcileHandler(service reconciler) *ReconcileHandler {
	return &ReconcileHandler{service: service}
}

// Reconcile godoc
// @Summary Create, update or move a session
// @Description Warnings such as clamped durations or partially failed fragment updates are listed in meta.warnings.
// @Tags Weeks
// @Accept json
// @Produce json
// @Param id path int true "Lab ID"
// @Param date path string true "Any date inside the week (YYYY-MM-DD)"
// @Param payload body dto.ReconcileCellRequest true "Edit"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /labs/{id}/weeks/{date}/reconcile [post]
func (h *ReconcileHandler) Reconcile(c *gin.Context) {
	labID, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	anchor, err := paramDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	var body dto.ReconcileCellRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid edit payload"))
		return
	}

	req := service.ReconcileRequest{
		LabID:            labID,
		WeekAnchor:       anchor,
		Desired:          body.Desired,
		ConfirmOverwrite: body.ConfirmOverwrite,
	}
	if body.Current != nil {
		req.Current = &timetable.Coord{Weekday: body.Current.Weekday, Period: body.Current.Period}
	}
	result, err := h.service.Reconcile(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusOK, result, result.Warnings)
}

// DeleteCell godoc
// @Summary Delete the session occupying a cell
// @Tags Weeks
// @Produce json
// @Param id path int true "Lab ID"
// @Param date path string true "Any date inside the week (YYYY-MM-DD)"
// @Param weekday path int true "Weekday 1-7"
// @Param period path int true "Period 1-8"
// @Success 200 {object} response.Envelope
// @Router /labs/{id}/weeks/{date}/cells/{weekday}/{period} [delete]
func (h *ReconcileHandler) DeleteCell(c *gin.Context) {
	labID, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	anchor, err := paramDate(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	weekday, err := paramInt(c, "weekday")
	if err != nil {
		response.Error(c, err)
		return
	}
	period, err := paramInt(c, "period")
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Delete(c.Request.Context(), service.DeleteRequest{
		LabID:      labID,
		WeekAnchor: anchor,
		Weekday:    weekday,
		Period:     period,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, http.StatusOK, result, result.Warnings)
}
