package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
	"github.com/noah-isme/lab-timetable-api/pkg/response"
)

type labService interface {
	List(ctx context.Context, filter models.LabFilter) ([]models.Lab, *models.Pagination, error)
	Get(ctx context.Context, id int64) (*models.Lab, error)
	Create(ctx context.Context, req service.LabRequest) (*models.Lab, error)
	Update(ctx context.Context, id int64, req service.LabRequest) (*models.Lab, error)
	Delete(ctx context.Context, id int64) error
}

// LabHandler exposes lab management endpoints.
type LabHandler struct {
	service labService
}

// NewLabHandler builds a new handler.
func NewLabHandler(service labService) *LabHandler {
	return &LabHandler{service: service}
}

// List godoc
// @Summary List labs
// @Tags Labs
// @Produce json
// @Param search query string false "Name filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /labs [get]
func (h *LabHandler) List(c *gin.Context) {
	filter := models.LabFilter{
		Search:   c.Query("search"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "pageSize", 20),
	}
	labs, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, labs, pagination)
}

// Get godoc
// @Summary Get lab detail
// @Tags Labs
// @Produce json
// @Param id path int true "Lab ID"
// @Success 200 {object} response.Envelope
// @Router /labs/{id} [get]
func (h *LabHandler) Get(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	lab, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lab, nil)
}

// Create godoc
// @Summary Create lab
// @Tags Labs
// @Accept json
// @Produce json
// @Param payload body service.LabRequest true "Lab payload"
// @Success 201 {object} response.Envelope
// @Router /labs [post]
func (h *LabHandler) Create(c *gin.Context) {
	var req service.LabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lab payload"))
		return
	}
	lab, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lab)
}

// Update godoc
// @Summary Update lab
// @Tags Labs
// @Accept json
// @Produce json
// @Param id path int true "Lab ID"
// @Param payload body service.LabRequest true "Lab payload"
// @Success 200 {object} response.Envelope
// @Router /labs/{id} [put]
func (h *LabHandler) Update(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.LabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid lab payload"))
		return
	}
	lab, err := h.service.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lab, nil)
}

// Delete godoc
// @Summary Delete lab
// @Tags Labs
// @Param id path int true "Lab ID"
// @Success 204
// @Router /labs/{id} [delete]
func (h *LabHandler) Delete(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
