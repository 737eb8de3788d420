package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
	"github.com/noah-isme/lab-timetable-api/pkg/response"
)

type importService interface {
	Parse(filename string, r io.Reader) (*service.ParsedImport, error)
	Preview(ctx context.Context, labID int64, parsed *service.ParsedImport) (*models.ImportReport, error)
	Commit(ctx context.Context, labID int64, parsed *service.ParsedImport) (*models.ImportReport, error)
}

// ImportHandler accepts timetable spreadsheets.
type ImportHandler struct {
	service  importService
	maxBytes int64
}

// NewImportHandler constructs the handler. maxBytes caps the uploaded file.
func NewImportHandler(service importService, maxBytes int64) *ImportHandler {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &ImportHandler{service: service, maxBytes: maxBytes}
}

// Preview godoc
// @Summary Dry-run a timetable spreadsheet
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Lab ID"
// @Param file formData file true "xlsx or csv timetable"
// @Success 200 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Router /labs/{id}/imports/preview [post]
func (h *ImportHandler) Preview(c *gin.Context) {
	h.run(c, h.service.Preview)
}

// Commit godoc
// @Summary Import a timetable spreadsheet
// @Description The whole file is dry-run first; any row error refuses the import and nothing is written.
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Lab ID"
// @Param file formData file true "xlsx or csv timetable"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /labs/{id}/imports/commit [post]
func (h *ImportHandler) Commit(c *gin.Context) {
	h.run(c, h.service.Commit)
}

type importStep func(ctx context.Context, labID int64, parsed *service.ParsedImport) (*models.ImportReport, error)

func (h *ImportHandler) run(c *gin.Context, step importStep) {
	labID, err := paramID(c, "id")
	if err != nil {
		response.Error(c, err)
		return
	}
	parsed, err := h.parseUpload(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	report, err := step(c.Request.Context(), labID, parsed)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if report.Committed {
		status = http.StatusCreated
	}
	response.JSON(c, status, report, nil)
}

func (h *ImportHandler) parseUpload(c *gin.Context) (*service.ParsedImport, error) {
	// multipart overhead on top of the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes+1<<20)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, h.tooLarge()
		}
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required")
	}
	if header.Size > h.maxBytes {
		return nil, h.tooLarge()
	}
	f, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	defer f.Close()
	return h.service.Parse(header.Filename, f)
}

func (h *ImportHandler) tooLarge() error {
	return appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes", h.maxBytes))
}
