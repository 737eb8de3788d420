package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

type labRepository interface {
	List(ctx context.Context, filter models.LabFilter) ([]models.Lab, int, error)
	FindByID(ctx context.Context, id int64) (*models.Lab, error)
	Create(ctx context.Context, lab *models.Lab) error
	Update(ctx context.Context, lab *models.Lab) error
	Delete(ctx context.Context, id int64) error
}

// LabRequest captures fields for creating or updating labs.
type LabRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Capacity int    `json:"capacity" validate:"required,min=1,max=1000"`
}

// LabService handles lab workflows.
type LabService struct {
	repo      labRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLabService creates a new lab service.
func NewLabService(repo labRepository, validate *validator.Validate, logger *zap.Logger) *LabService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabService{repo: repo, validator: validate, logger: logger}
}

// List returns paginated labs.
func (s *LabService) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, *models.Pagination, error) {
	labs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list labs")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return labs, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a lab by id.
func (s *LabService) Get(ctx context.Context, id int64) (*models.Lab, error) {
	lab, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, labError(err, "failed to load lab")
	}
	return lab, nil
}

// Create adds a lab.
func (s *LabService) Create(ctx context.Context, req LabRequest) (*models.Lab, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}
	lab := &models.Lab{Name: strings.TrimSpace(req.Name), Capacity: req.Capacity}
	if err := s.repo.Create(ctx, lab); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lab")
	}
	s.logger.Info("lab created", zap.Int64("lab_id", lab.ID), zap.Int("capacity", lab.Capacity))
	return lab, nil
}

// Update modifies a lab. A capacity change re-derives makeup eligibility on the next week fetch.
func (s *LabService) Update(ctx context.Context, id int64, req LabRequest) (*models.Lab, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lab payload")
	}
	lab, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, labError(err, "failed to load lab")
	}
	lab.Name = strings.TrimSpace(req.Name)
	lab.Capacity = req.Capacity
	if err := s.repo.Update(ctx, lab); err != nil {
		return nil, labError(err, "failed to update lab")
	}
	return lab, nil
}

// Delete removes a lab and its sessions.
func (s *LabService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return labError(err, "failed to delete lab")
	}
	s.logger.Info("lab deleted", zap.Int64("lab_id", id))
	return nil
}

func labError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "lab not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
