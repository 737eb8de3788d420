package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

func TestLabServiceCreateAndUpdate(t *testing.T) {
	repo := newLabRepoStub()
	svc := NewLabService(repo, nil, nil)

	lab, err := svc.Create(context.Background(), LabRequest{Name: "  Optics Lab ", Capacity: 24})
	require.NoError(t, err)
	assert.Equal(t, "Optics Lab", lab.Name)
	assert.Equal(t, int64(100), lab.ID)

	updated, err := svc.Update(context.Background(), lab.ID, LabRequest{Name: "Optics Lab", Capacity: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, updated.Capacity)
	assert.Equal(t, 1, repo.updated)
}

func TestLabServiceValidation(t *testing.T) {
	svc := NewLabService(newLabRepoStub(), nil, nil)

	_, err := svc.Create(context.Background(), LabRequest{Name: "", Capacity: 10})
	require.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), LabRequest{Name: "Lab", Capacity: 0})
	require.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestLabServiceNotFound(t *testing.T) {
	svc := NewLabService(newLabRepoStub(models.Lab{ID: 1, Name: "A", Capacity: 1}), nil, nil)

	_, err := svc.Get(context.Background(), 2)
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Update(context.Background(), 2, LabRequest{Name: "B", Capacity: 3})
	require.ErrorIs(t, err, appErrors.ErrNotFound)

	require.ErrorIs(t, svc.Delete(context.Background(), 2), appErrors.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), 1))
}

func TestLabServiceListPagination(t *testing.T) {
	svc := NewLabService(newLabRepoStub(models.Lab{ID: 1, Name: "A", Capacity: 1}), nil, nil)

	labs, pagination, err := svc.List(context.Background(), models.LabFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, labs, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 20, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
