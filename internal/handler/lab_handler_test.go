package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-timetable-api/internal/models"
	"github.com/noah-isme/lab-timetable-api/internal/service"
	appErrors "github.com/noah-isme/lab-timetable-api/pkg/errors"
)

type labServiceMock struct {
	listResp    []models.Lab
	getErr      error
	createResp  *models.Lab
	lastFilter  models.LabFilter
	lastID      int64
	createCalls int
	deleted     bool
}

func (m *labServiceMock) List(ctx context.Context, filter models.LabFilter) ([]models.Lab, *models.Pagination, error) {
	m.lastFilter = filter
	return m.listResp, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: len(m.listResp)}, nil
}

func (m *labServiceMock) Get(ctx context.Context, id int64) (*models.Lab, error) {
	m.lastID = id
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &models.Lab{ID: id, Name: "Physics", Capacity: 40}, nil
}

func (m *labServiceMock) Create(ctx context.Context, req service.LabRequest) (*models.Lab, error) {
	m.createCalls++
	return m.createResp, nil
}

func (m *labServiceMock) Update(ctx context.Context, id int64, req service.LabRequest) (*models.Lab, error) {
	return &models.Lab{ID: id, Name: req.Name, Capacity: req.Capacity}, nil
}

func (m *labServiceMock) Delete(ctx context.Context, id int64) error {
	m.deleted = true
	return nil
}

func TestLabHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &labServiceMock{listResp: []models.Lab{{ID: 1, Name: "Physics", Capacity: 40}}}
	handler := NewLabHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/labs?search=phy&page=2&pageSize=5", nil)

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.LabFilter{Search: "phy", Page: 2, PageSize: 5}, mockSvc.lastFilter)

	var body struct {
		Data       []models.Lab      `json:"data"`
		Pagination models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Data, 1)
	assert.Equal(t, 2, body.Pagination.Page)
}

func TestLabHandlerGetInvalidID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &labServiceMock{}
	handler := NewLabHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/labs/abc", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	handler.Get(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mockSvc.lastID)
}

func TestLabHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewLabHandler(&labServiceMock{getErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodGet, "/labs/7", nil)
	c.Params = gin.Params{{Key: "id", Value: "7"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}

func TestLabHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &labServiceMock{createResp: &models.Lab{ID: 3, Name: "Chem", Capacity: 25}}
	handler := NewLabHandler(mockSvc)

	payload, _ := json.Marshal(service.LabRequest{Name: "Chem", Capacity: 25})
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/labs", bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, mockSvc.createCalls)
}

func TestLabHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &labServiceMock{}
	handler := NewLabHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest(http.MethodPost, "/labs", bytes.NewBufferString(`{"name":`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, mockSvc.createCalls)
}

func TestLabHandlerDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &labServiceMock{}
	router := gin.New()
	router.DELETE("/labs/:id", NewLabHandler(mockSvc).Delete)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodDelete, "/labs/4", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.True(t, mockSvc.deleted)
}
