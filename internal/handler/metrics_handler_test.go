package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lab-timetable-api/internal/service"
)

type pingerStub struct{ err error }

func (p pingerStub) PingContext(context.Context) error { return p.err }

func serveMetrics(h *MetricsHandler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", h.Prometheus)
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestMetricsHandlerReady(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveMetrics(NewMetricsHandler(nil, pingerStub{}), "/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serveMetrics(NewMetricsHandler(nil, pingerStub{err: errors.New("down")}), "/ready").Code)
	assert.Equal(t, http.StatusOK, serveMetrics(NewMetricsHandler(nil, nil), "/health").Code)
}

func TestMetricsHandlerPrometheus(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.RecordDryRunRejected()

	w := serveMetrics(NewMetricsHandler(metrics, nil), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "dry_run_rejected")

	assert.Equal(t, http.StatusServiceUnavailable, serveMetrics(NewMetricsHandler(nil, nil), "/metrics").Code)
}
