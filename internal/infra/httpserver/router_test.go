package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/compliance-pulse/internal/logging"
	"github.com/bryanwahyu/compliance-pulse/internal/metrics"
	"github.com/bryanwahyu/compliance-pulse/internal/middleware"
)

func newTestRouter(t *testing.T, dbErr error, token string) (http.Handler, *middleware.Readiness) {
	t.Helper()
	reg := prometheus.NewRegistry()
	ready := &middleware.Readiness{}
	h := NewRouter(Options{
		Logger:   logging.Discard(),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Checkers: map[string]middleware.HealthChecker{
			"database": middleware.CheckFunc(func(context.Context) error { return dbErr }),
		},
		Readiness: ready,
		Token:     token,
	})
	return h, ready
}

func get(h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthReportsCheckerState(t *testing.T) {
	h, _ := newTestRouter(t, nil, "")
	rec := get(h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body middleware.HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "healthy", body.Checks["database"].Status)

	h, _ = newTestRouter(t, errors.New("connection refused"), "")
	rec = get(h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestReadyFollowsReadiness(t *testing.T) {
	h, ready := newTestRouter(t, nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, get(h, "/ready").Code)
	ready.Set(true)
	assert.Equal(t, http.StatusOK, get(h, "/ready").Code)
	assert.Equal(t, "ok", get(h, "/live").Body.String())
}

func TestMetricsExposesHTTPCounters(t *testing.T) {
	h, _ := newTestRouter(t, nil, "")
	get(h, "/live")
	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pulse_http_requests_total{code="200",method="GET",route="/live"} 1`)
}

func TestTokenGuardsHealthButNotProbes(t *testing.T) {
	h, _ := newTestRouter(t, nil, "s3cret")
	assert.Equal(t, http.StatusUnauthorized, get(h, "/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(h, "/metrics", "Authorization", "Bearer nope").Code)
	assert.Equal(t, http.StatusOK, get(h, "/health", "Authorization", "Bearer s3cret").Code)
	assert.Equal(t, http.StatusOK, get(h, "/live").Code)
}
