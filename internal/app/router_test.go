package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/slotbook/internal/observability"
	"github.com/odyssey-erp/slotbook/jobs"
)

func testRouter(t *testing.T, cfg *Config, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	t.Setenv(TestModeEnv, "1")
	RefreshTestMode()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterParams{
		Logger:     logger,
		Config:     cfg,
		JobHandler: jobs.NewHandler(nil, logger),
		Metrics:    observability.NewMetrics(),
		Checks:     checks,
	})
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzAndSecurityHeaders(t *testing.T) {
	h := testRouter(t, &Config{RateLimitPerMinute: 100}, nil)

	rec := get(h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestReadinessReportsFailingChecks(t *testing.T) {
	h := testRouter(t, &Config{RateLimitPerMinute: 100}, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
	})

	rec := get(h, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, body)
}

func TestRateLimitReturnsProblem(t *testing.T) {
	h := testRouter(t, &Config{RateLimitPerMinute: 2}, nil)

	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	require.Equal(t, http.StatusOK, get(h, "/healthz").Code)
	rec := get(h, "/healthz")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestMetricsAndJobsMounted(t *testing.T) {
	h := testRouter(t, &Config{RateLimitPerMinute: 100}, nil)

	require.Equal(t, http.StatusOK, get(h, "/jobs/health").Code)

	rec := get(h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `slotbook_http_requests_total{code="200",route="/jobs/health"} 1`), rec.Body.String())

	require.Equal(t, http.StatusNotFound, get(h, "/api/matrices").Code)
}
