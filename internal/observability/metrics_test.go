package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	jobmetrics "github.com/odyssey-erp/slotbook/internal/jobs"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	return rr.Body.String()
}

func TestMetricsHandlerExposesJobMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("matrix:cell:update").End(nil)

	body := scrape(t, metrics)
	if !strings.Contains(body, `slotbook_jobs_total{job="matrix:cell:update",status="success"} 1`) {
		t.Fatalf("expected job counter, got: %s", body)
	}
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected status %d, got %d", http.StatusTeapot, rr.Code)
	}

	body := scrape(t, metrics)
	if !strings.Contains(body, "slotbook_http_requests_total{code=\"418\",route=\"/test\"} 1") {
		t.Fatalf("expected metrics to record request, got: %s", body)
	}
	if !strings.Contains(body, "slotbook_http_request_duration_seconds_bucket{route=\"/test\"") {
		t.Fatalf("expected duration histogram to be present, got: %s", body)
	}
}

func TestObserveCellUpdate(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveCellUpdate("applied")
	metrics.ObserveCellUpdate("applied")
	metrics.ObserveCellUpdate("deferred")

	body := scrape(t, metrics)
	if !strings.Contains(body, `slotbook_cell_updates_total{result="applied"} 2`) {
		t.Fatalf("expected applied counter, got: %s", body)
	}
	if !strings.Contains(body, `slotbook_cell_updates_total{result="deferred"} 1`) {
		t.Fatalf("expected deferred counter, got: %s", body)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveCellUpdate("applied")
}
