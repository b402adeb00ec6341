package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/observability"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
	"github.com/odyssey-erp/slotbook/internal/resources"
	"github.com/odyssey-erp/slotbook/jobs"
)

// HealthCheck probes one backing service for /readyz.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	MatrixHandler    *matrix.Handler
	ResourcesHandler *resources.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
	Checks           map[string]HealthCheck
}

// NewRouter constructs the chi.Router with slotbook defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	if !InTestMode() {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(params.Logger, params.Checks))

	r.Route("/api", func(r chi.Router) {
		if params.MatrixHandler != nil {
			params.MatrixHandler.MountRoutes(r)
		}
		if params.ResourcesHandler != nil {
			params.ResourcesHandler.MountRoutes(r)
		}
	})
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

func readiness(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		out := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("readiness check failed", slog.String("check", name), slog.Any("error", err))
				out[name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			out[name] = "ok"
		}
		httpx.JSON(w, status, out)
	}
}
