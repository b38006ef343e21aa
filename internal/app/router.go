package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gearbox-erp/gearbox/internal/clients"
	"github.com/gearbox-erp/gearbox/internal/observability"
	"github.com/gearbox-erp/gearbox/internal/parts"
	"github.com/gearbox-erp/gearbox/internal/quotes"
	"github.com/gearbox-erp/gearbox/internal/workorders"
	"github.com/gearbox-erp/gearbox/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	ClientsHandler    *clients.Handler
	PartsHandler      *parts.Handler
	QuotesHandler     *quotes.Handler
	WorkOrdersHandler *workorders.Handler
	JobHandler        *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.ClientsHandler != nil {
		params.ClientsHandler.MountRoutes(r)
	}
	if params.PartsHandler != nil {
		params.PartsHandler.MountRoutes(r)
	}
	if params.QuotesHandler != nil {
		params.QuotesHandler.MountRoutes(r)
	}
	if params.WorkOrdersHandler != nil {
		params.WorkOrdersHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
