package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/meridian-wms/meridian-wms/internal/masterdata"
	"github.com/meridian-wms/meridian-wms/internal/observability"
	"github.com/meridian-wms/meridian-wms/internal/orderpoint"
	"github.com/meridian-wms/meridian-wms/internal/purchasing"
	"github.com/meridian-wms/meridian-wms/internal/supply"
	"github.com/meridian-wms/meridian-wms/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	OrderPointHandler *orderpoint.Handler
	SupplyHandler     *supply.Handler
	PurchasingHandler *purchasing.Handler
	MasterDataHandler *masterdata.Handler
	JobsHandler       *jobs.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Meridian defaults.
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

	if params.OrderPointHandler != nil {
		params.OrderPointHandler.MountRoutes(r)
	}
	if params.SupplyHandler != nil || params.PurchasingHandler != nil {
		r.Route("/supply", func(r chi.Router) {
			if params.SupplyHandler != nil {
				params.SupplyHandler.MountRoutes(r)
			}
			if params.PurchasingHandler != nil {
				params.PurchasingHandler.MountRoutes(r)
			}
		})
	}
	if params.MasterDataHandler != nil {
		r.Route("/masterdata", params.MasterDataHandler.MountRoutes)
	}
	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
