package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/audit-ticketer/internal/adapter/api/handler"
	"github.com/V4T54L/audit-ticketer/internal/adapter/api/middleware"
	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

// RouterDeps are the collaborators served by the admin server. Ingester, Broker and Gatherer may be nil.
type RouterDeps struct {
	APIKeys      domain.APIKeyRepository
	Admin        *usecase.AdminEventsUseCase
	Ingester     handler.EventIngester
	Broker       *handler.SSEBroker
	Gatherer     prometheus.Gatherer
	MaxBodyBytes int64
}

// NewRouter creates the operator HTTP server's router.
func NewRouter(deps RouterDeps, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(logger))

	adminHandler := handler.NewAdminHandler(deps.Admin, logger)
	r.Get("/health", adminHandler.HealthCheck)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.APIKeys, logger))

		r.Mount("/admin", NewAdminRouter(deps.Admin, deps.Broker, logger))
		if deps.Ingester != nil {
			r.Method(http.MethodPost, "/ingest", handler.NewIngestHandler(deps.Ingester, logger, deps.MaxBodyBytes))
		}
	})

	return r
}
