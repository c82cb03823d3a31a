package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/audit-ticketer/internal/adapter/api/handler"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

// NewAdminRouter creates the router mounted at /admin. Authentication is applied by NewRouter.
func NewAdminRouter(adminUseCase *usecase.AdminEventsUseCase, broker *handler.SSEBroker, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	adminHandler := handler.NewAdminHandler(adminUseCase, logger)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", adminHandler.ListEvents)
		r.Get("/stats", adminHandler.Stats)
		r.Post("/reset", adminHandler.ResetProcessed)
	})

	// Outcome alerts
	if broker != nil {
		r.Method(http.MethodGet, "/outcomes/stream", broker)
	}

	return r
}
