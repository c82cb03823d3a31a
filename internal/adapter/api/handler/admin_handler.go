package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

const maxResetBodyBytes = 4096

// AdminHandler handles operator requests against the event log.
type AdminHandler struct {
	uc     *usecase.AdminEventsUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(uc *usecase.AdminEventsUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uc: uc, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, h.logger, http.StatusOK, map[string]string{"status": "ok"})
}

// ListEvents returns stored rows.
// GET /admin/events?state=unprocessed|all
func (h *AdminHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "unprocessed"
	}
	if state != "unprocessed" && state != "all" {
		http.Error(w, "state must be unprocessed or all", http.StatusBadRequest)
		return
	}

	rows, err := h.uc.ListEvents(r.Context(), state == "unprocessed")
	if err != nil {
		h.storageError(w, "failed to list events", err)
		return
	}
	if rows == nil {
		rows = []domain.StoredRow{}
	}
	respondWithJSON(w, h.logger, http.StatusOK, rows)
}

// Stats returns row counts.
// GET /admin/events/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.uc.Stats(r.Context())
	if err != nil {
		h.storageError(w, "failed to compute event stats", err)
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, stats)
}

// ResetProcessed makes rows eligible for dispatch again.
// POST /admin/events/reset {"timestamp": "...", "user_principal_name": "...", "operation": "..."}
func (h *AdminHandler) ResetProcessed(w http.ResponseWriter, r *http.Request) {
	var key domain.NaturalKey
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResetBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&key); err != nil {
		http.Error(w, "Bad Request: invalid natural key", http.StatusBadRequest)
		return
	}

	n, err := h.uc.ResetProcessed(r.Context(), key)
	if errors.Is(err, usecase.ErrInvalidKey) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.storageError(w, "failed to reset processed rows", err)
		return
	}

	h.logger.Info("reset processed rows", "key", key.String(), "rows", n)
	respondWithJSON(w, h.logger, http.StatusOK, map[string]int{"reset": n})
}

func (h *AdminHandler) storageError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, "error", err)
	if errors.Is(err, domain.ErrStorageUnavailable) {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func respondWithJSON(w http.ResponseWriter, logger *slog.Logger, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		logger.Error("failed to marshal JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
