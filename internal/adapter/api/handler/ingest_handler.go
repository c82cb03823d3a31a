package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

// EventIngester appends pushed audit events.
type EventIngester interface {
	IngestEvents(ctx context.Context, events []domain.AuditEvent) (usecase.IngestResult, error)
}

// IngestHandler accepts raw audit events pushed by the identity provider or an operator.
type IngestHandler struct {
	useCase      EventIngester
	logger       *slog.Logger
	maxBodyBytes int64
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(uc EventIngester, logger *slog.Logger, maxBodyBytes int64) *IngestHandler {
	return &IngestHandler{
		useCase:      uc,
		logger:       logger.With("component", "ingest_handler"),
		maxBodyBytes: maxBodyBytes,
	}
}

// ServeHTTP decodes the whole request before appending, so a bad line rejects the batch.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	var (
		events []domain.AuditEvent
		err    error
	)
	switch mediaType {
	case "application/json":
		events, err = decodeJSON(r.Body)
	case "application/x-ndjson":
		events, err = decodeNDJSON(r.Body)
	default:
		http.Error(w, "Unsupported Media Type: "+mediaType, http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "http: request body too large", http.StatusRequestEntityTooLarge)
			return
		}
		h.logger.Warn("failed to decode ingest request", "error", err)
		http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.useCase.IngestEvents(r.Context(), events)
	if err != nil {
		h.logger.Error("failed to ingest pushed events", "error", err, "count", len(events))
		if errors.Is(err, domain.ErrStorageUnavailable) {
			http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusAccepted, res)
}

// decodeJSON accepts a single event object or an array of events.
func decodeJSON(body io.Reader) ([]domain.AuditEvent, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var events []domain.AuditEvent
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("failed to decode JSON array: %w", err)
		}
		return events, nil
	}
	var event domain.AuditEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}
	return []domain.AuditEvent{event}, nil
}

func decodeNDJSON(body io.Reader) ([]domain.AuditEvent, error) {
	var events []domain.AuditEvent
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		var event domain.AuditEvent
		if err := json.Unmarshal(b, &event); err != nil {
			return nil, fmt.Errorf("failed to decode NDJSON line %d: %w", line, err)
		}
		events = append(events, event)
	}
	return events, scanner.Err()
}
