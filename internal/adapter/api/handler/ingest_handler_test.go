package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

// MockIngester is a mock implementation of EventIngester.
type MockIngester struct {
	IngestFunc func(ctx context.Context, events []domain.AuditEvent) (usecase.IngestResult, error)
	Received   []domain.AuditEvent
}

func (m *MockIngester) IngestEvents(ctx context.Context, events []domain.AuditEvent) (usecase.IngestResult, error) {
	m.Received = append(m.Received, events...)
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, events)
	}
	return usecase.IngestResult{Fetched: len(events), Appended: len(events)}, nil
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		mockIngestErr  error
		maxSize        int64
		expectedStatus int
		expectedEvents int
	}{
		{
			name:           "Valid Single JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"activityDateTime": "t1", "result": "success"}`,
			expectedStatus: http.StatusAccepted,
			expectedEvents: 1,
		},
		{
			name:           "Valid JSON Array",
			method:         http.MethodPost,
			contentType:    "application/json; charset=utf-8",
			body:           ` [{"activityDateTime": "t1"}, {"activityDateTime": "t2"}]`,
			expectedStatus: http.StatusAccepted,
			expectedEvents: 2,
		},
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"activityDateTime": "t1"}` + "\n\n" + `{"activityDateTime": "t2"}`,
			expectedStatus: http.StatusAccepted,
			expectedEvents: 2,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           `hello`,
			expectedStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:           "Bad JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"activityDateTime": "t1"`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Bad NDJSON Line Rejects Batch",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"activityDateTime": "t1"}` + "\n" + `{"activityDateTime": "bad`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "Storage Unavailable",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"activityDateTime": "t1"}`,
			mockIngestErr:  fmt.Errorf("append events: %w", domain.ErrStorageUnavailable),
			expectedStatus: http.StatusServiceUnavailable,
			expectedEvents: 1,
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"activityDateTime": "this payload is definitely too large for the test limit"}`,
			maxSize:        50,
			expectedStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUseCase := &MockIngester{
				IngestFunc: func(ctx context.Context, events []domain.AuditEvent) (usecase.IngestResult, error) {
					return usecase.IngestResult{Fetched: len(events), Appended: len(events)}, tt.mockIngestErr
				},
			}
			maxSize := tt.maxSize
			if maxSize == 0 {
				maxSize = 1024
			}

			handler := NewIngestHandler(mockUseCase, logger, maxSize)

			req := httptest.NewRequest(tt.method, "/ingest", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if len(mockUseCase.Received) != tt.expectedEvents {
				t.Errorf("expected %d events passed to the use case, got %d", tt.expectedEvents, len(mockUseCase.Received))
			}
			if tt.expectedStatus == http.StatusAccepted {
				var res usecase.IngestResult
				if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil || res.Appended != tt.expectedEvents {
					t.Errorf("unexpected response body %q", rr.Body.String())
				}
			}
		})
	}
}
