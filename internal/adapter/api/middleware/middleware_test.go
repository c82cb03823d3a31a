package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubKeys struct {
	valid map[string]bool
	err   error
}

func (s stubKeys) IsValid(ctx context.Context, key string) (bool, error) {
	return s.valid[key], s.err
}

func TestAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })

	valid := stubKeys{valid: map[string]bool{"k": true}}

	tests := []struct {
		name           string
		method         string
		target         string
		key            string
		repo           stubKeys
		expectedStatus int
	}{
		{"Missing Key", http.MethodGet, "/admin/events", "", stubKeys{}, http.StatusUnauthorized},
		{"Invalid Key", http.MethodGet, "/admin/events", "nope", valid, http.StatusUnauthorized},
		{"Valid Key", http.MethodGet, "/admin/events", "k", valid, http.StatusTeapot},
		{"Lookup Error", http.MethodGet, "/admin/events", "k", stubKeys{err: errors.New("db down")}, http.StatusInternalServerError},
		{"Query Key On GET", http.MethodGet, "/admin/outcomes/stream?api_key=k", "", valid, http.StatusTeapot},
		{"Query Key Ignored On POST", http.MethodPost, "/ingest?api_key=k", "", valid, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rr := httptest.NewRecorder()
			Auth(tt.repo, logger)(ok).ServeHTTP(rr, req)
			if rr.Code != tt.expectedStatus {
				t.Errorf("expected %d, got %d", tt.expectedStatus, rr.Code)
			}
		})
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/events/stats", nil))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "status=503", "path=/admin/events/stats"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log line to contain %q, got %q", want, out)
		}
	}
}
