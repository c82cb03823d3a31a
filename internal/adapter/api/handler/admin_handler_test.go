package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/domain/mocks"
	"github.com/V4T54L/audit-ticketer/internal/usecase"
)

func newAdminHandler(log *mocks.MockEventLog) *AdminHandler {
	return NewAdminHandler(usecase.NewAdminEventsUseCase(log), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func sampleLog() *mocks.MockEventLog {
	return &mocks.MockEventLog{Rows: []domain.EventRow{
		{Timestamp: "t1", UserPrincipalName: "alice", Operation: "Add user", TicketExists: domain.FlagTrue, TicketKey: "SEC-1", Processed: domain.FlagTrue},
		{Timestamp: "t2", UserPrincipalName: "bob", Operation: "Add user", TicketExists: domain.FlagFalse, Processed: domain.FlagFalse},
	}}
}

func TestAdminHandler_ListEvents(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedRows   int
	}{
		{"Default Is Unprocessed", "", http.StatusOK, 1},
		{"All", "?state=all", http.StatusOK, 2},
		{"Invalid State", "?state=pending", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newAdminHandler(sampleLog()).ListEvents(rr, httptest.NewRequest(http.MethodGet, "/admin/events"+tt.query, nil))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, rr.Code)
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var rows []domain.StoredRow
			if err := json.Unmarshal(rr.Body.Bytes(), &rows); err != nil {
				t.Fatal(err)
			}
			if len(rows) != tt.expectedRows {
				t.Errorf("expected %d rows, got %d", tt.expectedRows, len(rows))
			}
		})
	}

	t.Run("Storage Failure", func(t *testing.T) {
		log := sampleLog()
		log.ScanErr = domain.ErrStorageUnavailable
		rr := httptest.NewRecorder()
		newAdminHandler(log).ListEvents(rr, httptest.NewRequest(http.MethodGet, "/admin/events", nil))
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rr.Code)
		}
	})
}

func TestAdminHandler_Stats(t *testing.T) {
	rr := httptest.NewRecorder()
	newAdminHandler(sampleLog()).Stats(rr, httptest.NewRequest(http.MethodGet, "/admin/events/stats", nil))

	var stats domain.LogStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats != (domain.LogStats{Total: 2, Unprocessed: 1, Ticketed: 1}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestAdminHandler_ResetProcessed(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedReset  int
	}{
		{"Reset Matching Row", `{"timestamp":"t1","user_principal_name":"alice","operation":"Add user"}`, http.StatusOK, 1},
		{"No Match", `{"timestamp":"t9","user_principal_name":"alice","operation":"Add user"}`, http.StatusOK, 0},
		{"Incomplete Key", `{"user_principal_name":"alice"}`, http.StatusBadRequest, 0},
		{"Unknown Field", `{"timestamp":"t1","operation":"Add user","extra":1}`, http.StatusBadRequest, 0},
		{"Bad JSON", `{`, http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := sampleLog()
			rr := httptest.NewRecorder()
			newAdminHandler(log).ResetProcessed(rr, httptest.NewRequest(http.MethodPost, "/admin/events/reset", strings.NewReader(tt.body)))

			if rr.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, rr.Code, rr.Body.String())
			}
			if tt.expectedStatus != http.StatusOK {
				return
			}
			var body map[string]int
			_ = json.Unmarshal(rr.Body.Bytes(), &body)
			if body["reset"] != tt.expectedReset {
				t.Errorf("expected %d rows reset, got %d", tt.expectedReset, body["reset"])
			}
			if tt.expectedReset == 1 && log.Snapshot()[0].Processed.Bool() {
				t.Error("expected the row to be unprocessed")
			}
		})
	}
}
