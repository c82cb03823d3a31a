package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/domain/mocks"
)

func TestAdminEventsUseCase(t *testing.T) {
	ctx := context.Background()
	ticketed := eventRow("t1", "alice", "Update user")
	ticketed.TicketExists = domain.FlagTrue
	ticketed.TicketKey = "SEC-1"
	ticketed.Processed = domain.Flag("YES")
	log := &mocks.MockEventLog{Rows: []domain.EventRow{ticketed, eventRow("t2", "bob", "Update user")}}
	uc := NewAdminEventsUseCase(log)

	t.Run("Stats", func(t *testing.T) {
		stats, err := uc.Stats(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if stats != (domain.LogStats{Total: 2, Unprocessed: 1, Ticketed: 1}) {
			t.Errorf("unexpected stats %+v", stats)
		}
	})

	t.Run("List", func(t *testing.T) {
		all, err := uc.ListEvents(ctx, false)
		if err != nil || len(all) != 2 {
			t.Fatalf("expected 2 rows, got %d %v", len(all), err)
		}
		pending, err := uc.ListEvents(ctx, true)
		if err != nil || len(pending) != 1 || pending[0].Position != 1 {
			t.Fatalf("expected only row 1, got %+v %v", pending, err)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		n, err := uc.ResetProcessed(ctx, ticketed.Key())
		if err != nil || n != 1 {
			t.Fatalf("expected 1 row reset, got %d %v", n, err)
		}
		if log.Snapshot()[0].Processed.Bool() {
			t.Error("expected the row to be unprocessed")
		}
		if log.Snapshot()[0].TicketKey != "SEC-1" {
			t.Error("expected the ticket key to survive a reset")
		}
	})

	t.Run("Reset Requires Key", func(t *testing.T) {
		if _, err := uc.ResetProcessed(ctx, domain.NaturalKey{UserPrincipalName: "alice"}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})
}
