package usecase

import (
	"context"
	"errors"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// ErrInvalidKey is returned when a reset names an incomplete natural key.
var ErrInvalidKey = errors.New("natural key requires timestamp and operation")

// AdminEventsUseCase exposes the event log to operators.
type AdminEventsUseCase struct {
	log domain.EventLog
}

// NewAdminEventsUseCase creates a new AdminEventsUseCase.
func NewAdminEventsUseCase(log domain.EventLog) *AdminEventsUseCase {
	return &AdminEventsUseCase{log: log}
}

func (uc *AdminEventsUseCase) ListEvents(ctx context.Context, onlyUnprocessed bool) ([]domain.StoredRow, error) {
	if onlyUnprocessed {
		return uc.log.ScanUnprocessed(ctx)
	}
	return uc.log.ScanAll(ctx)
}

func (uc *AdminEventsUseCase) Stats(ctx context.Context) (domain.LogStats, error) {
	rows, err := uc.log.ScanAll(ctx)
	if err != nil {
		return domain.LogStats{}, err
	}
	stats := domain.LogStats{Total: len(rows)}
	for _, row := range rows {
		if !row.Processed.Bool() {
			stats.Unprocessed++
		}
		if row.TicketExists.Bool() {
			stats.Ticketed++
		}
	}
	return stats, nil
}

// ResetProcessed makes rows with the given natural key eligible for dispatch again.
func (uc *AdminEventsUseCase) ResetProcessed(ctx context.Context, key domain.NaturalKey) (int, error) {
	if key.Timestamp == "" || key.Operation == "" {
		return 0, ErrInvalidKey
	}
	return uc.log.ResetProcessed(ctx, key)
}
