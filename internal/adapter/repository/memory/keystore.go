package memory

import (
	"context"
	"sync"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// Keystore is an in-process domain.KeyFilter and domain.CreateGuard. Its contents are lost
// on restart unless it is seeded from the event log.
type Keystore struct {
	mu      sync.Mutex
	seen    map[domain.NaturalKey]struct{}
	tickets map[domain.NaturalKey]string
}

func NewKeystore() *Keystore {
	return &Keystore{
		seen:    make(map[domain.NaturalKey]struct{}),
		tickets: make(map[domain.NaturalKey]string),
	}
}

// SeedFromLog marks every stored row as seen and records the tickets they carry.
func (k *Keystore) SeedFromLog(ctx context.Context, log domain.EventLog) (int, error) {
	rows, err := log.ScanAll(ctx)
	if err != nil {
		return 0, err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, row := range rows {
		k.seen[row.Key()] = struct{}{}
		if row.TicketExists.Bool() && row.TicketKey != "" {
			if _, ok := k.tickets[row.Key()]; !ok {
				k.tickets[row.Key()] = row.TicketKey
			}
		}
	}
	return len(rows), nil
}

func (k *Keystore) Unseen(ctx context.Context, rows []domain.EventRow) ([]domain.EventRow, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	batch := make(map[domain.NaturalKey]struct{}, len(rows))
	var out []domain.EventRow
	for _, row := range rows {
		key := row.Key()
		if _, ok := k.seen[key]; ok {
			continue
		}
		if _, ok := batch[key]; ok {
			continue
		}
		batch[key] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

func (k *Keystore) Mark(ctx context.Context, rows []domain.EventRow) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, row := range rows {
		k.seen[row.Key()] = struct{}{}
	}
	return nil
}

func (k *Keystore) Lookup(ctx context.Context, key domain.NaturalKey) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	ticketKey, ok := k.tickets[key]
	return ticketKey, ok, nil
}

// Record keeps the first ticket recorded for key.
func (k *Keystore) Record(ctx context.Context, key domain.NaturalKey, ticketKey string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.tickets[key]; !ok {
		k.tickets[key] = ticketKey
	}
	return nil
}
