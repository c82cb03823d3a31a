package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const (
	seenKeyPrefix   = "audit_ticketer:seen:"
	ticketKeyPrefix = "audit_ticketer:ticket:"
)

// Keystore implements domain.KeyFilter and domain.CreateGuard with plain Redis keys.
// Seen markers and recorded tickets both expire after ttl.
type Keystore struct {
	client      *redis.Client
	logger      *slog.Logger
	ttl         time.Duration
	isAvailable atomic.Bool
}

// NewKeystore creates a Redis-backed keystore.
func NewKeystore(client *redis.Client, logger *slog.Logger, ttl time.Duration) *Keystore {
	ks := &Keystore{
		client: client,
		logger: logger.With("component", "redis_keystore"),
		ttl:    ttl,
	}
	ks.isAvailable.Store(true)

	if err := client.Ping(context.Background()).Err(); err != nil {
		ks.isAvailable.Store(false)
		ks.logger.Error("Redis is unavailable on startup", "error", err)
	}
	return ks
}

// StartHealthCheck pings Redis every interval and logs connectivity changes until ctx is done.
func (k *Keystore) StartHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Stopping Redis health check")
			return
		case <-ticker.C:
			if err := k.client.Ping(ctx).Err(); err != nil {
				if k.isAvailable.CompareAndSwap(true, false) {
					k.logger.Error("Redis connection lost", "error", err)
				}
			} else if k.isAvailable.CompareAndSwap(false, true) {
				k.logger.Info("Redis connection recovered")
			}
		}
	}
}

// Unseen drops rows whose natural key was marked, and repeats within rows.
func (k *Keystore) Unseen(ctx context.Context, rows []domain.EventRow) ([]domain.EventRow, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	pipe := k.client.Pipeline()
	cmds := make([]*redis.IntCmd, len(rows))
	for i, row := range rows {
		cmds[i] = pipe.Exists(ctx, seenKeyPrefix+row.Key().String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, k.wrap("check seen keys", err)
	}

	batch := make(map[domain.NaturalKey]struct{}, len(rows))
	out := make([]domain.EventRow, 0, len(rows))
	for i, row := range rows {
		if cmds[i].Val() > 0 {
			continue
		}
		if _, dup := batch[row.Key()]; dup {
			continue
		}
		batch[row.Key()] = struct{}{}
		out = append(out, row)
	}
	return out, nil
}

// Mark records the rows' natural keys as appended.
func (k *Keystore) Mark(ctx context.Context, rows []domain.EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	pipe := k.client.Pipeline()
	for _, row := range rows {
		pipe.Set(ctx, seenKeyPrefix+row.Key().String(), 1, k.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return k.wrap("mark seen keys", err)
	}
	return nil
}

// Lookup returns the ticket recorded for key.
func (k *Keystore) Lookup(ctx context.Context, key domain.NaturalKey) (string, bool, error) {
	ticketKey, err := k.client.Get(ctx, ticketKeyPrefix+key.String()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, k.wrap("lookup ticket", err)
	}
	return ticketKey, true, nil
}

// Record stores the ticket created for key. The first recorded ticket wins.
func (k *Keystore) Record(ctx context.Context, key domain.NaturalKey, ticketKey string) error {
	stored, err := k.client.SetNX(ctx, ticketKeyPrefix+key.String(), ticketKey, k.ttl).Result()
	if err != nil {
		return k.wrap("record ticket", err)
	}
	if !stored {
		k.logger.Warn("ticket already recorded for event", "key", key.String(), "ticket_key", ticketKey)
	}
	return nil
}

func (k *Keystore) wrap(op string, err error) error {
	if isNetworkError(err) {
		if k.isAvailable.CompareAndSwap(true, false) {
			k.logger.Error("Redis connection lost", "error", err)
		}
		return fmt.Errorf("redis %s: %w: %w", op, domain.ErrTransientIO, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
