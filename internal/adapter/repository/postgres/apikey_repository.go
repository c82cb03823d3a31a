package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
)

// maxCacheEntries bounds the cache; expired entries are swept when it is reached.
const maxCacheEntries = 1024

type cacheEntry struct {
	isValid   bool
	expiresAt time.Time
}

// APIKeyRepository implements domain.APIKeyRepository. Keys are checked against a static
// allow-list first, then against the api_keys table through a TTL cache. db may be nil,
// in which case only the static keys are accepted.
type APIKeyRepository struct {
	db       *sql.DB
	static   map[string]struct{}
	logger   *slog.Logger
	cache    map[string]cacheEntry
	mu       sync.RWMutex
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewAPIKeyRepository creates a new API key repository.
func NewAPIKeyRepository(db *sql.DB, staticKeys []string, logger *slog.Logger, cacheTTL time.Duration, m *metrics.Metrics) *APIKeyRepository {
	static := make(map[string]struct{}, len(staticKeys))
	for _, k := range staticKeys {
		if k != "" {
			static[k] = struct{}{}
		}
	}
	return &APIKeyRepository{
		db:       db,
		static:   static,
		logger:   logger.With("component", "api_key_repository"),
		cache:    make(map[string]cacheEntry),
		cacheTTL: cacheTTL,
		metrics:  m,
		now:      time.Now,
	}
}

// IsValid reports whether key may call the admin API. Lookup errors are not cached.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	if _, ok := r.static[key]; ok {
		return true, nil
	}
	if r.db == nil {
		return false, nil
	}

	r.mu.RLock()
	entry, found := r.cache[key]
	r.mu.RUnlock()
	if found && r.now().Before(entry.expiresAt) {
		if r.metrics != nil {
			r.metrics.APIKeyCacheHits.Inc()
		}
		return entry.isValid, nil
	}
	if r.metrics != nil {
		r.metrics.APIKeyCacheMisses.Inc()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another request may have filled the entry while we waited.
	entry, found = r.cache[key]
	if found && r.now().Before(entry.expiresAt) {
		return entry.isValid, nil
	}

	var isValid bool
	query := `SELECT EXISTS(SELECT 1 FROM api_keys WHERE key = $1 AND is_active = true AND (expires_at IS NULL OR expires_at > NOW()))`
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&isValid); err != nil {
		r.logger.Error("failed to validate API key in database", "error", err)
		return false, fmt.Errorf("validate api key: %w", err)
	}

	if len(r.cache) >= maxCacheEntries {
		r.sweepLocked()
	}
	r.cache[key] = cacheEntry{isValid: isValid, expiresAt: r.now().Add(r.cacheTTL)}
	return isValid, nil
}

// sweepLocked drops expired entries, or all of them if none have expired. Callers hold mu.
func (r *APIKeyRepository) sweepLocked() {
	now := r.now()
	for k, e := range r.cache {
		if !now.Before(e.expiresAt) {
			delete(r.cache, k)
		}
	}
	if len(r.cache) >= maxCacheEntries {
		r.cache = make(map[string]cacheEntry)
	}
}
