package cache

import (
	"context"
	"time"

	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/pkg/logger"
	"github.com/meridianpe/meridian/backend/pkg/redis"
)

// durableCache is the Postgres side of the store.
type durableCache interface {
	Lookup(ctx context.Context, portfolioHash, startDate, endDate, benchmark string) (*Entry, error)
	Upsert(ctx context.Context, e *Entry) error
}

// fastCache is the redis side of the store.
type fastCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Store layers the optional redis fast path over the durable Postgres
// repository. Reads fall through redis to Postgres; writes are best-effort
// on both sides: a failed cache write is logged and the fresh result is
// still returned to the caller.
type Store struct {
	repo   durableCache
	fast   fastCache
	logger *logger.Logger
}

// NewStore creates a cache store. fast may be backed by a disabled redis
// client, in which case only Postgres is used.
func NewStore(repo *Repository, fast *redis.Cache, log *logger.Logger) *Store {
	return &Store{
		repo:   repo,
		fast:   fast,
		logger: log.WithField("module", "cache"),
	}
}

// Lookup finds a live entry for the key, or nil. Lookup errors degrade to a
// miss: the caller recomputes rather than failing the request.
func (s *Store) Lookup(ctx context.Context, portfolioHash, startDate, endDate, benchmark string) *Entry {
	key := redis.MetricsKey(portfolioHash, startDate, endDate, benchmark)

	var e Entry
	found, err := s.fast.Get(ctx, key, &e)
	if err != nil {
		s.logger.WithError(err).Warn("Redis cache read failed")
	}
	if found {
		// A redis entry written by an older binary survives a schema bump
		// until its TTL runs out. Postgres filters on schema_version in SQL;
		// the fast path has to apply the same gate here.
		if e.SchemaVersion == metrics.SchemaVersion {
			return &e
		}
		s.logger.WithFields(map[string]interface{}{
			"cached_version":  e.SchemaVersion,
			"current_version": metrics.SchemaVersion,
		}).Debug("Stale schema version in redis, treating as miss")
	}

	entry, err := s.repo.Lookup(ctx, portfolioHash, startDate, endDate, benchmark)
	if err != nil {
		s.logger.WithError(err).Warn("Cache lookup failed, treating as miss")
		return nil
	}
	if entry == nil {
		return nil
	}

	// Backfill the fast path for the remaining TTL.
	if ttl := entry.TTL(); ttl > 0 {
		if err := s.fast.Set(ctx, key, entry, ttl); err != nil {
			s.logger.WithError(err).Warn("Redis cache backfill failed")
		}
	}

	return entry
}

// Save persists an entry on both layers. Never returns an error: cache
// writes must not fail the request that produced the entry.
func (s *Store) Save(ctx context.Context, e *Entry) {
	if err := s.repo.Upsert(ctx, e); err != nil {
		s.logger.WithError(err).WithField("portfolio_hash", e.PortfolioHash).
			Warn("Cache write failed, returning uncached result")
	}

	if ttl := e.TTL(); ttl > 0 {
		key := redis.MetricsKey(e.PortfolioHash, e.StartDate, e.EndDate, e.BenchmarkTicker)
		if err := s.fast.Set(ctx, key, e, ttl); err != nil {
			s.logger.WithError(err).Warn("Redis cache write failed")
		}
	}
}
