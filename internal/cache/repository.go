package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridianpe/meridian/backend/internal/metrics"
)

// Repository is the durable metrics cache, backed by Postgres.
// Metrics and traces are stored as JSONB alongside the schema version so a
// reader on a different version ignores the row instead of mis-decoding it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new cache repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Lookup returns the cached entry for the key, or (nil, nil) on a miss.
// Expired, invalidated, and version-mismatched rows all read as misses.
func (r *Repository) Lookup(ctx context.Context, portfolioHash, startDate, endDate, benchmark string) (*Entry, error) {
	query := `
		SELECT portfolio_hash, start_date, end_date, benchmark_ticker,
		       schema_version, metrics, traces, narrative,
		       trading_days, benchmark_days, calculated_at, expires_at
		FROM metrics_cache
		WHERE portfolio_hash = $1
		  AND start_date = $2
		  AND end_date = $3
		  AND benchmark_ticker = $4
		  AND schema_version = $5
		  AND is_valid = true
		  AND expires_at > now()
	`

	var e Entry
	var metricsJSON, tracesJSON, narrativeJSON []byte

	err := r.pool.QueryRow(ctx, query,
		portfolioHash, startDate, endDate, benchmark, metrics.SchemaVersion,
	).Scan(
		&e.PortfolioHash, &e.StartDate, &e.EndDate, &e.BenchmarkTicker,
		&e.SchemaVersion, &metricsJSON, &tracesJSON, &narrativeJSON,
		&e.TradingDays, &e.BenchmarkDays, &e.CalculatedAt, &e.ExpiresAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}

	if err := json.Unmarshal(metricsJSON, &e.Metrics); err != nil {
		return nil, fmt.Errorf("cache metrics decode: %w", err)
	}
	if len(tracesJSON) > 0 {
		if err := json.Unmarshal(tracesJSON, &e.Traces); err != nil {
			return nil, fmt.Errorf("cache traces decode: %w", err)
		}
	}
	if len(narrativeJSON) > 0 {
		if err := json.Unmarshal(narrativeJSON, &e.Narrative); err != nil {
			return nil, fmt.Errorf("cache narrative decode: %w", err)
		}
	}

	return &e, nil
}

// Upsert writes an entry, replacing any prior row for the same key.
// Last write wins; concurrent writers for the same key produce numerically
// identical rows, so the race is harmless.
func (r *Repository) Upsert(ctx context.Context, e *Entry) error {
	metricsJSON, err := json.Marshal(e.Metrics)
	if err != nil {
		return fmt.Errorf("cache metrics encode: %w", err)
	}

	var tracesJSON, narrativeJSON []byte
	if len(e.Traces) > 0 {
		if tracesJSON, err = json.Marshal(e.Traces); err != nil {
			return fmt.Errorf("cache traces encode: %w", err)
		}
	}
	if len(e.Narrative) > 0 {
		if narrativeJSON, err = json.Marshal(e.Narrative); err != nil {
			return fmt.Errorf("cache narrative encode: %w", err)
		}
	}

	query := `
		INSERT INTO metrics_cache (
			portfolio_hash, start_date, end_date, benchmark_ticker,
			schema_version, metrics, traces, narrative,
			trading_days, benchmark_days, calculated_at, expires_at, is_valid
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true)
		ON CONFLICT (portfolio_hash, start_date, end_date, benchmark_ticker) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			metrics = EXCLUDED.metrics,
			traces = EXCLUDED.traces,
			narrative = EXCLUDED.narrative,
			trading_days = EXCLUDED.trading_days,
			benchmark_days = EXCLUDED.benchmark_days,
			calculated_at = EXCLUDED.calculated_at,
			expires_at = EXCLUDED.expires_at,
			is_valid = true
	`

	_, err = r.pool.Exec(ctx, query,
		e.PortfolioHash, e.StartDate, e.EndDate, e.BenchmarkTicker,
		e.SchemaVersion, metricsJSON, tracesJSON, narrativeJSON,
		e.TradingDays, e.BenchmarkDays, e.CalculatedAt, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache upsert: %w", err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry. Lookups already filter on
// expires_at, so this is housekeeping, not correctness.
func (r *Repository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM metrics_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("cache cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the number of live cache rows. Used by the status command.
func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM metrics_cache WHERE is_valid = true AND expires_at > now()`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Schema is the DDL for the metrics cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS metrics_cache (
	portfolio_hash   TEXT        NOT NULL,
	start_date       TEXT        NOT NULL,
	end_date         TEXT        NOT NULL,
	benchmark_ticker TEXT        NOT NULL,
	schema_version   INT         NOT NULL,
	metrics          JSONB       NOT NULL,
	traces           JSONB,
	narrative        JSONB,
	trading_days     INT         NOT NULL DEFAULT 0,
	benchmark_days   INT         NOT NULL DEFAULT 0,
	calculated_at    TIMESTAMPTZ NOT NULL,
	expires_at       TIMESTAMPTZ NOT NULL,
	is_valid         BOOLEAN     NOT NULL DEFAULT true,
	PRIMARY KEY (portfolio_hash, start_date, end_date, benchmark_ticker)
);

CREATE INDEX IF NOT EXISTS idx_metrics_cache_expires ON metrics_cache (expires_at);
`

// EnsureSchema creates the cache table if missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("cache schema: %w", err)
	}
	return nil
}
