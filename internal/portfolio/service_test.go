package portfolio

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/internal/marketdata"
	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/internal/narrative"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

type fakeBars struct {
	bars    map[string][]marketdata.Bar
	failing map[string]error
	calls   atomic.Int64
}

func (f *fakeBars) FetchAll(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult {
	f.calls.Add(1)
	out := make(map[string]marketdata.FetchResult, len(tickers))
	for _, t := range tickers {
		if err, ok := f.failing[t]; ok {
			out[t] = marketdata.FetchResult{Ticker: t, Error: err}
			continue
		}
		out[t] = marketdata.FetchResult{Ticker: t, Bars: f.bars[t]}
	}
	return out
}

type fakeBench struct {
	bars []marketdata.Bar
	err  error
}

func (f *fakeBench) FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error) {
	return f.bars, f.err
}

type fakeCache struct {
	entry   *cache.Entry
	lookups int
	saved   []*cache.Entry
}

func (f *fakeCache) Lookup(ctx context.Context, hash, start, end, bench string) *cache.Entry {
	f.lookups++
	return f.entry
}

func (f *fakeCache) Save(ctx context.Context, e *cache.Entry) {
	f.saved = append(f.saved, e)
}

type fakeNarrator struct {
	analysis map[string]interface{}
	err      error
}

func (f *fakeNarrator) Generate(ctx context.Context, m *metrics.PortfolioMetrics, holdings []metrics.Holding) (map[string]interface{}, error) {
	return f.analysis, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			BenchmarkTicker:   "SPY",
			RiskFreeRate:      0.05,
			InvestableCapital: 100000,
			LookbackDays:      365,
			CacheTTL:          24 * time.Hour,
		},
	}
}

// growthBars yields n daily bars with a constant 0.1% close-over-close gain.
func growthBars(n int) []marketdata.Bar {
	out := make([]marketdata.Bar, n)
	close := 100.0
	for i := range out {
		out[i] = marketdata.Bar{
			Date:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: close,
		}
		close *= 1.001
	}
	return out
}

func testService(bars BarSource, bench BenchmarkSource, store CacheStore, narrator Narrator) *Service {
	return NewService(testConfig(), bars, bench, store, narrator, logger.NewWriter(io.Discard))
}

func baseRequest() *CalculationRequest {
	return &CalculationRequest{
		Tickers:   []string{"AAPL", "MSFT"},
		Weights:   []float64{0.6, 0.4},
		StartDate: "2025-01-01",
		EndDate:   "2025-03-01",
	}
}

func TestCalculateValidation(t *testing.T) {
	s := testService(&fakeBars{}, &fakeBench{}, nil, nil)

	tests := []struct {
		name string
		req  *CalculationRequest
	}{
		{"empty tickers", &CalculationRequest{Weights: []float64{1}}},
		{"length mismatch", &CalculationRequest{Tickers: []string{"AAPL", "MSFT"}, Weights: []float64{1}}},
		{"weights off", &CalculationRequest{Tickers: []string{"AAPL"}, Weights: []float64{0.5}}},
		{"bad start date", &CalculationRequest{
			Tickers: []string{"AAPL"}, Weights: []float64{1},
			StartDate: "01/01/2025", EndDate: "2025-03-01",
		}},
		{"end before start", &CalculationRequest{
			Tickers: []string{"AAPL"}, Weights: []float64{1},
			StartDate: "2025-03-01", EndDate: "2025-01-01",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Calculate(context.Background(), tt.req)
			assert.ErrorIs(t, err, metrics.ErrValidation)
		})
	}
}

func TestCalculateFullPipeline(t *testing.T) {
	bars := &fakeBars{bars: map[string][]marketdata.Bar{
		"AAPL": growthBars(40),
		"MSFT": growthBars(40),
	}}
	store := &fakeCache{}

	s := testService(bars, &fakeBench{bars: growthBars(40)}, store, nil)

	result, err := s.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.FromCache)
	assert.Equal(t, 39, result.DataInfo.TradingDays)
	assert.Equal(t, 39, result.DataInfo.BenchmarkDays)
	assert.Greater(t, result.Metrics.TotalReturn, 0.0)
	assert.Empty(t, result.Traces)
	assert.Nil(t, result.AIAnalysis)

	// The computed result is written back to the cache with the configured TTL.
	require.Len(t, store.saved, 1)
	saved := store.saved[0]
	assert.Equal(t, result.Metrics, saved.Metrics)
	assert.Equal(t, "2025-01-01", saved.StartDate)
	assert.Equal(t, "SPY", saved.BenchmarkTicker)
	assert.Equal(t, metrics.SchemaVersion, saved.SchemaVersion)
	assert.Equal(t, 24*time.Hour, saved.ExpiresAt.Sub(saved.CalculatedAt))
}

func TestCalculateCacheHit(t *testing.T) {
	cached := &cache.Entry{
		Metrics:       metrics.PortfolioMetrics{TotalReturn: 12.34, SharpeRatio: 1.5},
		StartDate:     "2025-01-01",
		EndDate:       "2025-03-01",
		TradingDays:   39,
		BenchmarkDays: 39,
		Narrative:     map[string]interface{}{"summary": "cached"},
		CalculatedAt:  time.Now().UTC(),
		ExpiresAt:     time.Now().UTC().Add(time.Hour),
	}
	bars := &fakeBars{}
	store := &fakeCache{entry: cached}

	s := testService(bars, &fakeBench{}, store, nil)

	result, err := s.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.True(t, result.FromCache)
	assert.Equal(t, cached.Metrics, result.Metrics)
	assert.Equal(t, 39, result.DataInfo.TradingDays)
	assert.Nil(t, result.AIAnalysis, "narrative only returned when requested")
	assert.Equal(t, int64(0), bars.calls.Load(), "cache hit must not fetch bars")
	assert.Empty(t, store.saved)

	// Same hit with includeAIAnalysis surfaces the cached narrative.
	req := baseRequest()
	req.IncludeAIAnalysis = true
	result, err = s.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "cached", result.AIAnalysis["summary"])
}

func TestCalculateTracesBypassCacheRead(t *testing.T) {
	bars := &fakeBars{bars: map[string][]marketdata.Bar{
		"AAPL": growthBars(40),
		"MSFT": growthBars(40),
	}}
	store := &fakeCache{entry: &cache.Entry{Metrics: metrics.PortfolioMetrics{TotalReturn: 99}}}

	s := testService(bars, &fakeBench{bars: growthBars(40)}, store, nil)

	req := baseRequest()
	req.GenerateTraces = true

	result, err := s.Calculate(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.FromCache, "traces force fresh computation")
	assert.NotEmpty(t, result.Traces)
	assert.Equal(t, 0, store.lookups, "trace requests skip the cache read")
	assert.Equal(t, int64(1), bars.calls.Load())

	// Traces are still written through to the cache.
	require.Len(t, store.saved, 1)
	assert.NotEmpty(t, store.saved[0].Traces)
}

func TestCalculateTickerFetchFailure(t *testing.T) {
	bars := &fakeBars{
		bars:    map[string][]marketdata.Bar{"AAPL": growthBars(40)},
		failing: map[string]error{"MSFT": errors.New("upstream down")},
	}

	s := testService(bars, &fakeBench{bars: growthBars(40)}, nil, nil)

	_, err := s.Calculate(context.Background(), baseRequest())
	require.Error(t, err)

	var insufficient *metrics.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Contains(t, insufficient.Tickers, "MSFT")
}

func TestCalculateBenchmarkFailureDegrades(t *testing.T) {
	bars := &fakeBars{bars: map[string][]marketdata.Bar{
		"AAPL": growthBars(40),
		"MSFT": growthBars(40),
	}}

	s := testService(bars, &fakeBench{err: errors.New("benchmark down")}, nil, nil)

	result, err := s.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)

	assert.Equal(t, 0, result.DataInfo.BenchmarkDays)
	assert.Equal(t, 1.0, result.Metrics.Beta)
	assert.Equal(t, 0.0, result.Metrics.Alpha)
	assert.Equal(t, 0.0, result.Metrics.TrackingError)
}

func TestCalculateNarrative(t *testing.T) {
	newBars := func() *fakeBars {
		return &fakeBars{bars: map[string][]marketdata.Bar{
			"AAPL": growthBars(40),
			"MSFT": growthBars(40),
		}}
	}
	bench := func() *fakeBench { return &fakeBench{bars: growthBars(40)} }

	req := baseRequest()
	req.IncludeAIAnalysis = true

	t.Run("success", func(t *testing.T) {
		s := testService(newBars(), bench(), nil, &fakeNarrator{
			analysis: map[string]interface{}{"summary": "fresh"},
		})
		result, err := s.Calculate(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "fresh", result.AIAnalysis["summary"])
	})

	t.Run("failure degrades to null", func(t *testing.T) {
		s := testService(newBars(), bench(), nil, &fakeNarrator{err: errors.New("model down")})
		result, err := s.Calculate(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, result.AIAnalysis)
	})

	t.Run("disabled is silent", func(t *testing.T) {
		s := testService(newBars(), bench(), nil, &fakeNarrator{err: narrative.ErrDisabled})
		result, err := s.Calculate(context.Background(), req)
		require.NoError(t, err)
		assert.Nil(t, result.AIAnalysis)
	})
}

func TestCalculateAppliesDefaults(t *testing.T) {
	var captured struct {
		from, to time.Time
	}
	bars := &fakeBars{bars: map[string][]marketdata.Bar{"AAPL": growthBars(40)}}
	bench := &fakeBench{bars: growthBars(40)}

	s := testService(barSourceFunc(func(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult {
		captured.from, captured.to = from, to
		return bars.FetchAll(ctx, tickers, from, to)
	}), bench, nil, nil)

	result, err := s.Calculate(context.Background(), &CalculationRequest{
		Tickers: []string{"AAPL"},
		Weights: []float64{1.0},
	})
	require.NoError(t, err)

	// Defaults: one year lookback ending today, SPY benchmark.
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), result.DataInfo.EndDate)
	assert.InDelta(t, 365, captured.to.Sub(captured.from).Hours()/24, 1)
}

type barSourceFunc func(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult

func (f barSourceFunc) FetchAll(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult {
	return f(ctx, tickers, from, to)
}

func TestHashOrderIndependence(t *testing.T) {
	s := testService(&fakeBars{}, &fakeBench{}, nil, nil)

	a, err := s.Hash(&CalculationRequest{
		Tickers: []string{"AAPL", "MSFT"},
		Weights: []float64{0.6, 0.4},
	})
	require.NoError(t, err)

	b, err := s.Hash(&CalculationRequest{
		Tickers: []string{"MSFT", "AAPL"},
		Weights: []float64{0.4, 0.6},
	})
	require.NoError(t, err)

	assert.Equal(t, a, b)

	_, err = s.Hash(&CalculationRequest{Tickers: []string{"AAPL"}, Weights: []float64{0.2}})
	assert.ErrorIs(t, err, metrics.ErrValidation)
}
