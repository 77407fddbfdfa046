package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/internal/marketdata"
	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/internal/narrative"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// BarSource fans out daily-bar fetches for a set of tickers.
type BarSource interface {
	FetchAll(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult
}

// BenchmarkSource fetches bars for a single ticker.
type BenchmarkSource interface {
	FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error)
}

// CacheStore is the metrics cache surface the service depends on.
type CacheStore interface {
	Lookup(ctx context.Context, portfolioHash, startDate, endDate, benchmark string) *cache.Entry
	Save(ctx context.Context, e *cache.Entry)
}

// Narrator produces AI commentary for computed metrics.
type Narrator interface {
	Generate(ctx context.Context, m *metrics.PortfolioMetrics, holdings []metrics.Holding) (map[string]interface{}, error)
}

// Service orchestrates one metrics computation: validate, check cache, fetch
// bars, align, compute, narrate, cache. It holds no per-request state.
type Service struct {
	cfg       *config.Config
	engine    *metrics.Engine
	bars      BarSource
	benchmark BenchmarkSource
	cache     CacheStore
	narrator  Narrator
	logger    *logger.Logger
}

// NewService creates the orchestration service. cache and narrator may be
// nil, in which case caching and AI analysis are skipped.
func NewService(cfg *config.Config, bars BarSource, benchmark BenchmarkSource, store CacheStore, narrator Narrator, log *logger.Logger) *Service {
	return &Service{
		cfg:       cfg,
		engine:    metrics.NewEngine(),
		bars:      bars,
		benchmark: benchmark,
		cache:     store,
		narrator:  narrator,
		logger:    log.WithField("module", "portfolio"),
	}
}

// Calculate runs the full pipeline for one request.
//
// Validation and insufficient-data failures are returned as errors; upstream
// fetch failures, narrative failures and cache write failures degrade without
// failing the request.
func (s *Service) Calculate(ctx context.Context, req *CalculationRequest) (*Result, error) {
	holdings, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	s.applyDefaults(req)

	startDate, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid startDate %q", metrics.ErrValidation, req.StartDate)
	}
	endDate, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endDate %q", metrics.ErrValidation, req.EndDate)
	}
	if !endDate.After(startDate) {
		return nil, fmt.Errorf("%w: endDate must be after startDate", metrics.ErrValidation)
	}

	hash := metrics.PortfolioHash(holdings)
	log := s.logger.WithFields(map[string]interface{}{
		"portfolio_hash": hash,
		"tickers":        len(req.Tickers),
	})

	// A cache hit short-circuits recomputation only when traces were not
	// requested: traces are always generated fresh.
	if s.cache != nil && !req.GenerateTraces {
		if entry := s.cache.Lookup(ctx, hash, req.StartDate, req.EndDate, req.BenchmarkTicker); entry != nil {
			log.Debug("Serving metrics from cache")
			return s.cachedResult(req, entry), nil
		}
	}

	returns, benchReturns, err := s.buildReturnSeries(ctx, req, holdings, startDate, endDate, log)
	if err != nil {
		return nil, err
	}

	in := metrics.Input{
		Returns:           returns,
		BenchmarkReturns:  benchReturns,
		RiskFreeRate:      *req.RiskFreeRate,
		InvestableCapital: req.InvestableCapital,
	}

	computed, err := s.engine.Compute(in)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Success: true,
		Metrics: *computed,
		DataInfo: DataInfo{
			StartDate:     req.StartDate,
			EndDate:       req.EndDate,
			TradingDays:   len(returns),
			BenchmarkDays: len(benchReturns),
			CalculatedAt:  time.Now().UTC(),
		},
	}

	if req.GenerateTraces {
		result.Traces = s.engine.Traces(in)
	}

	if req.IncludeAIAnalysis && s.narrator != nil {
		analysis, err := s.narrator.Generate(ctx, computed, holdings)
		switch {
		case errors.Is(err, narrative.ErrDisabled):
			// Leave aiAnalysis null.
		case err != nil:
			log.WithError(err).Warn("Narrative generation failed, continuing without")
		default:
			result.AIAnalysis = analysis
		}
	}

	if s.cache != nil {
		s.cache.Save(ctx, &cache.Entry{
			PortfolioHash:   hash,
			StartDate:       req.StartDate,
			EndDate:         req.EndDate,
			BenchmarkTicker: req.BenchmarkTicker,
			SchemaVersion:   metrics.SchemaVersion,
			Metrics:         *computed,
			Traces:          result.Traces,
			Narrative:       result.AIAnalysis,
			TradingDays:     result.DataInfo.TradingDays,
			BenchmarkDays:   result.DataInfo.BenchmarkDays,
			CalculatedAt:    result.DataInfo.CalculatedAt,
			ExpiresAt:       result.DataInfo.CalculatedAt.Add(s.cfg.Engine.CacheTTL),
		})
	}

	log.WithFields(map[string]interface{}{
		"trading_days":   result.DataInfo.TradingDays,
		"benchmark_days": result.DataInfo.BenchmarkDays,
	}).Info("Metrics computed")

	return result, nil
}

// Hash returns the cache key for a ticker/weight composition without running
// the pipeline. Used by the hash preview endpoint.
func (s *Service) Hash(req *CalculationRequest) (string, error) {
	holdings, err := s.validate(req)
	if err != nil {
		return "", err
	}
	return metrics.PortfolioHash(holdings), nil
}

func (s *Service) validate(req *CalculationRequest) ([]metrics.Holding, error) {
	if len(req.Tickers) == 0 {
		return nil, fmt.Errorf("%w: tickers must not be empty", metrics.ErrValidation)
	}
	if len(req.Tickers) != len(req.Weights) {
		return nil, fmt.Errorf("%w: tickers and weights length mismatch (%d vs %d)",
			metrics.ErrValidation, len(req.Tickers), len(req.Weights))
	}

	holdings := make([]metrics.Holding, len(req.Tickers))
	for i, t := range req.Tickers {
		holdings[i] = metrics.Holding{Ticker: t, Weight: req.Weights[i]}
	}
	if err := metrics.ValidateHoldings(holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

func (s *Service) applyDefaults(req *CalculationRequest) {
	now := time.Now().UTC()
	if req.EndDate == "" {
		req.EndDate = now.Format(dateLayout)
	}
	if req.StartDate == "" {
		req.StartDate = now.AddDate(0, 0, -s.cfg.Engine.LookbackDays).Format(dateLayout)
	}
	if req.BenchmarkTicker == "" {
		req.BenchmarkTicker = s.cfg.Engine.BenchmarkTicker
	}
	if req.InvestableCapital <= 0 {
		req.InvestableCapital = s.cfg.Engine.InvestableCapital
	}
	if req.RiskFreeRate == nil {
		rf := s.cfg.Engine.RiskFreeRate
		req.RiskFreeRate = &rf
	}
}

// buildReturnSeries fetches ticker and benchmark bars concurrently, then
// aligns the ticker series into one weighted portfolio return series.
func (s *Service) buildReturnSeries(ctx context.Context, req *CalculationRequest, holdings []metrics.Holding, startDate, endDate time.Time, log *logger.Logger) ([]float64, []float64, error) {
	benchCh := make(chan []marketdata.Bar, 1)
	go func() {
		bars, err := s.benchmark.FetchDailyBars(ctx, req.BenchmarkTicker, startDate, endDate)
		if err != nil {
			log.WithError(err).WithField("benchmark", req.BenchmarkTicker).
				Warn("Benchmark fetch failed, using defaults for benchmark metrics")
			bars = nil
		}
		benchCh <- bars
	}()

	results := s.bars.FetchAll(ctx, req.Tickers, startDate, endDate)

	bars := make(map[string][]metrics.PricePoint, len(results))
	for ticker, res := range results {
		if res.Error != nil {
			log.WithError(res.Error).WithField("ticker", ticker).
				Warn("Ticker fetch failed, treating as missing data")
			bars[ticker] = nil
			continue
		}
		bars[ticker] = toPricePoints(res.Bars)
	}

	_, returns, err := metrics.AlignedPortfolioReturns(holdings, bars)
	if err != nil {
		return nil, nil, err
	}

	benchBars := <-benchCh
	var benchReturns []float64
	if len(benchBars) > 1 {
		closes := make([]float64, len(benchBars))
		for i, b := range benchBars {
			closes[i] = b.Close
		}
		benchReturns = metrics.Returns(closes)
	}

	return returns, benchReturns, nil
}

func (s *Service) cachedResult(req *CalculationRequest, entry *cache.Entry) *Result {
	result := &Result{
		Success:   true,
		FromCache: true,
		Metrics:   entry.Metrics,
		DataInfo: DataInfo{
			StartDate:     entry.StartDate,
			EndDate:       entry.EndDate,
			TradingDays:   entry.TradingDays,
			BenchmarkDays: entry.BenchmarkDays,
			CalculatedAt:  entry.CalculatedAt,
		},
	}
	if req.IncludeAIAnalysis {
		result.AIAnalysis = entry.Narrative
	}
	return result
}

func toPricePoints(bars []marketdata.Bar) []metrics.PricePoint {
	points := make([]metrics.PricePoint, len(bars))
	for i, b := range bars {
		points[i] = metrics.PricePoint{Date: b.Date, Close: b.Close}
	}
	return points
}
