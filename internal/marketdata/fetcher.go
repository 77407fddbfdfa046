package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// BarFetcher fetches daily bars for one ticker.
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error)
}

// Fetcher fans per-ticker bar fetches out over a bounded worker pool and
// collects every result, successful or not, before returning.
type Fetcher struct {
	client  BarFetcher
	workers int
	logger  *logger.Logger
}

// NewFetcher creates a fetcher with the given concurrency.
func NewFetcher(client BarFetcher, workers int, log *logger.Logger) *Fetcher {
	if workers < 1 {
		workers = 1
	}
	return &Fetcher{
		client:  client,
		workers: workers,
		logger:  log.WithField("module", "fetcher"),
	}
}

// FetchAll fetches bars for every ticker concurrently. One ticker failing or
// coming back empty never aborts the others; its result carries the error
// and the caller applies the minimum-data rule over the full set.
func (f *Fetcher) FetchAll(ctx context.Context, tickers []string, from, to time.Time) map[string]FetchResult {
	f.logger.WithFields(map[string]interface{}{
		"tickers": len(tickers),
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"workers": f.workers,
	}).Info("Starting bar collection")

	tickerCh := make(chan string, len(tickers))
	resultCh := make(chan FetchResult, len(tickers))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(ctx, tickerCh, resultCh, from, to)
		}()
	}

	for _, ticker := range tickers {
		tickerCh <- ticker
	}
	close(tickerCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[string]FetchResult, len(tickers))
	successCount := 0
	failCount := 0
	for result := range resultCh {
		results[result.Ticker] = result
		if result.Error != nil {
			failCount++
		} else {
			successCount++
		}
	}

	f.logger.WithFields(map[string]interface{}{
		"success": successCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("Bar collection completed")

	return results
}

// worker drains the ticker channel, recording one FetchResult per ticker.
func (f *Fetcher) worker(ctx context.Context, tickerCh <-chan string, resultCh chan<- FetchResult, from, to time.Time) {
	for ticker := range tickerCh {
		select {
		case <-ctx.Done():
			resultCh <- FetchResult{Ticker: ticker, Error: ctx.Err()}
			continue
		default:
		}

		bars, err := f.client.FetchDailyBars(ctx, ticker, from, to)
		if err != nil {
			f.logger.WithError(err).WithField("ticker", ticker).Error("Failed to fetch bars")
			resultCh <- FetchResult{Ticker: ticker, Error: err}
			continue
		}

		resultCh <- FetchResult{Ticker: ticker, Bars: bars}
	}
}
