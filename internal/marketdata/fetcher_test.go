package marketdata

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// fakeFetcher serves canned bars and fails specific tickers.
type fakeFetcher struct {
	bars    map[string][]Bar
	failing map[string]error
	calls   atomic.Int64
}

func (f *fakeFetcher) FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	f.calls.Add(1)
	if err, ok := f.failing[ticker]; ok {
		return nil, err
	}
	return f.bars[ticker], nil
}

func barsOf(n int) []Bar {
	out := make([]Bar, n)
	for i := range out {
		out[i] = Bar{
			Date:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: 100 + float64(i),
		}
	}
	return out
}

func TestFetchAllCollectsEveryResult(t *testing.T) {
	fake := &fakeFetcher{
		bars: map[string][]Bar{
			"AAPL": barsOf(30),
			"MSFT": barsOf(25),
			"GOOG": barsOf(10),
		},
	}

	f := NewFetcher(fake, 3, logger.NewWriter(testWriter{t}))
	results := f.FetchAll(context.Background(), []string{"AAPL", "MSFT", "GOOG"},
		time.Now().AddDate(-1, 0, 0), time.Now())

	require.Len(t, results, 3)
	assert.Len(t, results["AAPL"].Bars, 30)
	assert.Len(t, results["MSFT"].Bars, 25)
	assert.Len(t, results["GOOG"].Bars, 10)
	assert.Equal(t, int64(3), fake.calls.Load())
}

func TestFetchAllFailureDoesNotAbortOthers(t *testing.T) {
	fake := &fakeFetcher{
		bars: map[string][]Bar{
			"AAPL": barsOf(30),
			"MSFT": barsOf(30),
		},
		failing: map[string]error{
			"BADTICKER": errors.New("provider says no"),
		},
	}

	f := NewFetcher(fake, 2, logger.NewWriter(testWriter{t}))
	results := f.FetchAll(context.Background(), []string{"AAPL", "BADTICKER", "MSFT"},
		time.Now().AddDate(-1, 0, 0), time.Now())

	require.Len(t, results, 3)
	assert.NoError(t, results["AAPL"].Error)
	assert.NoError(t, results["MSFT"].Error)
	assert.Error(t, results["BADTICKER"].Error)
	assert.Len(t, results["AAPL"].Bars, 30)
}

func TestFetchAllZeroWorkersClampsToOne(t *testing.T) {
	fake := &fakeFetcher{bars: map[string][]Bar{"AAPL": barsOf(5)}}

	f := NewFetcher(fake, 0, logger.NewWriter(testWriter{t}))
	results := f.FetchAll(context.Background(), []string{"AAPL"},
		time.Now().AddDate(0, -1, 0), time.Now())

	require.Len(t, results, 1)
	assert.Len(t, results["AAPL"].Bars, 5)
}

func TestFetchAllCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeFetcher{bars: map[string][]Bar{"AAPL": barsOf(5), "MSFT": barsOf(5)}}
	f := NewFetcher(fake, 2, logger.NewWriter(testWriter{t}))

	results := f.FetchAll(ctx, []string{"AAPL", "MSFT"},
		time.Now().AddDate(0, -1, 0), time.Now())

	// Every ticker still gets a result; each carries the context error.
	require.Len(t, results, 2)
	for _, r := range results {
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
}
