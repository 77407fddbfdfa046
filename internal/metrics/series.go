package metrics

import (
	"sort"
	"time"
)

// =============================================================================
// Return-series construction
// =============================================================================

// dateKey collapses a bar timestamp to its calendar day.
func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// Returns derives daily simple returns from a close series.
// The first bar yields no return.
func Returns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-prev)/prev)
	}
	return out
}

// AlignedPortfolioReturns intersects the bar dates of every holding and
// computes the weighted portfolio daily return on each shared date. The
// intersection is strict: a date missing from any one ticker is dropped for
// all of them.
//
// Fails with InsufficientDataError when any single ticker has fewer than
// MinObservations returns, or when the aligned series itself ends up shorter
// than MinObservations.
func AlignedPortfolioReturns(holdings []Holding, bars map[string][]PricePoint) ([]time.Time, []float64, error) {
	// Per-ticker gate first, so the error names every offender at once.
	var short []string
	for _, h := range holdings {
		if len(bars[h.Ticker])-1 < MinObservations {
			short = append(short, h.Ticker)
		}
	}
	if len(short) > 0 {
		return nil, nil, &InsufficientDataError{Tickers: short, Required: MinObservations}
	}

	// Strict date intersection across all holdings.
	counts := make(map[string]int)
	closes := make(map[string]map[string]float64, len(holdings))
	for _, h := range holdings {
		byDate := make(map[string]float64, len(bars[h.Ticker]))
		for _, p := range bars[h.Ticker] {
			key := dateKey(p.Date)
			if _, seen := byDate[key]; !seen {
				byDate[key] = p.Close
				counts[key]++
			}
		}
		closes[h.Ticker] = byDate
	}

	var shared []string
	for key, n := range counts {
		if n == len(holdings) {
			shared = append(shared, key)
		}
	}
	sort.Strings(shared)

	// 21 shared bars yield 20 returns; the first bar has no return.
	if len(shared)-1 < MinObservations {
		return nil, nil, &InsufficientDataError{
			Observations: len(shared) - 1,
			Required:     MinObservations,
		}
	}

	dates := make([]time.Time, 0, len(shared)-1)
	returns := make([]float64, 0, len(shared)-1)
	for i := 1; i < len(shared); i++ {
		var dayReturn float64
		for _, h := range holdings {
			prev := closes[h.Ticker][shared[i-1]]
			curr := closes[h.Ticker][shared[i]]
			if prev == 0 {
				continue
			}
			dayReturn += h.Weight * ((curr - prev) / prev)
		}
		d, _ := time.Parse("2006-01-02", shared[i])
		dates = append(dates, d)
		returns = append(returns, dayReturn)
	}

	return dates, returns, nil
}

// ValueSeries compounds daily returns onto starting capital.
// The result has len(returns)+1 entries, the first being the capital itself.
func ValueSeries(returns []float64, capital float64) []float64 {
	values := make([]float64, 0, len(returns)+1)
	values = append(values, capital)
	v := capital
	for _, r := range returns {
		v *= 1 + r
		values = append(values, v)
	}
	return values
}

// DrawdownSeries returns the percentage decline from the running peak for
// each point of a value series.
func DrawdownSeries(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	peak := values[0]
	for i, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			out[i] = (peak - v) / peak * 100
		}
	}
	return out
}
