package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpe/meridian/backend/internal/marketdata"
	"github.com/meridianpe/meridian/backend/internal/portfolio"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

type stubBars struct {
	bars map[string][]marketdata.Bar
}

func (s *stubBars) FetchAll(ctx context.Context, tickers []string, from, to time.Time) map[string]marketdata.FetchResult {
	out := make(map[string]marketdata.FetchResult, len(tickers))
	for _, t := range tickers {
		out[t] = marketdata.FetchResult{Ticker: t, Bars: s.bars[t]}
	}
	return out
}

type stubBench struct {
	bars []marketdata.Bar
}

func (s *stubBench) FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error) {
	return s.bars, nil
}

func dailyBars(n int) []marketdata.Bar {
	out := make([]marketdata.Bar, n)
	price := 100.0
	for i := range out {
		out[i] = marketdata.Bar{
			Date:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Close: price,
		}
		price *= 1.001
	}
	return out
}

func testHandler(bars map[string][]marketdata.Bar) *PortfolioHandler {
	cfg := &config.Config{
		Engine: config.EngineConfig{
			BenchmarkTicker:   "SPY",
			RiskFreeRate:      0.05,
			InvestableCapital: 100000,
			LookbackDays:      365,
			CacheTTL:          24 * time.Hour,
		},
	}
	log := logger.NewWriter(io.Discard)
	service := portfolio.NewService(cfg, &stubBars{bars: bars}, &stubBench{bars: dailyBars(40)}, nil, nil, log)
	return NewPortfolioHandler(service, log)
}

func postMetrics(t *testing.T, h *PortfolioHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/portfolio/metrics", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.Calculate(rec, req)
	return rec
}

func TestCalculateEndpoint(t *testing.T) {
	h := testHandler(map[string][]marketdata.Bar{
		"AAPL": dailyBars(40),
		"MSFT": dailyBars(40),
	})

	rec := postMetrics(t, h, `{
		"tickers": ["AAPL", "MSFT"],
		"weights": [0.6, 0.4],
		"startDate": "2025-01-01",
		"endDate": "2025-03-01"
	}`)

	require.Equal(t, http.StatusOK, rec.Code)

	var result portfolio.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.False(t, result.FromCache)
	assert.Equal(t, 39, result.DataInfo.TradingDays)
	assert.Greater(t, result.Metrics.TotalReturn, 0.0)
}

func TestCalculateEndpointBadJSON(t *testing.T) {
	h := testHandler(nil)

	rec := postMetrics(t, h, `{"tickers": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "invalid JSON body", payload["error"])
}

func TestCalculateEndpointValidationError(t *testing.T) {
	h := testHandler(nil)

	rec := postMetrics(t, h, `{"tickers": ["AAPL"], "weights": [0.5]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "validation failed", payload["error"])
	assert.NotEmpty(t, payload["details"])
}

func TestCalculateEndpointInsufficientData(t *testing.T) {
	h := testHandler(map[string][]marketdata.Bar{
		"AAPL": dailyBars(10), // only 9 return observations
	})

	rec := postMetrics(t, h, `{
		"tickers": ["AAPL"],
		"weights": [1.0],
		"startDate": "2025-01-01",
		"endDate": "2025-03-01"
	}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "insufficient data", payload["error"])
	assert.Contains(t, payload["details"], "AAPL")
}

func TestHashEndpoint(t *testing.T) {
	h := testHandler(nil)

	get := func(query string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/portfolio/hash?"+query, nil)
		rec := httptest.NewRecorder()
		h.Hash(rec, req)
		return rec
	}

	rec := get("tickers=AAPL,MSFT&weights=0.6,0.4")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	hash, ok := payload["portfolioHash"].(string)
	require.True(t, ok)
	assert.Len(t, hash, 8)

	// Order-independent.
	rec = get("tickers=MSFT,AAPL&weights=0.4,0.6")
	require.Equal(t, http.StatusOK, rec.Code)
	var flipped map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flipped))
	assert.Equal(t, hash, flipped["portfolioHash"])

	assert.Equal(t, http.StatusBadRequest, get("tickers=AAPL&weights=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get("tickers=AAPL&weights=0.2").Code)
}

func TestHealthEndpoint(t *testing.T) {
	cfg := &config.Config{
		MarketData: config.MarketDataConfig{APIKey: "key"},
	}
	h := NewHealthHandler(cfg, nil, nil, logger.NewWriter(io.Discard))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Check(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "ok", payload["status"])
	assert.Equal(t, "meridian-api", payload["service"])

	md, ok := payload["marketData"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, md["configured"])
}
