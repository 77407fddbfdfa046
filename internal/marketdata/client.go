package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/httputil"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// Client fetches daily aggregate bars from the price provider.
// All provider API calls go through this client.
type Client struct {
	httpClient *httputil.Client
	apiKey     string
	baseURL    string
	limiter    *rate.Limiter
	logger     *logger.Logger
}

// NewClient creates a new provider client. Bar fetches are single-attempt:
// a failed fetch is treated as missing data for that ticker, not retried.
func NewClient(cfg *config.Config, log *logger.Logger) *Client {
	httpClient := httputil.NewWithTimeout(log, 15*time.Second).DisableRetry()

	// Provider rate limit is per minute; the limiter smooths it to steady state.
	perSecond := rate.Limit(float64(cfg.MarketData.RateLimit) / 60.0)

	return &Client{
		httpClient: httpClient,
		apiKey:     cfg.MarketData.APIKey,
		baseURL:    cfg.MarketData.BaseURL,
		limiter:    rate.NewLimiter(perSecond, cfg.MarketData.Workers),
		logger:     log.WithField("module", "marketdata"),
	}
}

// aggsResponse is the provider's aggregates payload. Bars arrive as epoch
// milliseconds plus OHLCV.
type aggsResponse struct {
	Ticker  string `json:"ticker"`
	Status  string `json:"status"`
	Results []struct {
		T int64   `json:"t"` // epoch ms
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
	} `json:"results"`
}

// FetchDailyBars fetches daily bars for a ticker over an inclusive date range.
func (c *Client) FetchDailyBars(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	url := fmt.Sprintf("%s/v2/aggs/ticker/%s/range/1/day/%s/%s?adjusted=true&sort=asc&limit=50000&apiKey=%s",
		c.baseURL, ticker, from.Format("2006-01-02"), to.Format("2006-01-02"), c.apiKey)

	resp, err := c.httpClient.Get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bars for %s: unexpected status %d", ticker, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read bars response for %s: %w", ticker, err)
	}

	var payload aggsResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse bars response for %s: %w", ticker, err)
	}

	bars := make([]Bar, 0, len(payload.Results))
	for _, r := range payload.Results {
		bars = append(bars, Bar{
			Date:  time.UnixMilli(r.T).UTC(),
			Open:  r.O,
			High:  r.H,
			Low:   r.L,
			Close: r.C,
			Vol:   r.V,
		})
	}

	c.logger.WithFields(map[string]interface{}{
		"ticker": ticker,
		"count":  len(bars),
	}).Debug("Fetched daily bars")

	return bars, nil
}
