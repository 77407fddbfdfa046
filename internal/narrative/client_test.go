package narrative

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianpe/meridian/backend/internal/metrics"
	"github.com/meridianpe/meridian/backend/pkg/config"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

func TestGenerateDisabled(t *testing.T) {
	cfg := &config.Config{Narrative: config.NarrativeConfig{Enabled: false}}
	c, err := New(context.Background(), cfg, logger.NewWriter(io.Discard))
	require.NoError(t, err)

	assert.False(t, c.Enabled())

	_, err = c.Generate(context.Background(), &metrics.PortfolioMetrics{}, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestBuildPromptDeterministic(t *testing.T) {
	m := &metrics.PortfolioMetrics{
		TotalReturn: 18.42,
		CAGR:        12.01,
		Volatility:  15.3,
		SharpeRatio: 1.21,
		SleepScore:  72,
	}
	a := BuildPrompt(m, []metrics.Holding{
		{Ticker: "MSFT", Weight: 0.4},
		{Ticker: "AAPL", Weight: 0.6},
	})
	b := BuildPrompt(m, []metrics.Holding{
		{Ticker: "AAPL", Weight: 0.6},
		{Ticker: "MSFT", Weight: 0.4},
	})

	assert.Equal(t, a, b, "holding order must not change the prompt")
	assert.Contains(t, a, "AAPL: 60.00%")
	assert.Contains(t, a, "MSFT: 40.00%")
	assert.Contains(t, a, "Total return: 18.4200%")
	assert.Contains(t, a, "Sharpe ratio: 1.2100")
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]interface{}
	}{
		{
			name: "plain json",
			text: `{"summary": "solid year", "suggestion": "rebalance"}`,
			want: map[string]interface{}{"summary": "solid year", "suggestion": "rebalance"},
		},
		{
			name: "fenced json",
			text: "```json\n{\"summary\": \"solid year\"}\n```",
			want: map[string]interface{}{"summary": "solid year"},
		},
		{
			name: "bare fence",
			text: "```\n{\"summary\": \"ok\"}\n```",
			want: map[string]interface{}{"summary": "ok"},
		},
		{
			name: "prose fallback",
			text: "The portfolio performed well this year.",
			want: map[string]interface{}{"summary": "The portfolio performed well this year."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseResponse(tt.text))
		})
	}
}

func TestIsQuotaError(t *testing.T) {
	assert.True(t, isQuotaError(errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")))
	assert.True(t, isQuotaError(errors.New("quota exceeded for model")))
	assert.False(t, isQuotaError(errors.New("invalid api key")))
}
