package metrics

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioHashOrderIndependence(t *testing.T) {
	a := []Holding{{"AAPL", 0.6}, {"MSFT", 0.4}}
	b := []Holding{{"MSFT", 0.4}, {"AAPL", 0.6}}

	assert.Equal(t, PortfolioHash(a), PortfolioHash(b))
}

func TestPortfolioHashFixedWidth(t *testing.T) {
	h := PortfolioHash([]Holding{{"SPY", 1.0}})
	assert.Len(t, h, 8)
}

func TestPortfolioHashWeightSensitivity(t *testing.T) {
	base := []Holding{{"AAPL", 0.5}, {"MSFT", 0.5}}
	bumped := []Holding{{"AAPL", 0.500001}, {"MSFT", 0.499999}}

	assert.NotEqual(t, PortfolioHash(base), PortfolioHash(bumped),
		"a 1e-6 weight change must change the hash")
}

func TestPortfolioHashTickerSensitivity(t *testing.T) {
	a := PortfolioHash([]Holding{{"AAPL", 0.5}, {"MSFT", 0.5}})
	b := PortfolioHash([]Holding{{"AAPL", 0.5}, {"GOOG", 0.5}})
	assert.NotEqual(t, a, b)
}

func TestPortfolioHashNoCollisionsAcrossCorpus(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tickers := []string{"AAPL", "MSFT", "GOOG", "AMZN", "NVDA", "META", "TSLA", "BRK.B"}

	seen := make(map[string][]Holding)
	for i := 0; i < 2000; i++ {
		n := 2 + rng.Intn(4)
		weights := make([]float64, n)
		var sum float64
		for j := range weights {
			weights[j] = rng.Float64()
			sum += weights[j]
		}

		holdings := make([]Holding, n)
		for j := range weights {
			holdings[j] = Holding{
				Ticker: tickers[(i+j)%len(tickers)],
				Weight: weights[j] / sum,
			}
		}

		h := PortfolioHash(holdings)
		if prev, ok := seen[h]; ok {
			// Identical compositions hashing alike is fine; distinct ones are not.
			require.Equal(t, canonical(prev), canonical(holdings),
				"hash collision between distinct portfolios")
		}
		seen[h] = holdings
	}
}

func canonical(holdings []Holding) string {
	out := ""
	for _, h := range holdings {
		out += fmt.Sprintf("%s:%.6f;", h.Ticker, h.Weight)
	}
	return out
}
