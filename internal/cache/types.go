package cache

import (
	"time"

	"github.com/meridianpe/meridian/backend/internal/metrics"
)

// Entry is one cached metrics computation, keyed by the four-tuple
// (portfolio hash, start date, end date, benchmark ticker).
type Entry struct {
	PortfolioHash   string                     `json:"portfolioHash"`
	StartDate       string                     `json:"startDate"` // YYYY-MM-DD
	EndDate         string                     `json:"endDate"`   // YYYY-MM-DD
	BenchmarkTicker string                     `json:"benchmarkTicker"`
	SchemaVersion   int                        `json:"schemaVersion"`
	Metrics         metrics.PortfolioMetrics   `json:"metrics"`
	Traces          []metrics.CalculationTrace `json:"traces,omitempty"`
	Narrative       map[string]interface{}     `json:"narrative,omitempty"`
	TradingDays     int                        `json:"tradingDays"`
	BenchmarkDays   int                        `json:"benchmarkDays"`
	CalculatedAt    time.Time                  `json:"calculatedAt"`
	ExpiresAt       time.Time                  `json:"expiresAt"`
}

// TTL returns the time left until the entry expires, never negative.
func (e *Entry) TTL() time.Duration {
	d := time.Until(e.ExpiresAt)
	if d < 0 {
		return 0
	}
	return d
}
