package portfolio

import (
	"time"

	"github.com/meridianpe/meridian/backend/internal/metrics"
)

// CalculationRequest is the caller's view of one metrics computation.
// Optional fields default from engine configuration when unset.
type CalculationRequest struct {
	Tickers           []string  `json:"tickers"`
	Weights           []float64 `json:"weights"`
	StartDate         string    `json:"startDate,omitempty"` // YYYY-MM-DD
	EndDate           string    `json:"endDate,omitempty"`   // YYYY-MM-DD
	BenchmarkTicker   string    `json:"benchmarkTicker,omitempty"`
	InvestableCapital float64   `json:"investableCapital,omitempty"`
	RiskFreeRate      *float64  `json:"riskFreeRate,omitempty"`
	IncludeAIAnalysis bool      `json:"includeAIAnalysis,omitempty"`
	GenerateTraces    bool      `json:"generateTraces,omitempty"`
}

// DataInfo describes the data window a result was computed from.
type DataInfo struct {
	StartDate     string    `json:"startDate"`
	EndDate       string    `json:"endDate"`
	TradingDays   int       `json:"tradingDays"`
	BenchmarkDays int       `json:"benchmarkDays"`
	CalculatedAt  time.Time `json:"calculatedAt"`
}

// Result is the success payload for a metrics computation.
type Result struct {
	Success    bool                       `json:"success"`
	FromCache  bool                       `json:"fromCache"`
	Metrics    metrics.PortfolioMetrics   `json:"metrics"`
	Traces     []metrics.CalculationTrace `json:"traces,omitempty"`
	AIAnalysis map[string]interface{}     `json:"aiAnalysis,omitempty"`
	DataInfo   DataInfo                   `json:"dataInfo"`
}
