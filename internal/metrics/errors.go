package metrics

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks a malformed request. Fatal, never retried.
	ErrValidation = errors.New("invalid request")

	// ErrInsufficientData marks a series too short to compute on.
	ErrInsufficientData = errors.New("insufficient data")
)

// InsufficientDataError reports which tickers lack the minimum number of
// return observations, or that the aligned series itself is too short.
type InsufficientDataError struct {
	Tickers      []string
	Observations int
	Required     int
}

func (e *InsufficientDataError) Error() string {
	if len(e.Tickers) > 0 {
		return fmt.Sprintf("insufficient data for %s: need at least %d return observations",
			strings.Join(e.Tickers, ", "), e.Required)
	}
	return fmt.Sprintf("insufficient aligned data: got %d return observations, need %d",
		e.Observations, e.Required)
}

// Unwrap lets errors.Is(err, ErrInsufficientData) match.
func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// ValidateHoldings checks the portfolio composition invariants: at least one
// entry, and weights summing to 1 within ±0.01.
func ValidateHoldings(holdings []Holding) error {
	if len(holdings) == 0 {
		return fmt.Errorf("%w: tickers cannot be empty", ErrValidation)
	}

	var sum float64
	for _, h := range holdings {
		if h.Ticker == "" {
			return fmt.Errorf("%w: ticker cannot be empty", ErrValidation)
		}
		if h.Weight < 0 {
			return fmt.Errorf("%w: weight for %s cannot be negative", ErrValidation, h.Ticker)
		}
		sum += h.Weight
	}

	if diff := sum - 1.0; diff > 0.01 || diff < -0.01 {
		return fmt.Errorf("%w: weights must sum to 1, got %.4f", ErrValidation, sum)
	}

	return nil
}
