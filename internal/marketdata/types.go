package marketdata

import "time"

// Bar is one daily aggregate for a ticker.
type Bar struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
	Vol   float64   `json:"volume"`
}

// FetchResult is the outcome of one per-ticker fetch. A failed or empty
// fetch is recorded here, never propagated as a batch failure; the caller
// evaluates results against the minimum-data rule after all fetches settle.
type FetchResult struct {
	Ticker string
	Bars   []Bar
	Error  error
}
