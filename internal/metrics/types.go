package metrics

import "time"

// SchemaVersion identifies the serialized layout of PortfolioMetrics.
// Cache readers ignore rows written with a different version.
const SchemaVersion = 1

const (
	// TradingDaysPerYear is the annualization factor for daily series.
	TradingDaysPerYear = 252

	// MinObservations is the minimum number of daily return observations
	// required per ticker and for the aligned portfolio series.
	MinObservations = 20
)

// Holding is one ticker/weight pair of a portfolio composition.
type Holding struct {
	Ticker string  `json:"ticker"`
	Weight float64 `json:"weight"`
}

// PricePoint is a single daily close for a ticker.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// Input carries everything the engine needs for one computation.
// Return series are daily simple returns, already aligned by the caller.
type Input struct {
	Returns           []float64
	BenchmarkReturns  []float64
	RiskFreeRate      float64 // annual, e.g. 0.05
	InvestableCapital float64
}

// PortfolioMetrics is the fixed record of computed statistics.
// Immutable once computed; either every field is populated or the
// computation has failed.
type PortfolioMetrics struct {
	SchemaVersion int `json:"schemaVersion"`

	// Return
	TotalReturn      float64 `json:"totalReturn"`
	CAGR             float64 `json:"cagr"`
	AnnualizedReturn float64 `json:"annualizedReturn"`

	// Risk
	Volatility  float64 `json:"volatility"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	VaR95       float64 `json:"var95"`
	VaR99       float64 `json:"var99"`
	CVaR95      float64 `json:"cvar95"`
	CVaR99      float64 `json:"cvar99"`
	UlcerIndex  float64 `json:"ulcerIndex"`
	Skewness    float64 `json:"skewness"`
	Kurtosis    float64 `json:"kurtosis"`

	// Risk-adjusted ratios
	SharpeRatio  float64 `json:"sharpeRatio"`
	SortinoRatio float64 `json:"sortinoRatio"`
	CalmarRatio  float64 `json:"calmarRatio"`
	OmegaRatio   float64 `json:"omegaRatio"`
	TailRatio    float64 `json:"tailRatio"`

	// Benchmark-relative (defaults when benchmark data is insufficient)
	Beta             float64 `json:"beta"`
	Alpha            float64 `json:"alpha"`
	RSquared         float64 `json:"rSquared"`
	TrackingError    float64 `json:"trackingError"`
	InformationRatio float64 `json:"informationRatio"`
	TreynorRatio     float64 `json:"treynorRatio"`

	// Liquidity placeholders. Not derived from volume data; kept as the
	// platform's documented simplification.
	LiquidityScore  float64 `json:"liquidityScore"`
	DaysToLiquidate float64 `json:"daysToLiquidate"`

	// Human-readable composites
	SleepScore       float64 `json:"sleepScore"`
	TurbulenceRating float64 `json:"turbulenceRating"`
	WorstCaseDollars float64 `json:"worstCaseDollars"`
}

// TraceStep is one step of a metric derivation.
type TraceStep struct {
	Step        int                    `json:"step"`
	Description string                 `json:"description"`
	Formula     string                 `json:"formula"`
	Inputs      map[string]interface{} `json:"inputs"`
	Result      interface{}            `json:"result"`
}

// CalculationTrace is the ordered derivation of a single metric.
type CalculationTrace struct {
	Metric string      `json:"metric"`
	Steps  []TraceStep `json:"steps"`
}
