package metrics

import (
	"math"
	"sort"
)

// Engine is the portfolio metrics calculator. Pure computation only: no I/O,
// no clock, no shared state. Data assembly (fetching, alignment, caching)
// belongs to the layers above.
type Engine struct{}

// NewEngine creates a new metrics engine.
func NewEngine() *Engine {
	return &Engine{}
}

// derived holds every intermediate of one computation. Compute and Traces
// both read from it, so a trace's final result always matches the metric.
type derived struct {
	n       int
	rfDaily float64

	values    []float64
	drawdowns []float64
	sorted    []float64

	// Return measures
	totalReturn      float64
	years            float64
	cagr             float64
	annualizedReturn float64
	meanDaily        float64
	sdDaily          float64
	volatility       float64

	// Drawdown
	maxDrawdown float64
	ulcerIndex  float64

	// Tail risk
	varIdx95 int
	varIdx99 int
	var95    float64
	var99    float64
	cvar95   float64
	cvar99   float64

	// Risk-adjusted ratios
	meanExcess  float64
	sdExcess    float64
	sharpe      float64
	downsideDev float64
	sortino     float64
	calmar      float64
	gains       float64
	losses      float64
	omega       float64
	tailCount   int
	worstMean   float64
	bestMean    float64
	tailRatio   float64
	skewness    float64
	kurtosis    float64

	// Benchmark-relative
	benchOK          bool
	alignedDays      int
	benchVar         float64
	cov              float64
	beta             float64
	alpha            float64
	corr             float64
	rSquared         float64
	trackingError    float64
	informationRatio float64
	treynorRatio     float64

	// Composites
	sleepScore       float64
	turbulence       float64
	worstCaseDollars float64
}

// Compute derives the full metric battery from an aligned daily return
// series. Fails with InsufficientDataError below MinObservations; otherwise
// every field of the result is populated.
func (e *Engine) Compute(in Input) (*PortfolioMetrics, error) {
	n := len(in.Returns)
	if n < MinObservations {
		return nil, &InsufficientDataError{Observations: n, Required: MinObservations}
	}

	d := derive(in)

	m := &PortfolioMetrics{SchemaVersion: SchemaVersion}
	m.TotalReturn = Round(d.totalReturn, 4)
	m.CAGR = Round(d.cagr, 4)
	m.AnnualizedReturn = Round(d.annualizedReturn, 4)
	m.Volatility = Round(d.volatility, 4)
	m.MaxDrawdown = Round(d.maxDrawdown, 4)
	m.VaR95 = Round(d.var95, 4)
	m.VaR99 = Round(d.var99, 4)
	m.CVaR95 = Round(d.cvar95, 4)
	m.CVaR99 = Round(d.cvar99, 4)
	m.UlcerIndex = Round(d.ulcerIndex, 4)
	m.Skewness = Round(d.skewness, 4)
	m.Kurtosis = Round(d.kurtosis, 4)
	m.SharpeRatio = Round(d.sharpe, 4)
	m.SortinoRatio = Round(d.sortino, 4)
	m.CalmarRatio = Round(d.calmar, 4)
	m.OmegaRatio = Round(d.omega, 4)
	m.TailRatio = Round(d.tailRatio, 4)
	m.Beta = Round(d.beta, 4)
	m.Alpha = Round(d.alpha, 4)
	m.RSquared = Round(d.rSquared, 2)
	m.TrackingError = Round(d.trackingError, 4)
	m.InformationRatio = Round(d.informationRatio, 4)
	m.TreynorRatio = Round(d.treynorRatio, 4)
	m.LiquidityScore = 85
	m.DaysToLiquidate = 1
	m.SleepScore = Round(d.sleepScore, 4)
	m.TurbulenceRating = Round(d.turbulence, 4)
	m.WorstCaseDollars = Round(d.worstCaseDollars, 2)

	return m, nil
}

// derive runs the full computation once. Callers gate on len(Returns) first.
func derive(in Input) derived {
	n := len(in.Returns)
	d := derived{n: n, rfDaily: in.RiskFreeRate / TradingDaysPerYear}

	d.values = ValueSeries(in.Returns, in.InvestableCapital)
	d.drawdowns = DrawdownSeries(d.values)

	// -------------------------------------------------------------------------
	// Return measures
	// -------------------------------------------------------------------------

	d.totalReturn = (d.values[len(d.values)-1] - d.values[0]) / d.values[0]
	d.years = float64(n) / TradingDaysPerYear

	if d.years > 0 {
		d.cagr = math.Pow(1+d.totalReturn, 1/d.years) - 1
	}

	d.meanDaily = Mean(in.Returns)
	d.sdDaily = StdDev(in.Returns)
	d.annualizedReturn = d.meanDaily * TradingDaysPerYear
	d.volatility = d.sdDaily * math.Sqrt(TradingDaysPerYear)

	// -------------------------------------------------------------------------
	// Drawdown
	// -------------------------------------------------------------------------

	for _, dd := range d.drawdowns {
		if dd > d.maxDrawdown {
			d.maxDrawdown = dd
		}
	}

	var sumSqDD float64
	for _, dd := range d.drawdowns {
		sumSqDD += dd * dd
	}
	d.ulcerIndex = math.Sqrt(sumSqDD / float64(len(d.drawdowns)))

	// -------------------------------------------------------------------------
	// Tail risk: historical VaR / CVaR
	// -------------------------------------------------------------------------

	d.sorted = make([]float64, n)
	copy(d.sorted, in.Returns)
	sort.Float64s(d.sorted)

	d.varIdx95 = int(math.Floor(float64(n) * 0.05))
	d.varIdx99 = int(math.Floor(float64(n) * 0.01))
	d.var95 = tailValue(d.sorted, d.varIdx95)
	d.var99 = tailValue(d.sorted, d.varIdx99)
	d.cvar95 = tailMean(d.sorted, d.varIdx95)
	d.cvar99 = tailMean(d.sorted, d.varIdx99)

	// -------------------------------------------------------------------------
	// Risk-adjusted ratios
	// -------------------------------------------------------------------------

	excess := make([]float64, n)
	for i, r := range in.Returns {
		excess[i] = r - d.rfDaily
	}
	d.meanExcess = Mean(excess)
	d.sdExcess = StdDev(excess)

	if d.sdExcess > 0 {
		d.sharpe = d.meanExcess / d.sdExcess * math.Sqrt(TradingDaysPerYear)
	}

	var sumSqDownside float64
	for _, r := range in.Returns {
		if diff := r - d.rfDaily; diff < 0 {
			sumSqDownside += diff * diff
		}
	}
	d.downsideDev = math.Sqrt(sumSqDownside / float64(n))

	if d.downsideDev > 0 {
		d.sortino = (d.meanDaily - d.rfDaily) / d.downsideDev * math.Sqrt(TradingDaysPerYear)
	} else if d.sharpe > 0 {
		d.sortino = 10
	}

	if d.maxDrawdown > 0 {
		d.calmar = (d.cagr * 100) / d.maxDrawdown
	}

	for _, r := range in.Returns {
		if r > 0 {
			d.gains += r
		} else {
			d.losses += -r
		}
	}
	d.omega = 1.0
	if d.losses > 0 {
		d.omega = 1 + d.gains/d.losses
	} else if d.gains > 0 {
		d.omega = 10
	}

	d.tailCount = int(math.Floor(float64(n) * 0.05))
	if d.tailCount < 1 {
		d.tailCount = 1
	}
	d.worstMean = Mean(d.sorted[:d.tailCount])
	d.bestMean = Mean(d.sorted[n-d.tailCount:])
	d.tailRatio = 1.0
	if d.worstMean != 0 {
		d.tailRatio = d.bestMean / math.Abs(d.worstMean)
	}

	d.skewness = Skewness(in.Returns)
	d.kurtosis = Kurtosis(in.Returns)

	// -------------------------------------------------------------------------
	// Benchmark-relative measures
	// -------------------------------------------------------------------------

	// Defaults when benchmark data is insufficient: market beta, no alpha,
	// no explained variance.
	d.beta = 1.0
	d.benchOK = len(in.BenchmarkReturns) > MinObservations

	if d.benchOK {
		length := n
		if len(in.BenchmarkReturns) < length {
			length = len(in.BenchmarkReturns)
		}
		d.alignedDays = length
		p := in.Returns[:length]
		b := in.BenchmarkReturns[:length]

		d.benchVar = Variance(b)
		d.cov = Covariance(p, b)
		if d.benchVar > 0 {
			d.beta = d.cov / d.benchVar
		}
		d.alpha = (Mean(p) - d.beta*Mean(b)) * TradingDaysPerYear * 100

		d.corr = Correlation(p, b)
		d.rSquared = Clamp(d.corr*d.corr*100, 0, 100)

		diff := make([]float64, length)
		for i := range diff {
			diff[i] = p[i] - b[i]
		}
		d.trackingError = StdDev(diff) * math.Sqrt(TradingDaysPerYear) * 100

		if d.trackingError > 0 {
			d.informationRatio = Mean(diff) * TradingDaysPerYear * 100 / d.trackingError
		}
		if math.Abs(d.beta) > 0.01 {
			d.treynorRatio = (d.annualizedReturn - in.RiskFreeRate) / d.beta
		}
	}

	// -------------------------------------------------------------------------
	// Composites and placeholders
	// -------------------------------------------------------------------------

	d.sleepScore = Clamp(100-d.volatility*100*4, 0, 100)
	d.turbulence = Clamp(d.volatility*100*2+math.Max(0, d.kurtosis)*5+math.Max(0, -d.skewness)*10, 0, 100)
	d.worstCaseDollars = in.InvestableCapital * d.maxDrawdown / 100

	return d
}

// tailValue is the |return| at a sorted-index percentile, as a percentage.
// An index past the available data reads as zero.
func tailValue(sorted []float64, idx int) float64 {
	if idx < 0 || idx >= len(sorted) {
		return 0
	}
	return math.Abs(sorted[idx]) * 100
}

// tailMean is the mean |return| of the max(1, idx) worst observations, as a
// percentage.
func tailMean(sorted []float64, idx int) float64 {
	count := idx
	if count < 1 {
		count = 1
	}
	if count > len(sorted) {
		count = len(sorted)
	}
	var sum float64
	for i := 0; i < count; i++ {
		sum += sorted[i]
	}
	return math.Abs(sum/float64(count)) * 100
}
