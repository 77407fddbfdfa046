package metrics

import "fmt"

// Traces generates the step-by-step derivation for every metric of the
// battery. Purely descriptive: a deterministic function of the same input the
// engine computes from, with no effect on metric values and no reliance on
// cache state. Generated fresh on every request that asks for them.
func (e *Engine) Traces(in Input) []CalculationTrace {
	n := len(in.Returns)
	if n == 0 {
		return nil
	}

	d := derive(in)
	finalValue := d.values[len(d.values)-1]

	traces := []CalculationTrace{
		{
			Metric: "totalReturn",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Compound daily returns onto starting capital",
					Formula:     "V_t = V_{t-1} * (1 + R_t), V_0 = capital",
					Inputs: map[string]interface{}{
						"capital":     num(in.InvestableCapital, 2),
						"tradingDays": n,
					},
					Result: num(finalValue, 2),
				},
				{
					Step:        2,
					Description: "Total return over the period",
					Formula:     "(V_n - V_0) / V_0",
					Inputs: map[string]interface{}{
						"V_0": num(in.InvestableCapital, 2),
						"V_n": num(finalValue, 2),
					},
					Result: num(d.totalReturn, 4),
				},
			},
		},
		{
			Metric: "cagr",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Convert trading days to years",
					Formula:     "years = n / 252",
					Inputs:      map[string]interface{}{"n": n},
					Result:      num(d.years, 4),
				},
				{
					Step:        2,
					Description: "Annualize the total return",
					Formula:     "(1 + totalReturn)^(1/years) - 1",
					Inputs: map[string]interface{}{
						"totalReturn": num(d.totalReturn, 4),
						"years":       num(d.years, 4),
					},
					Result: num(d.cagr, 4),
				},
			},
		},
		{
			Metric: "annualizedReturn",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Scale the mean daily return to a trading year",
					Formula:     "mean(R) * 252",
					Inputs:      map[string]interface{}{"meanDaily": num(d.meanDaily, 6)},
					Result:      num(d.annualizedReturn, 4),
				},
			},
		},
		{
			Metric: "volatility",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Sample standard deviation of daily returns",
					Formula:     "stdDev(R), divisor n-1",
					Inputs: map[string]interface{}{
						"n":         n,
						"meanDaily": num(d.meanDaily, 6),
					},
					Result: num(d.sdDaily, 6),
				},
				{
					Step:        2,
					Description: "Annualize with the square-root-of-time rule",
					Formula:     "stdDev(R) * sqrt(252)",
					Inputs:      map[string]interface{}{"dailyStdDev": num(d.sdDaily, 6)},
					Result:      num(d.volatility, 4),
				},
			},
		},
		{
			Metric: "maxDrawdown",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Track the running peak of the value series",
					Formula:     "P_t = max(V_0..V_t)",
					Inputs:      map[string]interface{}{"points": len(d.values)},
					Result:      num(peakOf(d.values), 2),
				},
				{
					Step:        2,
					Description: "Largest percentage decline from any peak",
					Formula:     "max((P_t - V_t) / P_t * 100)",
					Inputs:      map[string]interface{}{"points": len(d.drawdowns)},
					Result:      num(d.maxDrawdown, 4),
				},
			},
		},
		{
			Metric: "ulcerIndex",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Root mean square of the percentage drawdown series",
					Formula:     "sqrt(mean(DD_t^2))",
					Inputs:      map[string]interface{}{"points": len(d.drawdowns)},
					Result:      num(d.ulcerIndex, 4),
				},
			},
		},
		{
			Metric: "var95",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Sort daily returns ascending and locate the 5th percentile",
					Formula:     "index = floor(n * 0.05)",
					Inputs:      map[string]interface{}{"n": n},
					Result:      d.varIdx95,
				},
				{
					Step:        2,
					Description: "Loss threshold at 95% confidence",
					Formula:     "|R_sorted[index]| * 100",
					Inputs:      map[string]interface{}{"R_sorted[index]": num(sortedAt(d.sorted, d.varIdx95), 6)},
					Result:      num(d.var95, 4),
				},
			},
		},
		{
			Metric: "var99",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Sort daily returns ascending and locate the 1st percentile",
					Formula:     "index = floor(n * 0.01)",
					Inputs:      map[string]interface{}{"n": n},
					Result:      d.varIdx99,
				},
				{
					Step:        2,
					Description: "Loss threshold at 99% confidence",
					Formula:     "|R_sorted[index]| * 100",
					Inputs:      map[string]interface{}{"R_sorted[index]": num(sortedAt(d.sorted, d.varIdx99), 6)},
					Result:      num(d.var99, 4),
				},
			},
		},
		{
			Metric: "cvar95",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Mean of the worst max(1, index) daily returns",
					Formula:     "|mean(R_sorted[0..max(1,index)])| * 100",
					Inputs: map[string]interface{}{
						"index": d.varIdx95,
						"n":     n,
					},
					Result: num(d.cvar95, 4),
				},
			},
		},
		{
			Metric: "cvar99",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Mean of the worst max(1, index) daily returns",
					Formula:     "|mean(R_sorted[0..max(1,index)])| * 100",
					Inputs: map[string]interface{}{
						"index": d.varIdx99,
						"n":     n,
					},
					Result: num(d.cvar99, 4),
				},
			},
		},
		{
			Metric: "sharpeRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Daily excess returns over the risk-free rate",
					Formula:     "R_i - riskFreeRate/252",
					Inputs: map[string]interface{}{
						"riskFreeRate": num(in.RiskFreeRate, 4),
						"rfDaily":      num(d.rfDaily, 6),
					},
					Result: num(d.meanExcess, 6),
				},
				{
					Step:        2,
					Description: "Annualized ratio of mean excess return to its deviation",
					Formula:     "mean(excess) / stdDev(excess) * sqrt(252)",
					Inputs: map[string]interface{}{
						"meanExcess":   num(d.meanExcess, 6),
						"stdDevExcess": num(d.sdExcess, 6),
					},
					Result: num(d.sharpe, 4),
				},
			},
		},
		{
			Metric: "sortinoRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Downside deviation from sub-risk-free returns only",
					Formula:     "sqrt(mean(min(0, R_i - rfDaily)^2))",
					Inputs:      map[string]interface{}{"rfDaily": num(d.rfDaily, 6)},
					Result:      num(d.downsideDev, 6),
				},
				{
					Step:        2,
					Description: "Annualized excess return per unit of downside risk",
					Formula:     "(mean(R) - rfDaily) / downsideDev * sqrt(252)",
					Inputs: map[string]interface{}{
						"meanDaily":   num(d.meanDaily, 6),
						"downsideDev": num(d.downsideDev, 6),
					},
					Result: num(d.sortino, 4),
				},
			},
		},
		{
			Metric: "calmarRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Annual growth per unit of worst historical drawdown",
					Formula:     "(cagr * 100) / maxDrawdown, 0 when maxDrawdown is 0",
					Inputs: map[string]interface{}{
						"cagr":        num(d.cagr, 4),
						"maxDrawdown": num(d.maxDrawdown, 4),
					},
					Result: num(d.calmar, 4),
				},
			},
		},
		{
			Metric: "omegaRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Total gains against total losses",
					Formula:     "1 + sum(R_i > 0) / |sum(R_i < 0)|, capped at 10 when lossless",
					Inputs: map[string]interface{}{
						"gains":  num(d.gains, 6),
						"losses": num(d.losses, 6),
					},
					Result: num(d.omega, 4),
				},
			},
		},
		{
			Metric: "tailRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Mean of the best 5% of days against the worst 5%",
					Formula:     "mean(R_sorted[n-k..]) / |mean(R_sorted[..k])|, k = max(1, floor(n*0.05))",
					Inputs: map[string]interface{}{
						"tailCount": d.tailCount,
						"bestMean":  num(d.bestMean, 6),
						"worstMean": num(d.worstMean, 6),
					},
					Result: num(d.tailRatio, 4),
				},
			},
		},
		{
			Metric: "skewness",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Bias-corrected sample skewness of daily returns",
					Formula:     "n / ((n-1)(n-2)) * sum(((R_i - mean) / s)^3)",
					Inputs: map[string]interface{}{
						"n":           n,
						"dailyStdDev": num(d.sdDaily, 6),
					},
					Result: num(d.skewness, 4),
				},
			},
		},
		{
			Metric: "kurtosis",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Bias-corrected excess kurtosis of daily returns",
					Formula:     "n(n+1) / ((n-1)(n-2)(n-3)) * sum(z^4) - 3(n-1)^2 / ((n-2)(n-3))",
					Inputs: map[string]interface{}{
						"n":           n,
						"dailyStdDev": num(d.sdDaily, 6),
					},
					Result: num(d.kurtosis, 4),
				},
			},
		},
	}

	if d.benchOK {
		traces = append(traces, benchmarkTraces(in, d)...)
	}

	traces = append(traces,
		CalculationTrace{
			Metric: "liquidityScore",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Fixed placeholder until per-ticker volume data is wired in",
					Formula:     "85",
					Inputs:      map[string]interface{}{},
					Result:      float64(85),
				},
			},
		},
		CalculationTrace{
			Metric: "daysToLiquidate",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Fixed placeholder until per-ticker volume data is wired in",
					Formula:     "1",
					Inputs:      map[string]interface{}{},
					Result:      float64(1),
				},
			},
		},
		CalculationTrace{
			Metric: "sleepScore",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Calm-portfolio score from annualized volatility",
					Formula:     "clamp(100 - volatility * 100 * 4, 0, 100)",
					Inputs:      map[string]interface{}{"volatility": num(d.volatility, 4)},
					Result:      num(d.sleepScore, 4),
				},
			},
		},
		CalculationTrace{
			Metric: "turbulenceRating",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Composite of volatility, fat tails and downside asymmetry",
					Formula:     "clamp(vol*100*2 + max(0, kurtosis)*5 + max(0, -skewness)*10, 0, 100)",
					Inputs: map[string]interface{}{
						"volatility": num(d.volatility, 4),
						"kurtosis":   num(d.kurtosis, 4),
						"skewness":   num(d.skewness, 4),
					},
					Result: num(d.turbulence, 4),
				},
			},
		},
		CalculationTrace{
			Metric: "worstCaseDollars",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Max drawdown applied to the invested capital",
					Formula:     "capital * maxDrawdown / 100",
					Inputs: map[string]interface{}{
						"capital":     num(in.InvestableCapital, 2),
						"maxDrawdown": num(d.maxDrawdown, 4),
					},
					Result: num(d.worstCaseDollars, 2),
				},
			},
		},
	)

	return traces
}

// benchmarkTraces derives the benchmark-relative metrics.
func benchmarkTraces(in Input, d derived) []CalculationTrace {
	p := in.Returns[:d.alignedDays]
	b := in.BenchmarkReturns[:d.alignedDays]

	return []CalculationTrace{
		{
			Metric: "beta",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Covariance of portfolio and benchmark daily returns",
					Formula:     "cov(portfolio, benchmark)",
					Inputs:      map[string]interface{}{"alignedDays": d.alignedDays},
					Result:      num(d.cov, 6),
				},
				{
					Step:        2,
					Description: "Sensitivity to benchmark moves",
					Formula:     "cov(p, b) / var(b)",
					Inputs: map[string]interface{}{
						"covariance":   num(d.cov, 6),
						"benchmarkVar": num(d.benchVar, 6),
					},
					Result: num(d.beta, 4),
				},
			},
		},
		{
			Metric: "alpha",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Annualized return unexplained by benchmark exposure",
					Formula:     "(mean(p) - beta * mean(b)) * 252 * 100",
					Inputs: map[string]interface{}{
						"meanPortfolio": num(Mean(p), 6),
						"meanBenchmark": num(Mean(b), 6),
						"beta":          num(d.beta, 4),
					},
					Result: num(d.alpha, 4),
				},
			},
		},
		{
			Metric: "rSquared",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Share of portfolio variance explained by the benchmark",
					Formula:     "clamp(corr(p, b)^2 * 100, 0, 100)",
					Inputs: map[string]interface{}{
						"correlation": num(d.corr, 6),
						"alignedDays": d.alignedDays,
					},
					Result: num(d.rSquared, 2),
				},
			},
		},
		{
			Metric: "trackingError",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Annualized deviation of the active return series",
					Formula:     "stdDev(p - b) * sqrt(252) * 100",
					Inputs:      map[string]interface{}{"alignedDays": d.alignedDays},
					Result:      num(d.trackingError, 4),
				},
			},
		},
		{
			Metric: "informationRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Annualized active return per unit of tracking error",
					Formula:     "mean(p - b) * 252 * 100 / trackingError, 0 when trackingError is 0",
					Inputs:      map[string]interface{}{"trackingError": num(d.trackingError, 4)},
					Result:      num(d.informationRatio, 4),
				},
			},
		},
		{
			Metric: "treynorRatio",
			Steps: []TraceStep{
				{
					Step:        1,
					Description: "Annualized excess return per unit of benchmark exposure",
					Formula:     "(annualizedReturn - riskFreeRate) / beta, 0 when |beta| <= 0.01",
					Inputs: map[string]interface{}{
						"annualizedReturn": num(d.annualizedReturn, 4),
						"riskFreeRate":     num(in.RiskFreeRate, 4),
						"beta":             num(d.beta, 4),
					},
					Result: num(d.treynorRatio, 4),
				},
			},
		},
	}
}

// num rounds a trace value for stable output.
func num(v float64, places int32) float64 {
	return Round(v, places)
}

func peakOf(values []float64) float64 {
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	return peak
}

func sortedAt(sorted []float64, idx int) float64 {
	if idx < 0 || idx >= len(sorted) {
		return 0
	}
	return sorted[idx]
}

// TraceCount is a convenience for logging how many metrics were traced.
func TraceCount(traces []CalculationTrace) string {
	return fmt.Sprintf("%d metrics, %d steps", len(traces), totalSteps(traces))
}

func totalSteps(traces []CalculationTrace) int {
	n := 0
	for _, t := range traces {
		n += len(t.Steps)
	}
	return n
}
