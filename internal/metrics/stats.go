package metrics

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// Statistical primitives
// =============================================================================

// Mean returns the arithmetic mean, 0 for an empty series.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Variance returns the sample variance (divisor n-1), 0 for n < 2.
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var sumSq float64
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return sumSq / float64(len(values)-1)
}

// StdDev returns the sample standard deviation.
func StdDev(values []float64) float64 {
	return math.Sqrt(Variance(values))
}

// Covariance returns the sample covariance of two equal-length series,
// 0 when either has fewer than 2 points.
func Covariance(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}

	meanA := Mean(a[:n])
	meanB := Mean(b[:n])

	var sum float64
	for i := 0; i < n; i++ {
		sum += (a[i] - meanA) * (b[i] - meanB)
	}
	return sum / float64(n-1)
}

// Correlation returns the Pearson correlation coefficient, 0 when either
// series is constant.
func Correlation(a, b []float64) float64 {
	sdA := StdDev(a)
	sdB := StdDev(b)
	if sdA == 0 || sdB == 0 {
		return 0
	}
	return Covariance(a, b) / (sdA * sdB)
}

// Skewness returns the bias-corrected sample skewness, 0 for n <= 2 or a
// constant series.
func Skewness(values []float64) float64 {
	n := float64(len(values))
	if len(values) <= 2 {
		return 0
	}

	mean := Mean(values)
	sd := StdDev(values)
	if sd == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		z := (v - mean) / sd
		sum += z * z * z
	}

	return (n / ((n - 1) * (n - 2))) * sum
}

// Kurtosis returns the bias-corrected excess kurtosis, 0 for n <= 3 or a
// constant series.
func Kurtosis(values []float64) float64 {
	n := float64(len(values))
	if len(values) <= 3 {
		return 0
	}

	mean := Mean(values)
	sd := StdDev(values)
	if sd == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		z := (v - mean) / sd
		sum += z * z * z * z
	}

	correction := (n * (n + 1)) / ((n - 1) * (n - 2) * (n - 3))
	excess := (3 * (n - 1) * (n - 1)) / ((n - 2) * (n - 3))

	return correction*sum - excess
}

// Round rounds half up (ties toward positive infinity) at the given number
// of decimals, so -0.00005 at 4 places is 0, not -0.0001. Metric outputs are
// rounded exactly once, at the end of a computation, so repeated runs over
// the same series are bit-identical.
func Round(value float64, places int32) float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(value).
		Shift(places).
		Add(decimal.New(5, -1)).
		Floor().
		Shift(-places).
		Float64()
	return f
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
