package telemetry

import "math"

// Percentile returns the p-th percentile (0..100) of sorted using linear
// interpolation between the closest ranks. sorted must be ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	index := p / 100 * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))
	if lower < 0 {
		lower = 0
	}
	if upper > n-1 {
		upper = n - 1
	}
	if lower == upper {
		return round1(sorted[lower])
	}
	weight := index - float64(lower)
	return round1(sorted[lower]*(1-weight) + sorted[upper]*weight)
}

// Max returns the largest value of sorted, or 0 when empty.
func Max(sorted []float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return round1(sorted[len(sorted)-1])
}

// Mean returns the arithmetic average of values, or 0 when empty.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return round1(sum / float64(len(values)))
}

// round1 rounds half to even at one decimal place.
func round1(v float64) float64 {
	return math.RoundToEven(v*10) / 10
}
