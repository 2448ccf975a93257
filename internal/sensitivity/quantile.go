package sensitivity

import (
	"math"
	"sort"

	domain "atomsense/domain/sensitivity"

	"gonum.org/v1/gonum/stat"
)

// Quantile returns the p-quantile of values using the given method.
// values need not be sorted and is not modified. It panics on empty input.
func Quantile(values []float64, p float64, method domain.QuantileMethod) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	switch method {
	case domain.QuantileEmpirical:
		return stat.Quantile(p, stat.Empirical, sorted, nil)
	case domain.QuantileLinInterp:
		return stat.Quantile(p, stat.LinInterp, sorted, nil)
	default:
		return linearQuantile(sorted, p)
	}
}

// linearQuantile interpolates between the order statistics around h=(n-1)p.
// sorted must be ascending and non-empty.
func linearQuantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo < 0 {
		return sorted[0]
	}
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
