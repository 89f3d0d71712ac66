package montecarlo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Statistics summarizes an outcome distribution
type Statistics struct {
	Mean                  float64
	P10                   float64
	P50                   float64
	P90                   float64
	ProbabilityOfLoss     float64 // percent
	ProbabilityOfDoubling float64 // percent
}

// SortedCopy returns the paths sorted ascending, leaving the input untouched
func SortedCopy(paths []float64) []float64 {
	sorted := make([]float64, len(paths))
	copy(sorted, paths)
	sort.Float64s(sorted)
	return sorted
}

// Percentile returns the nearest-rank quantile sorted[min(floor(p·n), n−1)].
// No interpolation between order statistics is done. sorted must be non-empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	idx := int(math.Floor(p * float64(n)))
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// ComputeStatistics derives the summary figures. sorted must be the ascending
// copy of paths.
func ComputeStatistics(paths, sorted []float64, totalInvested float64) Statistics {
	n := float64(len(sorted))

	// Number of outcomes strictly below invested capital
	losses := sort.SearchFloat64s(sorted, totalInvested)
	// Number of outcomes at or above twice invested capital
	doubled := len(sorted) - sort.SearchFloat64s(sorted, 2*totalInvested)

	return Statistics{
		Mean:                  stat.Mean(paths, nil),
		P10:                   Percentile(sorted, 0.1),
		P50:                   Percentile(sorted, 0.5),
		P90:                   Percentile(sorted, 0.9),
		ProbabilityOfLoss:     100 * float64(losses) / n,
		ProbabilityOfDoubling: 100 * float64(doubled) / n,
	}
}
