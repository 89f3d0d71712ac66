package montecarlo

import (
	"fmt"
	"sort"

	"homedash/internal/models"
)

// histogramQuantile is the upper bound of the chart range. Outcomes at or
// above it fall outside every bucket, which keeps a long right tail from
// flattening the chart.
const histogramQuantile = 0.98

// BuildHistogram buckets sorted outcomes into bucketCount equal bins over
// [0, p98). Bucket counts sum to at most len(sorted).
func BuildHistogram(sorted []float64, totalInvested float64, bucketCount int) ([]models.BucketDatum, error) {
	if bucketCount < 1 {
		bucketCount = DefaultBucketCount
	}

	maxVal := Percentile(sorted, histogramQuantile)
	if !(maxVal > 0) {
		return nil, &DegeneracyError{Quantile: histogramQuantile, Value: maxVal}
	}

	bucketSize := maxVal / float64(bucketCount)
	buckets := make([]models.BucketDatum, 0, bucketCount)

	for b := 0; b < bucketCount; b++ {
		lo := float64(b) * bucketSize
		hi := float64(b+1) * bucketSize
		if b == bucketCount-1 {
			// the last edge is the cutoff itself so nothing >= maxVal is counted
			hi = maxVal
		}
		mid := (lo + hi) / 2

		// Half-open [lo, hi): first index >= hi minus first index >= lo
		count := sort.SearchFloat64s(sorted, hi) - sort.SearchFloat64s(sorted, lo)

		buckets = append(buckets, models.BucketDatum{
			Label:    formatBucketLabel(lo),
			Midpoint: mid,
			Count:    count,
			Zone:     classifyZone(mid, totalInvested),
		})
	}

	return buckets, nil
}

// classifyZone places a bucket midpoint relative to invested capital
func classifyZone(mid, totalInvested float64) models.Zone {
	switch {
	case mid < totalInvested:
		return models.ZoneLoss
	case mid < 1.5*totalInvested:
		return models.ZoneModerate
	default:
		return models.ZoneGain
	}
}

// formatBucketLabel abbreviates a bucket's lower bound for display
func formatBucketLabel(v float64) string {
	if v >= 1000000 {
		return fmt.Sprintf("$%.1fM", v/1000000)
	}
	return fmt.Sprintf("$%.0fk", v/1000)
}
