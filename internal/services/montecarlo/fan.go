package montecarlo

import (
	"math"

	"homedash/internal/models"
)

// BuildFanSeries returns one point per month from 0 to round(horizon·12).
// Each quantile is interpolated in a straight line from invested capital at
// month 0 to its simulated terminal value at the horizon. This is a display
// approximation: GBM quantiles do not evolve linearly in time.
func BuildFanSeries(sorted []float64, totalInvested, horizonYears float64) []models.FanPoint {
	totalMonths := int(math.Round(horizonYears * 12))

	targetP10 := Percentile(sorted, 0.1)
	targetP50 := Percentile(sorted, 0.5)
	targetP90 := Percentile(sorted, 0.9)

	series := make([]models.FanPoint, 0, totalMonths+1)
	for m := 0; m <= totalMonths; m++ {
		scale := (float64(m) / 12) / horizonYears
		series = append(series, models.FanPoint{
			MonthIndex: m,
			P10:        fanValue(totalInvested, targetP10, scale),
			P50:        fanValue(totalInvested, targetP50, scale),
			P90:        fanValue(totalInvested, targetP90, scale),
		})
	}
	return series
}

// fanValue never extrapolates past the terminal quantile: when the horizon is
// not a whole number of months the last month may land beyond it
func fanValue(start, target, scale float64) float64 {
	if scale >= 1 {
		return target
	}
	return start + (target-start)*scale
}
