// Package stats computes statistics over assets and their price histories,
// used by strategies to make decisions.
package stats

import (
	"github.com/montanaflynn/stats"

	"snowbanker/internal/asset"
)

// RateOfReturn computes the simple rate of return between a beginning and
// ending value, as a percentage rounded to four decimal places.
func RateOfReturn(begin, end float64) float64 {
	if begin == 0 {
		begin = 0.00001 // avoid division by zero
	}
	r, _ := stats.Round(((end-begin)/begin)*100.0, 4)
	return r
}

// HistoryRateOfReturn computes the rate of return across an asset's recorded
// price history, earliest to latest. Assets with fewer than two points
// return zero.
func HistoryRateOfReturn(a *asset.Asset) float64 {
	first, last := a.EarliestPrice(), a.LatestPrice()
	if first == nil || last == nil || first == last {
		return 0
	}
	return RateOfReturn(first.Price, last.Price)
}

// HistoryMean returns the mean of an asset's recorded prices.
func HistoryMean(a *asset.Asset) (float64, error) {
	return stats.Mean(prices(a))
}

// HistoryStdDev returns the sample standard deviation of an asset's recorded
// prices.
func HistoryStdDev(a *asset.Asset) (float64, error) {
	return stats.StandardDeviationSample(prices(a))
}

// MaxDrawdown returns the largest peak-to-trough decline across the price
// history, as a fraction of the peak. Zero when the history never declines.
func MaxDrawdown(a *asset.Asset) float64 {
	peak, worst := 0.0, 0.0
	for _, p := range a.History {
		if p.Price > peak {
			peak = p.Price
		}
		if peak > 0 {
			dd := (peak - p.Price) / peak
			if dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func prices(a *asset.Asset) []float64 {
	out := make([]float64, 0, len(a.History))
	for _, p := range a.History {
		out = append(out, p.Price)
	}
	return out
}
