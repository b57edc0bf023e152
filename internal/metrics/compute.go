// Package metrics computes per-pair statistics of candle series.
package metrics

import (
	"math"
	"sort"
	"time"

	"dex-market-data/internal/domain"
)

// PairStats summarises one pair's candle series.
type PairStats struct {
	PairID domain.PairID
	Bars   int
	First  time.Time
	Last   time.Time

	// Bar-to-bar close returns
	ReturnMean   float64
	ReturnStddev float64
	ReturnP10    float64
	ReturnMedian float64
	ReturnP90    float64

	// MaxDrawdown is the worst peak-to-trough close decline as a fraction
	// of the peak.
	MaxDrawdown float64
	// MaxConsecutiveDown is the longest run of bars closing below the
	// previous close.
	MaxConsecutiveDown int

	Volume float64 // USD
	Trades int
}

// ComputePairStats calculates statistics from one pair's candles.
// Candles must be sorted by timestamp ASC with no duplicates.
func ComputePairStats(pair domain.PairID, candles []domain.Candle) PairStats {
	s := PairStats{PairID: pair, Bars: len(candles)}
	if len(candles) == 0 {
		return s
	}
	s.First = candles[0].Timestamp
	s.Last = candles[len(candles)-1].Timestamp

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		s.Volume += c.Volume()
		s.Trades += c.Trades()
	}

	returns := computeReturns(closes)
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	s.ReturnMean = computeMean(returns)
	s.ReturnStddev = computeStddev(returns, s.ReturnMean)
	s.ReturnP10 = computePercentile(sorted, 0.10)
	s.ReturnMedian = computePercentile(sorted, 0.50)
	s.ReturnP90 = computePercentile(sorted, 0.90)
	s.MaxDrawdown = computeMaxDrawdown(closes)
	s.MaxConsecutiveDown = computeMaxConsecutiveDown(returns)
	return s
}

// computeReturns returns close-to-close returns. Bars after a zero close
// are skipped.
func computeReturns(closes []float64) []float64 {
	var returns []float64
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, closes[i]/closes[i-1]-1)
	}
	return returns
}

// computeMean calculates arithmetic mean of values.
func computeMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// computeStddev calculates sample standard deviation (n-1 denominator).
func computeStddev(values []float64, mean float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, v := range values {
		diff := v - mean
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// computePercentile uses linear interpolation.
// sorted must be pre-sorted ASC.
// p is percentile (0.10 = 10th percentile).
func computePercentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}

	// Index for percentile (0-based, continuous)
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// computeMaxDrawdown calculates the worst peak-to-trough decline of a
// price path, relative to the peak.
func computeMaxDrawdown(prices []float64) float64 {
	peak := 0.0
	maxDrawdown := 0.0
	for _, p := range prices {
		if p > peak {
			peak = p
		}
		if peak == 0 {
			continue
		}
		if dd := (peak - p) / peak; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}
	return maxDrawdown
}

// computeMaxConsecutiveDown finds the longest streak of negative returns.
func computeMaxConsecutiveDown(returns []float64) int {
	maxStreak := 0
	currentStreak := 0
	for _, r := range returns {
		if r < 0 {
			currentStreak++
			maxStreak = max(maxStreak, currentStreak)
		} else {
			currentStreak = 0
		}
	}
	return maxStreak
}
