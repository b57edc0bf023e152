package normalization

import "dex-market-data/internal/domain"

// WickThreshold bounds high and low relative to the close of the same bar.
type WickThreshold struct {
	Low  float64 // low < close*Low is replaced by close
	High float64 // high > close*High is replaced by close
}

// DefaultWickThreshold accepts wicks down to 10% and up to 190% of close.
var DefaultWickThreshold = WickThreshold{Low: 0.1, High: 1.9}

// DefaultBadOpenCloseFactor marks open or close values above 3x high as broken.
const DefaultBadOpenCloseFactor = 3.0

// FixBadWicks clamps out-of-sample high/low values caused by flash loans
// and oracle manipulation. Open and close values above high*badOpenClose
// are replaced by high. Pass badOpenClose <= 0 to skip that step, which
// is what liquidity samples want.
//
// Rows are modified in place. Returns the number of rows changed.
func FixBadWicks[T domain.Sample[T]](rows []T, th WickThreshold, badOpenClose float64) int {
	fixed := 0
	for i, r := range rows {
		p := r.Prices()
		orig := p

		if p.High > p.Close*th.High {
			p.High = p.Close
		}
		if p.Low < p.Close*th.Low {
			p.Low = p.Close
		}
		if badOpenClose > 0 {
			if p.Open > p.High*badOpenClose {
				p.Open = p.High
			}
			if p.Close > p.High*badOpenClose {
				p.Close = p.High
			}
		}

		if p != orig {
			rows[i] = r.WithPrices(p)
			fixed++
		}
	}
	return fixed
}

// RemoveZeroCandles drops rows where any of open, high, low or close is zero.
// Returns a new slice.
func RemoveZeroCandles[T domain.Sample[T]](rows []T) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if r.Prices().HasZero() {
			continue
		}
		out = append(out, r)
	}
	return out
}
