package domain

import "time"

// OHLC holds the four price points of a bar.
type OHLC struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// PriceKind selects one of the OHLC values.
type PriceKind string

const (
	PriceOpen  PriceKind = "open"
	PriceHigh  PriceKind = "high"
	PriceLow   PriceKind = "low"
	PriceClose PriceKind = "close"
)

// IsValid checks if the kind is one of open, high, low, close.
func (k PriceKind) IsValid() bool {
	switch k {
	case PriceOpen, PriceHigh, PriceLow, PriceClose:
		return true
	}
	return false
}

// Pick returns the value selected by kind.
func (o OHLC) Pick(kind PriceKind) float64 {
	switch kind {
	case PriceOpen:
		return o.Open
	case PriceHigh:
		return o.High
	case PriceLow:
		return o.Low
	default:
		return o.Close
	}
}

// HasZero reports whether any of the price points is zero.
func (o OHLC) HasZero() bool {
	return o.Open == 0 || o.High == 0 || o.Low == 0 || o.Close == 0
}

// Sample is implemented by every per-pair, per-bucket row (candles and
// liquidity samples). Methods return modified copies; rows are values.
type Sample[T any] interface {
	Key() PairID
	At() time.Time
	Prices() OHLC
	WithPrices(OHLC) T
	// ForwardFilled returns a flat bar at the close price, timestamped at,
	// with all activity counters zeroed.
	ForwardFilled(at time.Time) T
}
