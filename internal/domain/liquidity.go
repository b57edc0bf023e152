package domain

import "time"

// LiquiditySample is the XY liquidity of a pair over one time bucket,
// measured in USD on the quote-token side.
type LiquiditySample struct {
	PairID       PairID
	Timestamp    time.Time // bucket open time, UTC
	ExchangeRate float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Adds         uint32 // liquidity add events
	Removes      uint32 // liquidity remove events
	Syncs        uint32 // reserve sync events
	AddVolume    float64
	RemoveVolume float64
	StartBlock   uint32
	EndBlock     uint32
}

func (s LiquiditySample) Key() PairID { return s.PairID }
func (s LiquiditySample) At() time.Time { return s.Timestamp }

func (s LiquiditySample) Prices() OHLC {
	return OHLC{Open: s.Open, High: s.High, Low: s.Low, Close: s.Close}
}

func (s LiquiditySample) WithPrices(p OHLC) LiquiditySample {
	s.Open, s.High, s.Low, s.Close = p.Open, p.High, p.Low, p.Close
	return s
}

func (s LiquiditySample) ForwardFilled(at time.Time) LiquiditySample {
	return LiquiditySample{
		PairID:       s.PairID,
		Timestamp:    at,
		ExchangeRate: s.ExchangeRate,
		Open:         s.Close,
		High:         s.Close,
		Low:          s.Close,
		Close:        s.Close,
		StartBlock:   s.EndBlock,
		EndBlock:     s.EndBlock,
	}
}

var _ Sample[LiquiditySample] = LiquiditySample{}
