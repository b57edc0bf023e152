package domain

import "time"

// Candle is OHLCV data for one trading pair over one time bucket.
// Prices are USD-normalised by the dataset server; ExchangeRate is the
// quote token USD rate used for the conversion.
type Candle struct {
	PairID       PairID
	Timestamp    time.Time // bucket open time, UTC
	ExchangeRate float64
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Buys         uint32
	Sells        uint32
	BuyVolume    float64 // USD
	SellVolume   float64 // USD
	Avg          float64
	StartBlock   uint32
	EndBlock     uint32
}

// Volume returns the total USD volume of the bucket.
func (c Candle) Volume() float64 {
	return c.BuyVolume + c.SellVolume
}

// Trades returns the number of swaps in the bucket.
func (c Candle) Trades() int {
	return int(c.Buys) + int(c.Sells)
}

// IsGreen reports whether the candle closed above its open.
func (c Candle) IsGreen() bool {
	return c.Close >= c.Open
}

func (c Candle) Key() PairID { return c.PairID }
func (c Candle) At() time.Time { return c.Timestamp }
func (c Candle) Prices() OHLC { return OHLC{Open: c.Open, High: c.High, Low: c.Low, Close: c.Close} }

func (c Candle) WithPrices(p OHLC) Candle {
	c.Open, c.High, c.Low, c.Close = p.Open, p.High, p.Low, p.Close
	return c
}

func (c Candle) ForwardFilled(at time.Time) Candle {
	return Candle{
		PairID:       c.PairID,
		Timestamp:    at,
		ExchangeRate: c.ExchangeRate,
		Open:         c.Close,
		High:         c.Close,
		Low:          c.Close,
		Close:        c.Close,
		Avg:          c.Close,
		StartBlock:   c.EndBlock,
		EndBlock:     c.EndBlock,
	}
}

var _ Sample[Candle] = Candle{}
