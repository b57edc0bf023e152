package normalization

import (
	"fmt"
	"math"

	"dex-market-data/internal/domain"
)

// ResampleCandles aggregates candles into a coarser bucket.
// Candles must be pre-sorted with SortSamples.
//
// Interval alignment: bucket.Truncate(timestamp)
// Aggregation per (pair_id, interval_start):
//   - open = FIRST(open), close = LAST(close)
//   - high = MAX(high), low = MIN(low)
//   - buys, sells, buy_volume, sell_volume = SUM
//   - avg = trade-weighted mean of avg
//   - exchange_rate = LAST(exchange_rate)
//   - start_block = FIRST, end_block = LAST
func ResampleCandles(candles []domain.Candle, bucket domain.TimeBucket) ([]domain.Candle, error) {
	if !bucket.IsValid() {
		return nil, fmt.Errorf("resample: unknown time bucket %q", bucket)
	}
	if len(candles) == 0 {
		return nil, nil
	}

	var result []domain.Candle
	var current *domain.Candle
	var avgWeighted float64

	flush := func() {
		if current == nil {
			return
		}
		if trades := current.Trades(); trades > 0 {
			current.Avg = avgWeighted / float64(trades)
		}
		result = append(result, *current)
	}

	for _, c := range candles {
		start := bucket.Truncate(c.Timestamp)
		if current == nil || current.PairID != c.PairID || !current.Timestamp.Equal(start) {
			// Start new interval
			flush()
			next := c
			next.Timestamp = start
			current = &next
			avgWeighted = c.Avg * float64(c.Trades())
			continue
		}

		// Aggregate into current interval
		current.High = math.Max(current.High, c.High)
		current.Low = math.Min(current.Low, c.Low)
		current.Close = c.Close
		current.ExchangeRate = c.ExchangeRate
		current.Buys += c.Buys
		current.Sells += c.Sells
		current.BuyVolume += c.BuyVolume
		current.SellVolume += c.SellVolume
		current.EndBlock = c.EndBlock
		avgWeighted += c.Avg * float64(c.Trades())
	}
	flush()

	return result, nil
}
