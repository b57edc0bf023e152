package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

type seriesKey struct {
	bucket domain.TimeBucket
	pair   domain.PairID
	ts     int64 // unix nanoseconds
}

// SeriesStore is an in-memory implementation of storage.CandleStore and
// storage.LiquidityStore.
type SeriesStore[T domain.Sample[T]] struct {
	mu   sync.RWMutex
	data map[seriesKey]T
}

// CandleStore stores candles.
type CandleStore = SeriesStore[domain.Candle]

// LiquidityStore stores liquidity samples.
type LiquidityStore = SeriesStore[domain.LiquiditySample]

// NewCandleStore creates a new in-memory candle store.
func NewCandleStore() *CandleStore {
	return &CandleStore{data: make(map[seriesKey]domain.Candle)}
}

// NewLiquidityStore creates a new in-memory liquidity store.
func NewLiquidityStore() *LiquidityStore {
	return &LiquidityStore{data: make(map[seriesKey]domain.LiquiditySample)}
}

func keyOf[T domain.Sample[T]](bucket domain.TimeBucket, row T) seriesKey {
	return seriesKey{bucket: bucket, pair: row.Key(), ts: row.At().UnixNano()}
}

// InsertBulk adds rows of one bucket. Fails entire batch on duplicate.
func (s *SeriesStore[T]) InsertBulk(_ context.Context, bucket domain.TimeBucket, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if !bucket.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[seriesKey]struct{}, len(rows))

	// First pass: check for duplicates (existing + intra-batch)
	for _, r := range rows {
		if r.Key() == 0 || r.At().IsZero() {
			return storage.ErrInvalidInput
		}
		key := keyOf(bucket, r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		s.data[keyOf(bucket, r)] = r
	}
	return nil
}

// GetByPair retrieves all rows of a pair, ordered by timestamp ASC.
func (s *SeriesStore[T]) GetByPair(_ context.Context, bucket domain.TimeBucket, pair domain.PairID) ([]T, error) {
	return s.collect(bucket, pair, func(time.Time) bool { return true }), nil
}

// GetByTimeRange retrieves rows of a pair within [start, end] (inclusive).
func (s *SeriesStore[T]) GetByTimeRange(_ context.Context, bucket domain.TimeBucket, pair domain.PairID, start, end time.Time) ([]T, error) {
	return s.collect(bucket, pair, func(ts time.Time) bool {
		return !ts.Before(start) && !ts.After(end)
	}), nil
}

// LatestTimestamps returns the newest timestamp of every pair in bucket.
func (s *SeriesStore[T]) LatestTimestamps(_ context.Context, bucket domain.TimeBucket) (map[domain.PairID]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[domain.PairID]time.Time)
	for k, r := range s.data {
		if k.bucket != bucket {
			continue
		}
		if cur, ok := latest[k.pair]; !ok || r.At().After(cur) {
			latest[k.pair] = r.At()
		}
	}
	return latest, nil
}

func (s *SeriesStore[T]) collect(bucket domain.TimeBucket, pair domain.PairID, keep func(time.Time) bool) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []T
	for k, r := range s.data {
		if k.bucket == bucket && k.pair == pair && keep(r.At()) {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].At().Before(result[j].At())
	})
	return result
}

var (
	_ storage.CandleStore    = (*CandleStore)(nil)
	_ storage.LiquidityStore = (*LiquidityStore)(nil)
)
