package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(pair domain.PairID, hour int, close float64) domain.Candle {
	return domain.Candle{
		PairID:    pair,
		Timestamp: t0.Add(time.Duration(hour) * time.Hour),
		Open:      close, High: close, Low: close, Close: close,
	}
}

func TestCandleStore_InsertBulkAndGet(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.Candle{
		candleAt(1, 1, 11),
		candleAt(1, 0, 10),
		candleAt(2, 0, 20),
	}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByPair(ctx, domain.TimeBucket1h, 1)
	if err != nil {
		t.Fatalf("GetByPair failed: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(result))
	}
	if result[0].Close != 10 || result[1].Close != 11 {
		t.Errorf("Expected timestamp order, got %v then %v", result[0].Close, result[1].Close)
	}

	// Same rows under another bucket are a different series.
	result, _ = store.GetByPair(ctx, domain.TimeBucket1d, 1)
	if len(result) != 0 {
		t.Errorf("Expected no 1d candles, got %d", len(result))
	}
}

func TestCandleStore_DuplicateKey(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.Candle{candleAt(1, 0, 10)}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, candles); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.InsertBulk(ctx, domain.TimeBucket1h, candles)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}

	if err := store.InsertBulk(ctx, domain.TimeBucket4h, candles); err != nil {
		t.Errorf("Same key in another bucket should insert: %v", err)
	}
}

func TestCandleStore_IntraBatchDuplicate(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	candles := []domain.Candle{
		candleAt(1, 0, 10),
		candleAt(1, 0, 11), // duplicate key
	}

	err := store.InsertBulk(ctx, domain.TimeBucket1h, candles)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	result, _ := store.GetByPair(ctx, domain.TimeBucket1h, 1)
	if len(result) != 0 {
		t.Errorf("Expected 0 candles (rollback), got %d", len(result))
	}
}

func TestCandleStore_InvalidInput(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, "2h", []domain.Candle{candleAt(1, 0, 1)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown bucket, got %v", err)
	}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, []domain.Candle{candleAt(0, 0, 1)}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero pair id, got %v", err)
	}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, []domain.Candle{{PairID: 1}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero timestamp, got %v", err)
	}
}

func TestCandleStore_GetByTimeRange(t *testing.T) {
	store := NewCandleStore()
	ctx := context.Background()

	var candles []domain.Candle
	for h := 0; h < 5; h++ {
		candles = append(candles, candleAt(1, h, float64(h)))
	}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, candles); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	result, err := store.GetByTimeRange(ctx, domain.TimeBucket1h, 1, t0.Add(time.Hour), t0.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(result) != 3 {
		t.Fatalf("Expected 3 candles (inclusive range), got %d", len(result))
	}
	if result[0].Close != 1 || result[2].Close != 3 {
		t.Errorf("Unexpected range bounds: %v..%v", result[0].Close, result[2].Close)
	}
}

func TestLiquidityStore_LatestTimestamps(t *testing.T) {
	store := NewLiquidityStore()
	ctx := context.Background()

	samples := []domain.LiquiditySample{
		{PairID: 1, Timestamp: t0, Close: 100},
		{PairID: 1, Timestamp: t0.Add(2 * time.Hour), Close: 120},
		{PairID: 2, Timestamp: t0.Add(time.Hour), Close: 50},
	}
	if err := store.InsertBulk(ctx, domain.TimeBucket1h, samples); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	latest, err := store.LatestTimestamps(ctx, domain.TimeBucket1h)
	if err != nil {
		t.Fatalf("LatestTimestamps failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(latest))
	}
	if !latest[1].Equal(t0.Add(2 * time.Hour)) {
		t.Errorf("pair 1 latest = %v", latest[1])
	}
	if !latest[2].Equal(t0.Add(time.Hour)) {
		t.Errorf("pair 2 latest = %v", latest[2])
	}

	latest, _ = store.LatestTimestamps(ctx, domain.TimeBucket1d)
	if len(latest) != 0 {
		t.Errorf("Expected empty map for unused bucket, got %v", latest)
	}
}
