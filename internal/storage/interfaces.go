package storage

import (
	"context"
	"time"

	"dex-market-data/internal/domain"
)

// CandleStore provides access to exported candle series.
// Rows are keyed by (bucket, pair_id, timestamp).
type CandleStore interface {
	// InsertBulk adds candles of one bucket. Fails entire batch on duplicate key.
	InsertBulk(ctx context.Context, bucket domain.TimeBucket, candles []domain.Candle) error

	// GetByPair retrieves all candles of a pair, ordered by timestamp ASC.
	GetByPair(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID) ([]domain.Candle, error)

	// GetByTimeRange retrieves candles of a pair within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID, start, end time.Time) ([]domain.Candle, error)

	// LatestTimestamps returns the newest stored timestamp of every pair in bucket.
	LatestTimestamps(ctx context.Context, bucket domain.TimeBucket) (map[domain.PairID]time.Time, error)
}

// LiquidityStore provides access to exported liquidity series.
// Rows are keyed by (bucket, pair_id, timestamp).
type LiquidityStore interface {
	// InsertBulk adds samples of one bucket. Fails entire batch on duplicate key.
	InsertBulk(ctx context.Context, bucket domain.TimeBucket, samples []domain.LiquiditySample) error

	// GetByPair retrieves all samples of a pair, ordered by timestamp ASC.
	GetByPair(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID) ([]domain.LiquiditySample, error)

	// GetByTimeRange retrieves samples of a pair within [start, end] (inclusive).
	GetByTimeRange(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID, start, end time.Time) ([]domain.LiquiditySample, error)

	// LatestTimestamps returns the newest stored timestamp of every pair in bucket.
	LatestTimestamps(ctx context.Context, bucket domain.TimeBucket) (map[domain.PairID]time.Time, error)
}

// PairStore provides access to pair metadata. Pair metadata changes between
// snapshots, so writes replace existing rows.
type PairStore interface {
	// Upsert inserts or replaces pairs atomically.
	Upsert(ctx context.Context, pairs []domain.Pair) error

	// GetByID retrieves a pair. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id domain.PairID) (*domain.Pair, error)

	// GetByExchange retrieves all pairs of an exchange, ordered by pair id.
	GetByExchange(ctx context.Context, exchange domain.ExchangeID) ([]domain.Pair, error)
}

// ExchangeStore provides access to exchange metadata.
type ExchangeStore interface {
	// Upsert inserts or replaces exchanges atomically.
	Upsert(ctx context.Context, exchanges []domain.Exchange) error

	// GetByID retrieves an exchange. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id domain.ExchangeID) (*domain.Exchange, error)

	// GetByChain retrieves all exchanges of a chain, ordered by exchange id.
	GetByChain(ctx context.Context, chain domain.ChainID) ([]domain.Exchange, error)
}
