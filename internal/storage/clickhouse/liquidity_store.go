package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

const liquidityTable = "liquidity"

// LiquidityStore implements storage.LiquidityStore using ClickHouse.
type LiquidityStore struct {
	conn *Conn
}

// NewLiquidityStore creates a new LiquidityStore.
func NewLiquidityStore(conn *Conn) *LiquidityStore {
	return &LiquidityStore{conn: conn}
}

var _ storage.LiquidityStore = (*LiquidityStore)(nil)

// InsertBulk adds samples of one bucket. Fails entire batch on duplicate (bucket, pair_id, timestamp).
func (s *LiquidityStore) InsertBulk(ctx context.Context, bucket domain.TimeBucket, samples []domain.LiquiditySample) (err error) {
	if len(samples) == 0 {
		return nil
	}
	if !bucket.IsValid() {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { s.conn.observe("insert_liquidity", start, err) }()

	keys, err := batchKeys(samples)
	if err != nil {
		return err
	}
	if err := s.conn.checkExisting(ctx, liquidityTable, bucket, keys); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO liquidity (
			bucket, pair_id, timestamp, exchange_rate, open, high, low, close,
			adds, removes, syncs, add_volume, remove_volume, start_block, end_block
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, l := range samples {
		err = batch.Append(
			string(bucket), uint32(l.PairID), l.Timestamp.UTC(), l.ExchangeRate,
			l.Open, l.High, l.Low, l.Close,
			l.Adds, l.Removes, l.Syncs, l.AddVolume, l.RemoveVolume,
			l.StartBlock, l.EndBlock,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByPair retrieves all samples of a pair, ordered by timestamp ASC.
func (s *LiquidityStore) GetByPair(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID) ([]domain.LiquiditySample, error) {
	query := `
		SELECT pair_id, timestamp, exchange_rate, open, high, low, close,
			adds, removes, syncs, add_volume, remove_volume, start_block, end_block
		FROM liquidity
		WHERE bucket = ? AND pair_id = ?
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, string(bucket), uint32(pair))
	s.conn.observe("get_liquidity", start, err)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanLiquidity(rows)
}

// GetByTimeRange retrieves samples of a pair within [start, end] (inclusive).
func (s *LiquidityStore) GetByTimeRange(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID, start, end time.Time) ([]domain.LiquiditySample, error) {
	query := `
		SELECT pair_id, timestamp, exchange_rate, open, high, low, close,
			adds, removes, syncs, add_volume, remove_volume, start_block, end_block
		FROM liquidity
		WHERE bucket = ? AND pair_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, string(bucket), uint32(pair), start.UTC(), end.UTC())
	s.conn.observe("get_liquidity", began, err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanLiquidity(rows)
}

// LatestTimestamps returns the newest stored timestamp of every pair in bucket.
func (s *LiquidityStore) LatestTimestamps(ctx context.Context, bucket domain.TimeBucket) (map[domain.PairID]time.Time, error) {
	return s.conn.latestTimestamps(ctx, liquidityTable, bucket)
}

func scanLiquidity(rows chRows) ([]domain.LiquiditySample, error) {
	var samples []domain.LiquiditySample

	for rows.Next() {
		var l domain.LiquiditySample
		var pair uint32
		err := rows.Scan(
			&pair, &l.Timestamp, &l.ExchangeRate,
			&l.Open, &l.High, &l.Low, &l.Close,
			&l.Adds, &l.Removes, &l.Syncs, &l.AddVolume, &l.RemoveVolume,
			&l.StartBlock, &l.EndBlock,
		)
		if err != nil {
			return nil, fmt.Errorf("scan liquidity row: %w", err)
		}
		l.PairID = domain.PairID(pair)
		l.Timestamp = l.Timestamp.UTC()
		samples = append(samples, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate liquidity rows: %w", err)
	}

	return samples, nil
}
