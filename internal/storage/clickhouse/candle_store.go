package clickhouse

import (
	"context"
	"fmt"
	"time"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/storage"
)

const candlesTable = "candles"

// CandleStore implements storage.CandleStore using ClickHouse.
type CandleStore struct {
	conn *Conn
}

// NewCandleStore creates a new CandleStore.
func NewCandleStore(conn *Conn) *CandleStore {
	return &CandleStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CandleStore = (*CandleStore)(nil)

// InsertBulk adds candles of one bucket. Fails entire batch on duplicate (bucket, pair_id, timestamp).
func (s *CandleStore) InsertBulk(ctx context.Context, bucket domain.TimeBucket, candles []domain.Candle) (err error) {
	if len(candles) == 0 {
		return nil
	}
	if !bucket.IsValid() {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	defer func() { s.conn.observe("insert_candles", start, err) }()

	keys, err := batchKeys(candles)
	if err != nil {
		return err
	}
	if err := s.conn.checkExisting(ctx, candlesTable, bucket, keys); err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO candles (
			bucket, pair_id, timestamp, exchange_rate, open, high, low, close,
			buys, sells, buy_volume, sell_volume, avg, start_block, end_block
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, c := range candles {
		err = batch.Append(
			string(bucket), uint32(c.PairID), c.Timestamp.UTC(), c.ExchangeRate,
			c.Open, c.High, c.Low, c.Close,
			c.Buys, c.Sells, c.BuyVolume, c.SellVolume, c.Avg,
			c.StartBlock, c.EndBlock,
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

// GetByPair retrieves all candles of a pair, ordered by timestamp ASC.
func (s *CandleStore) GetByPair(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID) ([]domain.Candle, error) {
	query := `
		SELECT pair_id, timestamp, exchange_rate, open, high, low, close,
			buys, sells, buy_volume, sell_volume, avg, start_block, end_block
		FROM candles
		WHERE bucket = ? AND pair_id = ?
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, string(bucket), uint32(pair))
	s.conn.observe("get_candles", start, err)
	if err != nil {
		return nil, fmt.Errorf("query by pair: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// GetByTimeRange retrieves candles of a pair within [start, end] (inclusive).
func (s *CandleStore) GetByTimeRange(ctx context.Context, bucket domain.TimeBucket, pair domain.PairID, start, end time.Time) ([]domain.Candle, error) {
	query := `
		SELECT pair_id, timestamp, exchange_rate, open, high, low, close,
			buys, sells, buy_volume, sell_volume, avg, start_block, end_block
		FROM candles
		WHERE bucket = ? AND pair_id = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	began := time.Now()
	rows, err := s.conn.Query(ctx, query, string(bucket), uint32(pair), start.UTC(), end.UTC())
	s.conn.observe("get_candles", began, err)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanCandles(rows)
}

// LatestTimestamps returns the newest stored timestamp of every pair in bucket.
func (s *CandleStore) LatestTimestamps(ctx context.Context, bucket domain.TimeBucket) (map[domain.PairID]time.Time, error) {
	return s.conn.latestTimestamps(ctx, candlesTable, bucket)
}

// scanCandles scans multiple rows.
func scanCandles(rows chRows) ([]domain.Candle, error) {
	var candles []domain.Candle

	for rows.Next() {
		var c domain.Candle
		var pair uint32
		err := rows.Scan(
			&pair, &c.Timestamp, &c.ExchangeRate,
			&c.Open, &c.High, &c.Low, &c.Close,
			&c.Buys, &c.Sells, &c.BuyVolume, &c.SellVolume, &c.Avg,
			&c.StartBlock, &c.EndBlock,
		)
		if err != nil {
			return nil, fmt.Errorf("scan candle row: %w", err)
		}
		c.PairID = domain.PairID(pair)
		c.Timestamp = c.Timestamp.UTC()
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candle rows: %w", err)
	}

	return candles, nil
}
