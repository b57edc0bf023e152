package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/storage"
	"dex-market-data/internal/storage/memory"
	"dex-market-data/internal/universe"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	candles   []domain.Candle
	liquidity []domain.LiquiditySample
	pairs     []domain.Pair
	exchanges []domain.Exchange
	err       error
}

func (s *fakeSource) FetchCandles(_ context.Context, _ domain.TimeBucket, _ reader.Filter) ([]domain.Candle, error) {
	return append([]domain.Candle(nil), s.candles...), s.err
}

func (s *fakeSource) FetchLiquidity(_ context.Context, _ domain.TimeBucket, _ reader.Filter) ([]domain.LiquiditySample, error) {
	return append([]domain.LiquiditySample(nil), s.liquidity...), s.err
}

func (s *fakeSource) FetchExchangeUniverse(_ context.Context) (*universe.ExchangeUniverse, error) {
	return universe.NewExchangeUniverse(s.exchanges), s.err
}

func (s *fakeSource) FetchPairUniverse(_ context.Context, _ reader.PairFilter, ex *universe.ExchangeUniverse) (*universe.PairUniverse, error) {
	return universe.NewPairUniverse(s.pairs, ex), s.err
}

func candle(pair domain.PairID, hour int, close float64) domain.Candle {
	return domain.Candle{
		PairID:    pair,
		Timestamp: t0.Add(time.Duration(hour) * time.Hour),
		Open:      close, High: close, Low: close, Close: close,
	}
}

type stores struct {
	candles   *memory.CandleStore
	liquidity *memory.LiquidityStore
	pairs     *memory.PairStore
	exchanges *memory.ExchangeStore
}

func newRunner(src Source, opts ...Option) (*Runner, stores) {
	s := stores{
		candles:   memory.NewCandleStore(),
		liquidity: memory.NewLiquidityStore(),
		pairs:     memory.NewPairStore(),
		exchanges: memory.NewExchangeStore(),
	}
	return NewRunner(src, s.candles, s.liquidity, s.pairs, s.exchanges, opts...), s
}

func TestRunner_ExportCandles(t *testing.T) {
	src := &fakeSource{candles: []domain.Candle{
		candle(2, 0, 20),
		candle(1, 1, 11),
		candle(1, 0, 10),
		candle(1, 1, 12), // duplicate key, last wins
	}}
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)
	r, s := newRunner(src, WithBatchSize(2), WithMetrics(metrics))
	ctx := context.Background()

	res, err := r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	assert.Equal(t, Result{Table: "candles", Bucket: domain.TimeBucket1h, Read: 4, Skipped: 1, Written: 3}, res)

	got, err := s.candles.GetByPair(ctx, domain.TimeBucket1h, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, float64(12), got[1].Close)

	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.RowsExported.WithLabelValues("candles")))
}

func TestRunner_ExportIsIncremental(t *testing.T) {
	src := &fakeSource{candles: []domain.Candle{candle(1, 0, 10), candle(1, 1, 11)}}
	r, s := newRunner(src)
	ctx := context.Background()

	_, err := r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)

	// A newer snapshot repeats old rows and adds new ones.
	src.candles = append(src.candles, candle(1, 2, 12), candle(3, 0, 30))
	res, err := r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err, "re-export must not hit duplicate keys")
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Skipped)

	got, _ := s.candles.GetByPair(ctx, domain.TimeBucket1h, 1)
	assert.Len(t, got, 3)
}

func TestRunner_WickFix(t *testing.T) {
	bad := candle(1, 0, 10)
	bad.High = 1000
	bad.Low = 0.001
	src := &fakeSource{candles: []domain.Candle{bad}}
	ctx := context.Background()

	r, s := newRunner(src)
	_, err := r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	got, _ := s.candles.GetByPair(ctx, domain.TimeBucket1h, 1)
	assert.Equal(t, float64(1000), got[0].High, "rows are written unchanged without the option")

	r, s = newRunner(src, WithWickFix())
	_, err = r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	got, _ = s.candles.GetByPair(ctx, domain.TimeBucket1h, 1)
	assert.Equal(t, float64(10), got[0].High)
	assert.Equal(t, float64(10), got[0].Low)
}

func TestRunner_ExportLiquidity(t *testing.T) {
	src := &fakeSource{liquidity: []domain.LiquiditySample{
		{PairID: 1, Timestamp: t0.Add(time.Hour), Close: 110},
		{PairID: 1, Timestamp: t0, Close: 100},
	}}
	r, s := newRunner(src)
	ctx := context.Background()

	res, err := r.ExportLiquidity(ctx, domain.TimeBucket1d, reader.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)

	latest, err := s.liquidity.LatestTimestamps(ctx, domain.TimeBucket1d)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), latest[1])
}

func TestRunner_ExportMetadata(t *testing.T) {
	src := &fakeSource{
		exchanges: []domain.Exchange{{ID: 1, ChainID: domain.ChainEthereum, Slug: "uniswap-v2"}},
		pairs: []domain.Pair{
			{ID: 10, ChainID: domain.ChainEthereum, ExchangeID: 1, BaseTokenSymbol: "WETH", QuoteTokenSymbol: "USDC"},
			{ID: 11, ChainID: domain.ChainEthereum, ExchangeID: 1, BaseTokenSymbol: "PEPE", QuoteTokenSymbol: "WETH"},
		},
	}
	r, s := newRunner(src, WithBatchSize(1))
	ctx := context.Background()

	results, err := r.ExportMetadata(ctx, reader.PairFilter{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, results[0].Written)
	assert.Equal(t, 2, results[1].Written)

	p, err := s.pairs.GetByID(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "uniswap-v2", p.ExchangeSlug)

	_, err = s.exchanges.GetByID(ctx, 1)
	require.NoError(t, err)
}

type failingCandleStore struct {
	*memory.CandleStore
	failAfter int
	calls     int
}

func (s *failingCandleStore) InsertBulk(ctx context.Context, bucket domain.TimeBucket, rows []domain.Candle) error {
	s.calls++
	if s.calls > s.failAfter {
		return errors.New("connection reset")
	}
	return s.CandleStore.InsertBulk(ctx, bucket, rows)
}

var _ storage.CandleStore = (*failingCandleStore)(nil)

func TestRunner_ResumesAfterFailedBatch(t *testing.T) {
	src := &fakeSource{candles: []domain.Candle{
		candle(1, 0, 1), candle(1, 1, 2), candle(1, 2, 3), candle(1, 3, 4),
	}}
	store := &failingCandleStore{CandleStore: memory.NewCandleStore(), failAfter: 1}
	r := NewRunner(src, store, memory.NewLiquidityStore(), memory.NewPairStore(), memory.NewExchangeStore(),
		WithBatchSize(2))
	ctx := context.Background()

	res, err := r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.Error(t, err)
	assert.Equal(t, 2, res.Written)

	store.failAfter = 100
	res, err = r.ExportCandles(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 2, res.Skipped)
}

func TestRunner_SourceError(t *testing.T) {
	src := &fakeSource{err: domain.ErrDataUnavailable}
	r, _ := newRunner(src)

	_, err := r.ExportCandles(context.Background(), domain.TimeBucket1h, reader.Filter{})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)

	_, err = r.ExportMetadata(context.Background(), reader.PairFilter{})
	assert.ErrorIs(t, err, domain.ErrDataUnavailable)
}
