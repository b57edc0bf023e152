// Package export copies downloaded datasets into the analytic stores.
package export

import (
	"context"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/storage"
	"dex-market-data/internal/universe"
)

// Source loads datasets. *client.Client implements it.
type Source interface {
	FetchCandles(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) ([]domain.Candle, error)
	FetchLiquidity(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) ([]domain.LiquiditySample, error)
	FetchExchangeUniverse(ctx context.Context) (*universe.ExchangeUniverse, error)
	FetchPairUniverse(ctx context.Context, f reader.PairFilter, exchanges *universe.ExchangeUniverse) (*universe.PairUniverse, error)
}

// Exporter defines the export interface.
type Exporter interface {
	// ExportMetadata writes the exchange and pair universes.
	ExportMetadata(ctx context.Context, f reader.PairFilter) ([]Result, error)

	// ExportCandles writes candles of one bucket that are newer than what
	// the store already holds.
	ExportCandles(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) (Result, error)

	// ExportLiquidity is ExportCandles for liquidity samples.
	ExportLiquidity(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) (Result, error)
}

const defaultBatchSize = 10_000

// Runner implements Exporter.
type Runner struct {
	source         Source
	candleStore    storage.CandleStore
	liquidityStore storage.LiquidityStore
	pairStore      storage.PairStore
	exchangeStore  storage.ExchangeStore

	batchSize int
	fixWicks  bool
	logger    *logrus.Logger
	metrics   *observability.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithBatchSize sets how many rows go into one store insert.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithWickFix clamps broken wicks before rows are written.
func WithWickFix() Option {
	return func(r *Runner) {
		r.fixWicks = true
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Runner) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// NewRunner creates a new export runner.
func NewRunner(
	source Source,
	candleStore storage.CandleStore,
	liquidityStore storage.LiquidityStore,
	pairStore storage.PairStore,
	exchangeStore storage.ExchangeStore,
	opts ...Option,
) *Runner {
	r := &Runner{
		source:         source,
		candleStore:    candleStore,
		liquidityStore: liquidityStore,
		pairStore:      pairStore,
		exchangeStore:  exchangeStore,
		batchSize:      defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

var _ Exporter = (*Runner)(nil)
