package verification

import (
	"context"
	"fmt"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/export"
	"dex-market-data/internal/normalization"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/storage"
)

// StoreVerifier compares exported series with a fresh read of the source.
type StoreVerifier struct {
	source         export.Source
	candleStore    storage.CandleStore
	liquidityStore storage.LiquidityStore

	// fixWicks must match the export run, otherwise every clamped row
	// shows up as a divergence.
	fixWicks bool
}

// StoreVerifierOptions contains configuration for creating a StoreVerifier.
type StoreVerifierOptions struct {
	Source         export.Source
	CandleStore    storage.CandleStore
	LiquidityStore storage.LiquidityStore
	FixWicks       bool
}

// NewStoreVerifier creates a new StoreVerifier.
func NewStoreVerifier(opts StoreVerifierOptions) *StoreVerifier {
	return &StoreVerifier{
		source:         opts.Source,
		candleStore:    opts.CandleStore,
		liquidityStore: opts.LiquidityStore,
		fixWicks:       opts.FixWicks,
	}
}

// VerifyCandles compares the stored candles of pairs with the source.
func (v *StoreVerifier) VerifyCandles(ctx context.Context, bucket domain.TimeBucket, pairs []domain.PairID) (*Report, error) {
	source, err := v.source.FetchCandles(ctx, bucket, reader.Filter{PairIDs: pairs})
	if err != nil {
		return nil, fmt.Errorf("load candles: %w", err)
	}
	return verifySeries(ctx, "candles", bucket, pairs, source, normalization.DefaultBadOpenCloseFactor, v.fixWicks,
		v.candleStore.GetByPair)
}

// VerifyLiquidity compares the stored liquidity of pairs with the source.
func (v *StoreVerifier) VerifyLiquidity(ctx context.Context, bucket domain.TimeBucket, pairs []domain.PairID) (*Report, error) {
	source, err := v.source.FetchLiquidity(ctx, bucket, reader.Filter{PairIDs: pairs})
	if err != nil {
		return nil, fmt.Errorf("load liquidity: %w", err)
	}
	return verifySeries(ctx, "liquidity", bucket, pairs, source, 0, v.fixWicks,
		v.liquidityStore.GetByPair)
}

// verifySeries applies the same ordering, dedupe and wick fix as the
// export, then compares pair by pair.
func verifySeries[T domain.Sample[T]](
	ctx context.Context,
	table string,
	bucket domain.TimeBucket,
	pairs []domain.PairID,
	source []T,
	badOpenClose float64,
	fixWicks bool,
	stored func(context.Context, domain.TimeBucket, domain.PairID) ([]T, error),
) (*Report, error) {
	normalization.SortSamples(source)
	source = normalization.DedupeSorted(source)
	if fixWicks {
		normalization.FixBadWicks(source, normalization.DefaultWickThreshold, badOpenClose)
	}

	byPair := make(map[domain.PairID][]T, len(pairs))
	for _, row := range source {
		byPair[row.Key()] = append(byPair[row.Key()], row)
	}

	report := &Report{}
	for _, pair := range pairs {
		got, err := stored(ctx, bucket, pair)
		if err != nil {
			return report, fmt.Errorf("read stored %s of pair %d: %w", table, pair, err)
		}
		report.add(Result{
			Subject:     fmt.Sprintf("%s/%s/%d", table, bucket, pair),
			Divergences: CompareSeries(byPair[pair], got),
		})
	}
	return report, nil
}
