package export

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/normalization"
	"dex-market-data/internal/reader"
)

// Result summarises one export step.
// Bucket is empty for metadata tables. Skipped counts duplicate rows and
// rows not newer than the store's latest timestamp of their pair.
type Result struct {
	Table   string
	Bucket  domain.TimeBucket
	Read    int
	Skipped int
	Written int
}

// ExportMetadata writes the exchange and pair universes. Pairs are
// written after exchanges so the pair rows carry exchange slugs.
func (r *Runner) ExportMetadata(ctx context.Context, f reader.PairFilter) ([]Result, error) {
	exchanges, err := r.source.FetchExchangeUniverse(ctx)
	if err != nil {
		return nil, fmt.Errorf("load exchanges: %w", err)
	}
	exRes, err := upsertBatches(ctx, r, "exchanges", exchanges.All(), r.exchangeStore.Upsert)
	if err != nil {
		return []Result{exRes}, err
	}

	pairs, err := r.source.FetchPairUniverse(ctx, f, exchanges)
	if err != nil {
		return []Result{exRes}, fmt.Errorf("load pairs: %w", err)
	}
	pairRes, err := upsertBatches(ctx, r, "pairs", pairs.All(), r.pairStore.Upsert)
	return []Result{exRes, pairRes}, err
}

// ExportCandles writes candles of one bucket that are newer than what the
// store already holds, so repeated exports only append.
func (r *Runner) ExportCandles(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) (Result, error) {
	candles, err := r.source.FetchCandles(ctx, bucket, f)
	if err != nil {
		return Result{Table: "candles", Bucket: bucket}, fmt.Errorf("load candles: %w", err)
	}
	return exportSeries(ctx, r, "candles", bucket, candles, normalization.DefaultBadOpenCloseFactor,
		r.candleStore.LatestTimestamps, r.candleStore.InsertBulk)
}

// ExportLiquidity writes liquidity samples like ExportCandles.
func (r *Runner) ExportLiquidity(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) (Result, error) {
	samples, err := r.source.FetchLiquidity(ctx, bucket, f)
	if err != nil {
		return Result{Table: "liquidity", Bucket: bucket}, fmt.Errorf("load liquidity: %w", err)
	}
	// Open and close are only checked against high for candles.
	return exportSeries(ctx, r, "liquidity", bucket, samples, 0,
		r.liquidityStore.LatestTimestamps, r.liquidityStore.InsertBulk)
}

// exportSeries orders and dedupes rows, drops rows the store already has
// and inserts the rest in batches. A failed batch leaves earlier batches
// written; the next run resumes after them.
func exportSeries[T domain.Sample[T]](
	ctx context.Context,
	r *Runner,
	table string,
	bucket domain.TimeBucket,
	rows []T,
	badOpenClose float64,
	latest func(context.Context, domain.TimeBucket) (map[domain.PairID]time.Time, error),
	insert func(context.Context, domain.TimeBucket, []T) error,
) (Result, error) {
	res := Result{Table: table, Bucket: bucket, Read: len(rows)}
	log := r.logger.WithFields(logrus.Fields{"table": table, "bucket": bucket})

	normalization.SortSamples(rows)
	rows = normalization.DedupeSorted(rows)

	if r.fixWicks {
		if fixed := normalization.FixBadWicks(rows, normalization.DefaultWickThreshold, badOpenClose); fixed > 0 {
			log.WithField("rows", fixed).Debug("Fixed bad wicks")
		}
	}

	stored, err := latest(ctx, bucket)
	if err != nil {
		return res, fmt.Errorf("latest %s timestamps: %w", table, err)
	}

	fresh := rows[:0]
	for _, row := range rows {
		if last, ok := stored[row.Key()]; ok && !row.At().After(last) {
			continue
		}
		fresh = append(fresh, row)
	}
	res.Skipped = res.Read - len(fresh)

	for start := 0; start < len(fresh); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+r.batchSize, len(fresh))
		if err := insert(ctx, bucket, fresh[start:end]); err != nil {
			return res, fmt.Errorf("insert %s rows %d-%d: %w", table, start, end, err)
		}
		res.Written += end - start
		r.metrics.RecordExported(table, end-start)
	}

	log.WithFields(logrus.Fields{
		"read":    res.Read,
		"skipped": res.Skipped,
		"written": res.Written,
	}).Info("Export finished")
	return res, nil
}

func upsertBatches[T any](ctx context.Context, r *Runner, table string, rows []T, upsert func(context.Context, []T) error) (Result, error) {
	res := Result{Table: table, Read: len(rows)}
	for start := 0; start < len(rows); start += r.batchSize {
		end := min(start+r.batchSize, len(rows))
		if err := upsert(ctx, rows[start:end]); err != nil {
			return res, fmt.Errorf("upsert %s rows %d-%d: %w", table, start, end, err)
		}
		res.Written += end - start
		r.metrics.RecordExported(table, end-start)
	}
	r.logger.WithFields(logrus.Fields{"table": table, "written": res.Written}).Info("Export finished")
	return res, nil
}
