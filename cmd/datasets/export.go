package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/export"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/reporting"
	"dex-market-data/internal/storage"
	chstore "dex-market-data/internal/storage/clickhouse"
	"dex-market-data/internal/storage/memory"
	"dex-market-data/internal/storage/migrations"
	pgstore "dex-market-data/internal/storage/postgres"
)

// allStores holds the export targets.
type allStores struct {
	candles   storage.CandleStore
	liquidity storage.LiquidityStore
	pairs     storage.PairStore
	exchanges storage.ExchangeStore
}

func runExport(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	postgresDSN := fs.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := fs.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := fs.Bool("use-memory", false, "use in-memory stores (dry run)")
	buckets := fs.String("buckets", "1h,1d", "comma-separated candle buckets to export")
	liquidity := fs.Bool("liquidity", false, "also export liquidity for the same buckets")
	metadata := fs.Bool("metadata", true, "export the exchange and pair universes")
	chains := fs.String("chains", "", "comma-separated chain slugs to keep, empty for all")
	wickFix := fs.Bool("wick-fix", false, "clamp broken wicks before writing")
	batchSize := fs.Int("batch-size", 10_000, "rows per store insert")
	reportPath := fs.String("report", "", "write a run report, .csv for CSV and Markdown otherwise, - for stdout")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	bucketList, err := parseBuckets(*buckets)
	if err != nil {
		return err
	}
	pairFilter, err := parseChainFilter(*chains)
	if err != nil {
		return err
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		return errors.New("--postgres-dsn and --clickhouse-dsn are required unless --use-memory is set")
	}

	c, err := env.client()
	if err != nil {
		return err
	}

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, env.logger, env.metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []export.Option{
		export.WithBatchSize(*batchSize),
		export.WithLogger(env.logger),
		export.WithMetrics(env.metrics),
	}
	if *wickFix {
		opts = append(opts, export.WithWickFix())
	}
	runner := export.NewRunner(c, stores.candles, stores.liquidity, stores.pairs, stores.exchanges, opts...)

	var results []export.Result
	if *metadata {
		res, err := runner.ExportMetadata(ctx, pairFilter)
		results = append(results, res...)
		if err != nil {
			return err
		}
	}

	// Series files are bucket-wide, so the chain filter is applied through
	// the pair ids of the filtered universe.
	var seriesFilter reader.Filter
	if len(pairFilter.ChainIDs) > 0 {
		ids, err := chainPairIDs(ctx, c, pairFilter)
		if err != nil {
			return err
		}
		seriesFilter.PairIDs = ids
	}

	for _, bucket := range bucketList {
		res, err := runner.ExportCandles(ctx, bucket, seriesFilter)
		results = append(results, res)
		if err != nil {
			return err
		}
		if *liquidity {
			res, err := runner.ExportLiquidity(ctx, bucket, seriesFilter)
			results = append(results, res)
			if err != nil {
				return err
			}
		}
	}

	printResults(results)
	return env.writeReport(*reportPath, &reporting.Report{
		Endpoint: c.Config().Endpoint,
		Exports:  results,
	})
}

// createStores creates all required stores and applies pending migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool,
	logger *logrus.Logger, metrics *observability.Metrics) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			candles:   memory.NewCandleStore(),
			liquidity: memory.NewLiquidityStore(),
			pairs:     memory.NewPairStore(),
			exchanges: memory.NewExchangeStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	pool.WithMetrics(metrics)
	if err := migrations.RunPostgresMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	// ClickHouse
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	chConn.WithMetrics(metrics)

	stores := &allStores{
		// PostgreSQL stores (metadata)
		pairs:     pgstore.NewPairStore(pool),
		exchanges: pgstore.NewExchangeStore(pool),

		// ClickHouse stores (time series)
		candles:   chstore.NewCandleStore(chConn),
		liquidity: chstore.NewLiquidityStore(chConn),
	}

	cleanup := func() {
		if err := chConn.Close(); err != nil {
			logger.WithError(err).Warn("Close clickhouse connection")
		}
		pool.Close()
	}

	return stores, cleanup, nil
}

func chainPairIDs(ctx context.Context, src export.Source, f reader.PairFilter) ([]domain.PairID, error) {
	exchanges, err := src.FetchExchangeUniverse(ctx)
	if err != nil {
		return nil, err
	}
	pairs, err := src.FetchPairUniverse(ctx, f, exchanges)
	if err != nil {
		return nil, err
	}
	if pairs.Len() == 0 {
		return nil, fmt.Errorf("%w: no pairs on the selected chains", domain.ErrDataUnavailable)
	}
	ids := make([]domain.PairID, 0, pairs.Len())
	for _, p := range pairs.All() {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func parseBuckets(s string) ([]domain.TimeBucket, error) {
	var buckets []domain.TimeBucket
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b, err := domain.ParseTimeBucket(part)
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

func parseChainFilter(s string) (reader.PairFilter, error) {
	var f reader.PairFilter
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, ok := domain.ChainBySlug(part)
		if !ok {
			return f, fmt.Errorf("unknown chain %q", part)
		}
		f.ChainIDs = append(f.ChainIDs, id)
	}
	return f, nil
}

func printResults(results []export.Result) {
	for _, r := range results {
		table := r.Table
		if r.Bucket != "" {
			table += "/" + string(r.Bucket)
		}
		fmt.Printf("%-16s read=%d skipped=%d written=%d\n", table, r.Read, r.Skipped, r.Written)
	}
}
