package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/reporting"
	"dex-market-data/internal/verification"
)

var errDivergent = errors.New("verification found divergences")

func runVerify(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	purge := fs.Bool("purge", false, "purge cached files that fail verification")
	store := fs.Bool("store", false, "compare exported rows with the source instead of checking the cache")
	postgresDSN := fs.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := fs.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	bucket := fs.String("bucket", "1h", "time bucket to compare (--store)")
	pairs := fs.String("pairs", "", "comma-separated pair ids to compare (--store)")
	liquidity := fs.Bool("liquidity", false, "compare liquidity instead of candles (--store)")
	wickFix := fs.Bool("wick-fix", false, "the export ran with --wick-fix (--store)")
	reportPath := fs.String("report", "", "write a Markdown report, - for stdout")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	c, err := env.client()
	if err != nil {
		return err
	}

	var report *verification.Report
	if *store {
		b, err := domain.ParseTimeBucket(*bucket)
		if err != nil {
			return err
		}
		ids, err := parsePairIDs(*pairs)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return errors.New("--store needs --pairs")
		}
		if *postgresDSN == "" || *clickhouseDSN == "" {
			return errors.New("--postgres-dsn and --clickhouse-dsn are required with --store")
		}
		stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, false, env.logger, env.metrics)
		if err != nil {
			return err
		}
		defer cleanup()

		v := verification.NewStoreVerifier(verification.StoreVerifierOptions{
			Source:         c,
			CandleStore:    stores.candles,
			LiquidityStore: stores.liquidity,
			FixWicks:       *wickFix,
		})
		if *liquidity {
			report, err = v.VerifyLiquidity(ctx, b, ids)
		} else {
			report, err = v.VerifyCandles(ctx, b, ids)
		}
		if err != nil {
			return err
		}
	} else {
		t := c.Transport()
		report, err = verification.NewCacheVerifier(t, c.Reader()).VerifyAll(ctx)
		if err != nil {
			return err
		}
		if *purge {
			for _, res := range report.Results {
				if res.Match {
					continue
				}
				if err := t.Purge(res.Subject); err != nil {
					return err
				}
			}
		}
	}

	printReport(report)
	if err := env.writeReport(*reportPath, &reporting.Report{
		Endpoint:     c.Config().Endpoint,
		Verification: report,
	}); err != nil {
		return err
	}
	if report.Divergent > 0 && !*purge {
		return fmt.Errorf("%w: %d of %d", errDivergent, report.Divergent, report.Total)
	}
	return nil
}

func printReport(r *verification.Report) {
	for _, res := range r.Results {
		if res.Match {
			fmt.Printf("ok    %s\n", res.Subject)
			continue
		}
		fmt.Printf("FAIL  %s\n", res.Subject)
		for _, d := range res.Divergences {
			fmt.Printf("      %s\n", d)
		}
	}
	fmt.Printf("%d checked, %d ok, %d divergent\n", r.Total, r.Matched, r.Divergent)
}
