package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/client"
	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
	"dex-market-data/internal/metrics"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/transport"
	"dex-market-data/internal/universe"
)

// requestFlags describe one dataset request on the command line.
type requestFlags struct {
	dataset  string
	bucket   string
	pairs    string
	start    string
	end      string
	maxBytes int64
}

func (r *requestFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&r.dataset, "dataset", "", "dataset kind: pair-universe, exchange-universe, candles, liquidity, candles-jsonl")
	fs.StringVar(&r.bucket, "bucket", "", "time bucket for candles and liquidity, e.g. 1h")
	fs.StringVar(&r.pairs, "pairs", "", "comma-separated pair ids (candles-jsonl)")
	fs.StringVar(&r.start, "start", "", "range start, RFC3339 or YYYY-MM-DD (candles-jsonl)")
	fs.StringVar(&r.end, "end", "", "range end, RFC3339 or YYYY-MM-DD (candles-jsonl)")
	fs.Int64Var(&r.maxBytes, "max-bytes", 0, "cap on the streamed reply size, 0 for no limit (candles-jsonl)")
}

func (r *requestFlags) request() (domain.DatasetRequest, error) {
	var req domain.DatasetRequest
	kind, err := domain.ParseDatasetKind(r.dataset)
	if err != nil {
		return req, err
	}
	req.Kind = kind
	req.MaxBytes = r.maxBytes
	if r.bucket != "" {
		if req.Bucket, err = domain.ParseTimeBucket(r.bucket); err != nil {
			return req, err
		}
	}
	if req.PairIDs, err = parsePairIDs(r.pairs); err != nil {
		return req, err
	}
	if req.Start, err = parseTime(r.start); err != nil {
		return req, fmt.Errorf("start: %w", err)
	}
	if req.End, err = parseTime(r.end); err != nil {
		return req, fmt.Errorf("end: %w", err)
	}
	return req, req.Validate()
}

func runFetch(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	var rf requestFlags
	rf.register(fs)
	force := fs.Bool("force", false, "download even if a cached copy exists")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	req, err := rf.request()
	if err != nil {
		return err
	}
	req.ForceRefresh = *force

	c, err := env.client()
	if err != nil {
		return err
	}
	start := time.Now()
	path, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}
	env.logger.WithFields(logrus.Fields{
		"dataset": req.Kind,
		"bucket":  req.Bucket,
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("Dataset ready")
	fmt.Println(path)
	return nil
}

func runStatus(_ context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	var rf requestFlags
	rf.register(fs)
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	c, err := env.client()
	if err != nil {
		return err
	}
	t := c.Transport()

	if rf.dataset != "" {
		req, err := rf.request()
		if err != nil {
			return err
		}
		entry, status := t.CacheStatus(req)
		if status == transport.StatusMissing {
			fmt.Printf("%s\t%s\n", status, t.PathFor(req))
			return nil
		}
		return printEntries([]transport.Entry{entry})
	}

	entries, err := t.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("cache %s is empty\n", t.CacheDir())
		return nil
	}
	return printEntries(entries)
}

func printEntries(entries []transport.Entry) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tBUCKET\tSIZE\tDOWNLOADED\tPATH")
	for _, e := range entries {
		downloaded := "-"
		if !e.DownloadedAt.IsZero() {
			downloaded = e.DownloadedAt.UTC().Format(time.RFC3339)
		}
		bucket := string(e.Bucket)
		if bucket == "" {
			bucket = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Kind, bucket, humanBytes(e.Size), downloaded, e.Path)
	}
	return w.Flush()
}

func runPurge(_ context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	var rf requestFlags
	rf.register(fs)
	all := fs.Bool("all", false, "remove every cached dataset")
	path := fs.String("path", "", "remove one cached file by path")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	c, err := env.client()
	if err != nil {
		return err
	}
	t := c.Transport()

	switch {
	case *all:
		n, err := t.PurgeAll()
		if err != nil {
			return err
		}
		env.logger.WithField("files", n).Info("Cache purged")
		return nil
	case *path != "":
		return c.Purge(*path)
	case rf.dataset != "":
		req, err := rf.request()
		if err != nil {
			return err
		}
		return t.PurgeRequest(req)
	default:
		return errors.New("purge needs --all, --path or --dataset")
	}
}

func runInspect(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	var rf requestFlags
	rf.register(fs)
	stats := fs.Bool("stats", false, "print per-pair statistics of candle datasets")
	top := fs.Int("top", 20, "with --stats, how many pairs to print by volume, 0 for all")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	req, err := rf.request()
	if err != nil {
		return err
	}
	c, err := env.client()
	if err != nil {
		return err
	}
	path, err := c.Fetch(ctx, req)
	if err != nil {
		return err
	}

	summary, candles, err := inspect(c, req, path)
	if errors.Is(err, domain.ErrCorruptDataset) {
		env.logger.WithField("path", path).Warn("Cached file is corrupt; run purge and fetch again")
	}
	if err != nil {
		return err
	}
	fmt.Println(summary)

	if !*stats {
		return nil
	}
	if candles == nil {
		return fmt.Errorf("--stats needs a candle dataset, got %s", req.Kind)
	}
	rows, err := metrics.Summarize(candles, *top)
	if err != nil {
		return err
	}
	return printStats(rows)
}

// inspect reads a cached dataset and describes its contents in one line.
// Candle datasets also return their universe.
func inspect(c *client.Client, req domain.DatasetRequest, path string) (string, *universe.CandleUniverse, error) {
	r := c.Reader()
	switch req.Kind {
	case domain.DatasetExchangeUniverse:
		exchanges, err := r.ReadExchanges(path)
		if err != nil {
			return "", nil, err
		}
		u := universe.NewExchangeUniverse(exchanges)
		return fmt.Sprintf("%s: %d exchanges", req.Kind, u.Len()), nil, nil
	case domain.DatasetPairUniverse:
		pairs, err := r.ReadPairs(path, reader.PairFilter{})
		if err != nil {
			return "", nil, err
		}
		u := universe.NewPairUniverse(pairs, nil)
		priced, _ := c.Resolver().PartitionUSDPriced(pairs)
		return fmt.Sprintf("%s: %d pairs, %d active, %d USD priced", req.Kind, u.Len(), len(u.Active()), len(priced)), nil, nil
	case domain.DatasetLiquidity:
		samples, err := r.ReadLiquidity(path, reader.Filter{})
		if err != nil {
			return "", nil, err
		}
		u, err := universe.NewLiquidityUniverse(samples)
		if err != nil {
			return "", nil, err
		}
		first, last, _ := u.TimestampRange()
		return seriesSummary(req, u.PairCount(), u.SampleCount(), first, last), nil, nil
	default:
		candles, err := r.ReadCandles(path, reader.Filter{})
		if err != nil {
			return "", nil, err
		}
		u, err := universe.NewCandleUniverse(candles)
		if err != nil {
			return "", nil, err
		}
		first, last, _ := u.TimestampRange()
		return seriesSummary(req, u.PairCount(), u.SampleCount(), first, last), u, nil
	}
}

func printStats(rows []metrics.PairStats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "PAIR\tBARS\tVOLUME\tTRADES\tMEAN RET\tSTDDEV\tP10\tP90\tMAX DD\tDOWN RUN\t")
	for _, s := range rows {
		fmt.Fprintf(w, "%d\t%d\t%.0f\t%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f%%\t%d\t\n",
			s.PairID, s.Bars, s.Volume, s.Trades, s.ReturnMean, s.ReturnStddev,
			s.ReturnP10, s.ReturnP90, s.MaxDrawdown*100, s.MaxConsecutiveDown)
	}
	return w.Flush()
}

func seriesSummary(req domain.DatasetRequest, pairs, samples int, first, last time.Time) string {
	if samples == 0 {
		return fmt.Sprintf("%s %s: empty", req.Kind, req.Bucket)
	}
	return fmt.Sprintf("%s %s: %d pairs, %d rows, %s .. %s", req.Kind, req.Bucket, pairs, samples,
		first.Format(time.RFC3339), last.Format(time.RFC3339))
}

func runPing(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	chain := fs.String("chain", "", "also print the indexer status of this chain, e.g. ethereum")
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}

	c, err := env.client()
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		return err
	}
	fmt.Println("ok")

	if *chain == "" {
		return nil
	}
	id, ok := domain.ChainBySlug(*chain)
	if !ok {
		return fmt.Errorf("unknown chain %q", *chain)
	}
	status, err := c.ChainStatus(ctx, id)
	if err != nil {
		return err
	}
	for k, v := range status {
		fmt.Printf("%s: %v\n", k, v)
	}
	return nil
}

// runSetup checks a key against the server before saving it, so a typo
// never reaches the settings file.
func runSetup(ctx context.Context, env *runEnv, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	if err := env.parseFlags(fs, args); err != nil {
		return err
	}
	if err := config.ValidateAPIKey(env.flags.apiKey); err != nil {
		return err
	}

	c, err := env.client()
	if err != nil {
		return err
	}
	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("key rejected by %s: %w", c.Config().Endpoint, err)
	}

	path := c.Config().SettingsPath
	if err := config.SaveSettings(path, config.Settings{APIKey: env.flags.apiKey}); err != nil {
		return err
	}
	env.logger.WithField("path", path).Info("API key saved")
	return nil
}

func parsePairIDs(s string) ([]domain.PairID, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []domain.PairID
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid pair id %q", part)
		}
		ids = append(ids, domain.PairID(n))
	}
	return ids, nil
}

// parseTime accepts RFC3339 or a bare UTC date. Empty means unbounded.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q, want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
