// Package main provides the datasets ops tool:
// - fetch, status, purge: manage the local dataset cache
// - inspect: summarise a cached dataset
// - export, verify: copy datasets into ClickHouse and PostgreSQL and check them
// - ping, setup: check and store the API key
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/client"
	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/observability"
)

const usage = `Usage: datasets <command> [flags]

Commands:
  fetch    download a dataset into the cache and print its path
  status   show cached datasets
  purge    remove cached datasets
  inspect  summarise a cached dataset
  export   copy datasets into ClickHouse and PostgreSQL
  verify   check cached files or exported rows against their source
  ping     check that the server accepts the API key
  setup    validate an API key and save it to the settings file

Run "datasets <command> -h" for command flags.
`

type command func(ctx context.Context, env *runEnv, args []string) error

var commands = map[string]command{
	"fetch":   runFetch,
	"status":  runStatus,
	"purge":   runPurge,
	"inspect": runInspect,
	"export":  runExport,
	"verify":  runVerify,
	"ping":    runPing,
	"setup":   runSetup,
}

// globalFlags are accepted by every command. Env vars are the defaults.
type globalFlags struct {
	envFile     string
	settings    string
	apiKey      string
	endpoint    string
	cacheDir    string
	logLevel    string
	metricsAddr string
}

func (g *globalFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&g.settings, "settings", "", "settings file holding the API key")
	fs.StringVar(&g.apiKey, "api-key", "", "API key (default $"+config.EnvAPIKey+")")
	fs.StringVar(&g.endpoint, "endpoint", "", "dataset server URL (default $"+config.EnvEndpoint+")")
	fs.StringVar(&g.cacheDir, "cache-dir", "", "cache directory (default $"+config.EnvCacheDir+")")
	fs.StringVar(&g.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	fs.StringVar(&g.metricsAddr, "metrics-addr", os.Getenv("METRICS_ADDR"), "Prometheus metrics HTTP address, empty to disable")
}

// runEnv is what a command needs after flags are parsed.
type runEnv struct {
	flags   globalFlags
	logger  *logrus.Logger
	metrics *observability.Metrics
}

// config loads configuration, then applies flag overrides.
func (e *runEnv) config() (config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		EnvFile:      e.flags.envFile,
		SettingsPath: e.flags.settings,
	})
	if err != nil {
		return config.Config{}, err
	}
	if e.flags.apiKey != "" {
		cfg.APIKey = e.flags.apiKey
	}
	if e.flags.endpoint != "" {
		cfg.Endpoint = e.flags.endpoint
	}
	if e.flags.cacheDir != "" {
		cfg.CacheDir = e.flags.cacheDir
	}
	return cfg, cfg.Validate()
}

func (e *runEnv) client() (*client.Client, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return client.New(cfg, client.WithLogger(e.logger), client.WithMetrics(e.metrics))
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	name := os.Args[1]
	cmd, ok := commands[name]
	if !ok {
		if name != "-h" && name != "--help" && name != "help" {
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", name)
		}
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	// Create context with cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	env := &runEnv{}
	err := cmd(ctx, env, os.Args[2:])
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		logger := env.logger
		if logger == nil {
			logger = logging.New("info")
		}
		logger.WithError(err).Errorf("%s failed", name)
		os.Exit(exitCode(err))
	}
}

// parseFlags parses args into fs plus the global flags and sets up
// logging and metrics.
func (e *runEnv) parseFlags(fs *flag.FlagSet, args []string) error {
	e.flags.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	e.logger = logging.New(e.flags.logLevel)
	if e.flags.metricsAddr != "" {
		e.metrics = observability.DefaultMetrics
		startMetricsServer(e.flags.metricsAddr, e.logger)
	}
	return nil
}

func startMetricsServer(addr string, logger *logrus.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("addr", addr).Info("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("Metrics server failed")
		}
	}()
}

// exitCode maps error kinds to distinct process exit codes so scripts can
// tell a bad key from a missing dataset.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuthentication):
		return 3
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrDataUnavailable):
		return 4
	case errors.Is(err, domain.ErrCorruptDataset):
		return 5
	case errors.Is(err, errDivergent):
		return 6
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
