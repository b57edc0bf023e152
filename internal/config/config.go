// Package config holds the explicit client configuration. Nothing here is
// process-wide: every client gets its own Config value.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dex-market-data/internal/domain"
)

// Environment variables read by Load.
const (
	EnvAPIKey   = "TRADING_STRATEGY_API_KEY"
	EnvEndpoint = "TRADING_STRATEGY_ENDPOINT"
	EnvCacheDir = "TRADING_STRATEGY_CACHE_DIR"
)

// APIKeyPrefix is the required prefix of every API key.
const APIKeyPrefix = "secret-token:"

const (
	DefaultEndpoint          = "https://tradingstrategy.ai/api"
	DefaultConnectTimeout    = 15 * time.Second
	DefaultReadTimeout       = 15 * time.Second
	DefaultMaxRetries        = 5
	DefaultRetryDelay        = time.Second
	DefaultMaxRetryDelay     = 30 * time.Second
	DefaultRequestsPerSecond = 5.0
	DefaultLockTimeout       = 30 * time.Minute
	DefaultChunkSize         = 1 << 20
)

// Config is passed to the client at construction time.
type Config struct {
	APIKey       string
	Endpoint     string
	CacheDir     string
	SettingsPath string

	// ConnectTimeout bounds dialing and TLS. ReadTimeout bounds the wait for
	// response headers and each body read; there is no overall deadline so
	// large files can stream.
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	MaxRetries        int
	RetryDelay        time.Duration
	MaxRetryDelay     time.Duration
	RequestsPerSecond float64

	// LockTimeout bounds the wait for another process writing the same cache file.
	LockTimeout time.Duration
	// ChunkSize is the buffer size for streaming downloads to disk.
	ChunkSize int
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// EnvFile is a dotenv file. Empty means ".env"; a missing file is ignored.
	EnvFile string
	// SettingsPath overrides the settings file location.
	SettingsPath string
}

// Default returns the configuration used when nothing is set.
// Cache and settings live under the user's home directory.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	cacheRoot, err := os.UserCacheDir()
	if err != nil {
		cacheRoot = filepath.Join(home, ".cache")
	}
	return Config{
		Endpoint:          DefaultEndpoint,
		CacheDir:          filepath.Join(cacheRoot, "tradingstrategy"),
		SettingsPath:      filepath.Join(home, ".tradingstrategy", "settings.json"),
		ConnectTimeout:    DefaultConnectTimeout,
		ReadTimeout:       DefaultReadTimeout,
		MaxRetries:        DefaultMaxRetries,
		RetryDelay:        DefaultRetryDelay,
		MaxRetryDelay:     DefaultMaxRetryDelay,
		RequestsPerSecond: DefaultRequestsPerSecond,
		LockTimeout:       DefaultLockTimeout,
		ChunkSize:         DefaultChunkSize,
	}
}

// Load builds a Config from, in order of precedence: environment variables
// (including those loaded from the dotenv file, which never override the
// real environment), the settings file, and defaults.
//
// A missing API key is not an error here. It is reported as
// domain.ErrAuthentication when the first request is made.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Default()
	if opts.SettingsPath != "" {
		cfg.SettingsPath = opts.SettingsPath
	}
	if v := os.Getenv(EnvEndpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		cfg.CacheDir = v
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	if cfg.APIKey == "" {
		s, err := LoadSettings(cfg.SettingsPath)
		if err != nil {
			return Config{}, err
		}
		cfg.APIKey = s.APIKey
	}

	return cfg, cfg.Validate()
}

// Validate checks the non-credential fields.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if c.CacheDir == "" {
		return errors.New("cache dir is required")
	}
	if c.MaxRetries < 0 {
		return errors.New("max retries must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("requests per second must not be negative")
	}
	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	return nil
}

// ValidateAPIKey checks that the key is present and well-formed.
// The returned error matches domain.ErrAuthentication and tells the user
// how to fix it.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: no API key configured; set %s or save one to the settings file",
			domain.ErrAuthentication, EnvAPIKey)
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return fmt.Errorf("%w: API key must start with %q; check %s or the settings file",
			domain.ErrAuthentication, APIKeyPrefix, EnvAPIKey)
	}
	return nil
}
