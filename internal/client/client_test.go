package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/universe"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	var candles bytes.Buffer
	var rows []domain.Candle
	for pair := domain.PairID(1); pair <= 2; pair++ {
		for h := 3; h >= 0; h-- {
			c := float64(pair)*10 + float64(h)
			rows = append(rows, domain.Candle{
				PairID: pair, Timestamp: t0.Add(time.Duration(h) * time.Hour),
				Open: c, High: c, Low: c, Close: c,
			})
		}
	}
	require.NoError(t, reader.WriteCandles(&candles, rows))

	var pairs bytes.Buffer
	require.NoError(t, reader.WritePairs(&pairs, []domain.Pair{
		{ID: 1, ChainID: domain.ChainEthereum, ExchangeID: 1, Token0Symbol: "USDC", Token1Symbol: "WETH", Address: "0x1"},
		{ID: 2, ChainID: domain.ChainEthereum, ExchangeID: 1, Token0Symbol: "FOO", Token1Symbol: "BAR", Address: "0x2"},
		{ID: 3, ChainID: domain.ChainEthereum, ExchangeID: 1, Token0Symbol: "PEPE", Token1Symbol: "WETH",
			BaseTokenSymbol: "PEPE", QuoteTokenSymbol: "WETH", Address: "0x3"},
	}))

	s := &fakeServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/candles-all", func(w http.ResponseWriter, r *http.Request) {
		w.Write(candles.Bytes())
	})
	mux.HandleFunc("/pair-universe", func(w http.ResponseWriter, r *http.Request) {
		w.Write(pairs.Bytes())
	})
	mux.HandleFunc("/exchange-universe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"exchanges": {"1": {"chain_id": 1, "exchange_id": 1, "exchange_slug": "uniswap-v2"}}}`)
	})
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "secret-token:good" {
			http.Error(w, "invalid key", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, `{"ping": "pong"}`)
	})
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)
	return s
}

func testConfig(t *testing.T, endpoint string) config.Config {
	cfg := config.Default()
	cfg.APIKey = "secret-token:good"
	cfg.Endpoint = endpoint
	cfg.CacheDir = t.TempDir()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetryDelay = time.Millisecond
	cfg.RequestsPerSecond = 0
	return cfg
}

func TestClient_CandleUniverse(t *testing.T) {
	srv := newFakeServer(t)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics("test", reg)

	c, err := New(testConfig(t, srv.URL), WithMetrics(metrics))
	require.NoError(t, err)
	ctx := context.Background()

	u, err := c.FetchCandleUniverse(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, u.PairCount())
	assert.Equal(t, 8, u.SampleCount())

	h, err := u.Handle(2)
	require.NoError(t, err)
	got, lag, err := u.Nearest(h, t0.Add(150*time.Minute), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, float64(22), got.Close)
	assert.Equal(t, 30*time.Minute, lag)

	// Second load is served from the cache.
	_, err = c.FetchCandleUniverse(ctx, domain.TimeBucket1h, reader.Filter{PairIDs: []domain.PairID{1}})
	require.NoError(t, err)
	assert.Equal(t, int32(1), srv.hits.Load())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.CacheLookups.WithLabelValues("candles", "hit")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Downloads.WithLabelValues("candles", "ok")))
}

func TestClient_HandlesDoNotCrossReloads(t *testing.T) {
	srv := newFakeServer(t)
	c, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	first, err := c.FetchCandleUniverse(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)
	second, err := c.FetchCandleUniverse(ctx, domain.TimeBucket1h, reader.Filter{})
	require.NoError(t, err)

	h, err := first.Handle(1)
	require.NoError(t, err)
	_, err = second.Series(h)
	assert.True(t, errors.Is(err, universe.ErrForeignHandle))
}

func TestClient_PairUniverse(t *testing.T) {
	srv := newFakeServer(t)
	c, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)
	ctx := context.Background()

	exchanges, err := c.FetchExchangeUniverse(ctx)
	require.NoError(t, err)
	pairs, err := c.FetchPairUniverse(ctx, reader.PairFilter{}, exchanges)
	require.NoError(t, err)
	require.Equal(t, 3, pairs.Len())

	p, err := pairs.ByID(1)
	require.NoError(t, err)
	assert.Equal(t, "WETH-USDC", p.Ticker())
	assert.Equal(t, "uniswap-v2", p.ExchangeSlug)
	assert.False(t, p.FlagUnsupportedQuoteToken)

	p, err = pairs.ByID(2)
	require.NoError(t, err)
	assert.True(t, p.FlagUnsupportedQuoteToken)

	p, err = pairs.ByTicker(1, "PEPE", "WETH", false)
	require.NoError(t, err)
	assert.Equal(t, domain.PairID(3), p.ID)
}

func TestClient_Ping(t *testing.T) {
	srv := newFakeServer(t)

	c, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))

	cfg := testConfig(t, srv.URL)
	cfg.APIKey = "secret-token:bad"
	c, err = New(cfg)
	require.NoError(t, err)
	err = c.Ping(context.Background())
	assert.True(t, errors.Is(err, domain.ErrAuthentication), "got %v", err)
}

func TestClient_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Endpoint = ""
	_, err := New(cfg)
	assert.Error(t, err)
}
