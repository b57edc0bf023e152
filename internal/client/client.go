// Package client ties the cached transport, the dataset reader and the
// universe builders together behind one configured value.
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/config"
	"dex-market-data/internal/domain"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/observability"
	"dex-market-data/internal/quote"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/transport"
	"dex-market-data/internal/universe"
)

// Client downloads datasets and loads them into universes. Each Client
// owns its configuration and cache directory; several clients may share
// one directory, also across processes.
type Client struct {
	cfg       config.Config
	transport *transport.CachedTransport
	reader    *reader.Reader
	resolver  *quote.Resolver
	logger    *logrus.Logger
	metrics   *observability.Metrics
}

type options struct {
	logger        *logrus.Logger
	metrics       *observability.Metrics
	resolver      *quote.Resolver
	transportOpts []transport.Option
	readerOpts    []reader.Option
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger used by the client and its parts.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink used by the client and its parts.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithResolver replaces the default quote-token resolver.
func WithResolver(r *quote.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithTransportOptions passes extra options to the transport.
func WithTransportOptions(opts ...transport.Option) Option {
	return func(o *options) {
		o.transportOpts = append(o.transportOpts, opts...)
	}
}

// WithReaderOptions passes extra options to the reader.
func WithReaderOptions(opts ...reader.Option) Option {
	return func(o *options) {
		o.readerOpts = append(o.readerOpts, opts...)
	}
}

// New creates a client for cfg.
func New(cfg config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	logger := logging.OrDiscard(o.logger)
	if o.resolver == nil {
		o.resolver = quote.DefaultResolver()
	}

	tOpts := append([]transport.Option{
		transport.WithLogger(logger),
		transport.WithMetrics(o.metrics),
	}, o.transportOpts...)
	tr, err := transport.New(cfg, tOpts...)
	if err != nil {
		return nil, err
	}

	rOpts := append([]reader.Option{
		reader.WithLogger(logger),
		reader.WithMetrics(o.metrics),
	}, o.readerOpts...)

	return &Client{
		cfg:       cfg,
		transport: tr,
		reader:    reader.New(rOpts...),
		resolver:  o.resolver,
		logger:    logger,
		metrics:   o.metrics,
	}, nil
}

// Config returns the configuration the client was built with.
func (c *Client) Config() config.Config { return c.cfg }

// Transport exposes the cache for status and purge operations.
func (c *Client) Transport() *transport.CachedTransport { return c.transport }

// Reader returns the dataset reader.
func (c *Client) Reader() *reader.Reader { return c.reader }

// Resolver returns the quote-token resolver.
func (c *Client) Resolver() *quote.Resolver { return c.resolver }

// Ping checks that the server is reachable and accepts the API key.
func (c *Client) Ping(ctx context.Context) error {
	var reply map[string]any
	return c.transport.GetJSON(ctx, "ping", nil, &reply)
}

// ChainStatus returns the indexer status of one chain.
func (c *Client) ChainStatus(ctx context.Context, chain domain.ChainID) (map[string]any, error) {
	params := url.Values{}
	params.Set("chain_id", fmt.Sprint(uint16(chain)))
	var status map[string]any
	if err := c.transport.GetJSON(ctx, "chain-status", params, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// Fetch downloads a dataset into the cache, if needed, and returns its path.
func (c *Client) Fetch(ctx context.Context, req domain.DatasetRequest) (string, error) {
	return c.transport.Fetch(ctx, req)
}

// Purge removes one cached dataset so the next fetch downloads it again.
// Use it after a read failed with domain.ErrCorruptDataset.
func (c *Client) Purge(path string) error {
	return c.transport.Purge(path)
}

// FetchExchangeUniverse loads the exchange universe.
func (c *Client) FetchExchangeUniverse(ctx context.Context) (*universe.ExchangeUniverse, error) {
	path, err := c.transport.Fetch(ctx, domain.DatasetRequest{Kind: domain.DatasetExchangeUniverse})
	if err != nil {
		return nil, err
	}
	exchanges, err := c.reader.ReadExchanges(path)
	if err != nil {
		return nil, err
	}
	return universe.NewExchangeUniverse(exchanges), nil
}

// FetchPairUniverse loads the pairs matching f. Pairs the server did not
// naturalise get base and quote from the resolver. exchanges may be nil.
func (c *Client) FetchPairUniverse(ctx context.Context, f reader.PairFilter, exchanges *universe.ExchangeUniverse) (*universe.PairUniverse, error) {
	path, err := c.transport.Fetch(ctx, domain.DatasetRequest{Kind: domain.DatasetPairUniverse})
	if err != nil {
		return nil, err
	}
	pairs, err := c.reader.ReadPairs(path, f)
	if err != nil {
		return nil, err
	}

	unsupported := 0
	for i, p := range pairs {
		if p.BaseTokenSymbol != "" && p.QuoteTokenSymbol != "" {
			continue
		}
		n, err := c.resolver.Normalize(p)
		if err != nil && !errors.Is(err, quote.ErrNoReferencePrice) && !errors.Is(err, quote.ErrSameToken) {
			return nil, err
		}
		if n.FlagUnsupportedQuoteToken {
			unsupported++
		}
		pairs[i] = n
	}
	if unsupported > 0 {
		c.logger.WithField("dataset", domain.DatasetPairUniverse).
			Debugf("%d pairs have no USD reference price", unsupported)
	}
	return universe.NewPairUniverse(pairs, exchanges), nil
}

// FetchCandles loads candles of one bucket matching f.
func (c *Client) FetchCandles(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) ([]domain.Candle, error) {
	path, err := c.transport.Fetch(ctx, domain.DatasetRequest{Kind: domain.DatasetCandles, Bucket: bucket})
	if err != nil {
		return nil, err
	}
	return c.reader.ReadCandles(path, f)
}

// FetchCandlesByPairs loads candles of a few pairs without downloading
// the whole bucket. Zero start or end leave that side open.
func (c *Client) FetchCandlesByPairs(ctx context.Context, bucket domain.TimeBucket, pairs []domain.PairID, start, end time.Time) ([]domain.Candle, error) {
	path, err := c.transport.Fetch(ctx, domain.DatasetRequest{
		Kind:    domain.DatasetCandlesJSONL,
		Bucket:  bucket,
		PairIDs: pairs,
		Start:   start,
		End:     end,
	})
	if err != nil {
		return nil, err
	}
	return c.reader.ReadCandles(path, reader.Filter{})
}

// FetchLiquidity loads liquidity samples of one bucket matching f.
func (c *Client) FetchLiquidity(ctx context.Context, bucket domain.TimeBucket, f reader.Filter) ([]domain.LiquiditySample, error) {
	path, err := c.transport.Fetch(ctx, domain.DatasetRequest{Kind: domain.DatasetLiquidity, Bucket: bucket})
	if err != nil {
		return nil, err
	}
	return c.reader.ReadLiquidity(path, f)
}

// FetchCandleUniverse loads candles matching f into a grouped universe.
func (c *Client) FetchCandleUniverse(ctx context.Context, bucket domain.TimeBucket, f reader.Filter, opts ...universe.Option) (*universe.CandleUniverse, error) {
	candles, err := c.FetchCandles(ctx, bucket, f)
	if err != nil {
		return nil, err
	}
	return universe.NewCandleUniverse(candles, c.universeOptions(opts)...)
}

// FetchLiquidityUniverse loads liquidity samples matching f into a grouped universe.
func (c *Client) FetchLiquidityUniverse(ctx context.Context, bucket domain.TimeBucket, f reader.Filter, opts ...universe.Option) (*universe.LiquidityUniverse, error) {
	samples, err := c.FetchLiquidity(ctx, bucket, f)
	if err != nil {
		return nil, err
	}
	return universe.NewLiquidityUniverse(samples, c.universeOptions(opts)...)
}

func (c *Client) universeOptions(opts []universe.Option) []universe.Option {
	return append([]universe.Option{
		universe.WithLogger(c.logger),
		universe.WithMetrics(c.metrics),
	}, opts...)
}
