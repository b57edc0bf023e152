// Package reader decodes cached dataset files into in-memory rows.
//
// Parquet files are decoded in fixed-size row batches and filters are
// applied batch by batch, so a filtered read of a large file only keeps
// the matching rows in memory.
package reader

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/observability"
)

const defaultBatchSize = 4096

// Filter restricts which sample rows are kept while decoding.
// Zero values mean no restriction. Start and End are inclusive.
type Filter struct {
	PairIDs []domain.PairID
	Start   time.Time
	End     time.Time
}

func (f Filter) matcher() func(domain.PairID, time.Time) bool {
	var pairs map[domain.PairID]struct{}
	if len(f.PairIDs) > 0 {
		pairs = make(map[domain.PairID]struct{}, len(f.PairIDs))
		for _, id := range f.PairIDs {
			pairs[id] = struct{}{}
		}
	}
	return func(id domain.PairID, ts time.Time) bool {
		if pairs != nil {
			if _, ok := pairs[id]; !ok {
				return false
			}
		}
		if !f.Start.IsZero() && ts.Before(f.Start) {
			return false
		}
		if !f.End.IsZero() && ts.After(f.End) {
			return false
		}
		return true
	}
}

// PairFilter restricts which pair records are kept.
type PairFilter struct {
	ChainIDs     []domain.ChainID
	ExchangeIDs  []domain.ExchangeID
	PairIDs      []domain.PairID
	SkipInactive bool
}

func (f PairFilter) match(p domain.Pair) bool {
	if f.SkipInactive && p.FlagInactive {
		return false
	}
	if len(f.ChainIDs) > 0 && !contains(f.ChainIDs, p.ChainID) {
		return false
	}
	if len(f.ExchangeIDs) > 0 && !contains(f.ExchangeIDs, p.ExchangeID) {
		return false
	}
	if len(f.PairIDs) > 0 && !contains(f.PairIDs, p.ID) {
		return false
	}
	return true
}

func contains[T comparable](list []T, v T) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Reader decodes dataset files. It never modifies or deletes them.
type Reader struct {
	batchSize int
	logger    *logrus.Logger
	metrics   *observability.Metrics
}

// Option configures a Reader.
type Option func(*Reader)

// WithBatchSize sets the number of rows decoded per batch.
func WithBatchSize(n int) Option {
	return func(r *Reader) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(r *Reader) {
		r.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Reader) {
		r.metrics = m
	}
}

// New creates a Reader.
func New(opts ...Option) *Reader {
	r := &Reader{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

var candleColumns = []string{
	"pair_id", "timestamp", "exchange_rate", "open", "high", "low", "close",
	"buys", "sells", "buy_volume", "sell_volume", "avg", "start_block", "end_block",
}

var liquidityColumns = []string{
	"pair_id", "timestamp", "exchange_rate", "open", "high", "low", "close",
	"adds", "removes", "syncs", "add_volume", "remove_volume", "start_block", "end_block",
}

var pairColumns = []string{
	"pair_id", "chain_id", "exchange_id", "address", "dex_type",
	"token0_symbol", "token1_symbol", "token0_address", "token1_address",
	"base_token_symbol", "quote_token_symbol", "exchange_slug", "pair_slug",
	"fee", "flag_inactive", "flag_unsupported_quote_token",
	"buy_volume_30d", "sell_volume_30d",
}

// ReadCandles decodes a candle Parquet file. Rows come back in file order.
func (r *Reader) ReadCandles(path string, f Filter) ([]domain.Candle, error) {
	keep := f.matcher()
	return readParquet(r, path, domain.DatasetCandles, candleColumns, []string{"pair_id", "timestamp"},
		func(rw row) (domain.Candle, bool) {
			c := domain.Candle{
				PairID:    domain.PairID(rw.u32("pair_id")),
				Timestamp: rw.timestamp("timestamp"),
			}
			if !keep(c.PairID, c.Timestamp) {
				return c, false
			}
			c.ExchangeRate = rw.float("exchange_rate")
			c.Open = rw.float("open")
			c.High = rw.float("high")
			c.Low = rw.float("low")
			c.Close = rw.float("close")
			c.Buys = rw.u32("buys")
			c.Sells = rw.u32("sells")
			c.BuyVolume = rw.float("buy_volume")
			c.SellVolume = rw.float("sell_volume")
			c.Avg = rw.float("avg")
			c.StartBlock = rw.u32("start_block")
			c.EndBlock = rw.u32("end_block")
			return c, true
		})
}

// ReadLiquidity decodes a liquidity sample Parquet file.
func (r *Reader) ReadLiquidity(path string, f Filter) ([]domain.LiquiditySample, error) {
	keep := f.matcher()
	return readParquet(r, path, domain.DatasetLiquidity, liquidityColumns, []string{"pair_id", "timestamp"},
		func(rw row) (domain.LiquiditySample, bool) {
			s := domain.LiquiditySample{
				PairID:    domain.PairID(rw.u32("pair_id")),
				Timestamp: rw.timestamp("timestamp"),
			}
			if !keep(s.PairID, s.Timestamp) {
				return s, false
			}
			s.ExchangeRate = rw.float("exchange_rate")
			s.Open = rw.float("open")
			s.High = rw.float("high")
			s.Low = rw.float("low")
			s.Close = rw.float("close")
			s.Adds = rw.u32("adds")
			s.Removes = rw.u32("removes")
			s.Syncs = rw.u32("syncs")
			s.AddVolume = rw.float("add_volume")
			s.RemoveVolume = rw.float("remove_volume")
			s.StartBlock = rw.u32("start_block")
			s.EndBlock = rw.u32("end_block")
			return s, true
		})
}

// ReadPairs decodes the pair universe Parquet file.
func (r *Reader) ReadPairs(path string, f PairFilter) ([]domain.Pair, error) {
	return readParquet(r, path, domain.DatasetPairUniverse, pairColumns, []string{"pair_id", "exchange_id"},
		func(rw row) (domain.Pair, bool) {
			p := domain.Pair{
				ID:                        domain.PairID(rw.u32("pair_id")),
				ChainID:                   domain.ChainID(rw.unsigned("chain_id")),
				ExchangeID:                domain.ExchangeID(rw.u32("exchange_id")),
				Address:                   rw.str("address"),
				DEXType:                   domain.PairType(rw.str("dex_type")),
				Token0Symbol:              rw.str("token0_symbol"),
				Token1Symbol:              rw.str("token1_symbol"),
				Token0Address:             rw.str("token0_address"),
				Token1Address:             rw.str("token1_address"),
				BaseTokenSymbol:           rw.str("base_token_symbol"),
				QuoteTokenSymbol:          rw.str("quote_token_symbol"),
				ExchangeSlug:              rw.str("exchange_slug"),
				PairSlug:                  rw.str("pair_slug"),
				FlagInactive:              rw.boolean("flag_inactive"),
				FlagUnsupportedQuoteToken: rw.boolean("flag_unsupported_quote_token"),
				BuyVolume30d:              rw.floatPtr("buy_volume_30d"),
				SellVolume30d:             rw.floatPtr("sell_volume_30d"),
			}
			if _, ok := rw.value("fee"); ok {
				fee := rw.u32("fee")
				p.Fee = &fee
			}
			return p, f.match(p)
		})
}

// ReadExchanges decodes the exchange universe JSON file, ordered by id.
func (r *Reader) ReadExchanges(path string) ([]domain.Exchange, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exchanges: %w", err)
	}

	var doc struct {
		Exchanges map[string]domain.Exchange `json:"exchanges"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, r.corrupt(path, domain.DatasetExchangeUniverse, err)
	}
	if doc.Exchanges == nil {
		return nil, r.corrupt(path, domain.DatasetExchangeUniverse, errors.New(`missing "exchanges" object`))
	}

	out := make([]domain.Exchange, 0, len(doc.Exchanges))
	for key, e := range doc.Exchanges {
		id, err := strconv.ParseUint(key, 10, 32)
		if err != nil || domain.ExchangeID(id) != e.ID {
			return nil, r.corrupt(path, domain.DatasetExchangeUniverse,
				fmt.Errorf("exchange key %q does not match exchange_id %d", key, e.ID))
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	r.metrics.RecordRowsRead(string(domain.DatasetExchangeUniverse), len(out))
	return out, nil
}

// readParquet opens path and decodes it batch by batch with decode.
// decode returns false for rows to drop.
func readParquet[T any](r *Reader, path string, kind domain.DatasetKind, names, required []string,
	decode func(row) (T, bool)) ([]T, error) {
	start := time.Now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s dataset: %w", kind, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s dataset: %w", kind, err)
	}

	out, err := decodeParquet(f, info.Size(), r.batchSize, names, required, decode)
	if err != nil {
		return nil, r.corrupt(path, kind, err)
	}

	r.metrics.RecordRowsRead(string(kind), len(out))
	r.logger.WithFields(logrus.Fields{
		"dataset": kind,
		"path":    path,
		"rows":    len(out),
	}).Debugf("Decoded dataset in %v", time.Since(start))
	return out, nil
}

// decodeParquet turns decoder panics into errors; a damaged page can
// panic deep inside the decoder instead of returning an error.
func decodeParquet[T any](in io.ReaderAt, size int64, batchSize int, names, required []string,
	decode func(row) (T, bool)) (out []T, err error) {
	defer func() {
		if p := recover(); p != nil {
			out = nil
			err = fmt.Errorf("decoder panic: %v", p)
		}
	}()

	pf, err := parquet.OpenFile(in, size)
	if err != nil {
		return nil, err
	}

	cols := lookupColumns(pf.Schema(), names...)
	if name, ok := cols.missing(required...); ok {
		return nil, fmt.Errorf("missing column %q", name)
	}

	pr := parquet.NewReader(pf)
	defer pr.Close()

	buf := make([]parquet.Row, batchSize)
	for {
		n, err := pr.ReadRows(buf)
		for i := 0; i < n; i++ {
			if v, ok := decode(row{cols: cols, vals: buf[i]}); ok {
				out = append(out, v)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, io.ErrNoProgress
		}
	}
	return out, nil
}

func (r *Reader) corrupt(path string, kind domain.DatasetKind, err error) error {
	r.metrics.RecordCorrupt(string(kind))
	r.logger.WithFields(logrus.Fields{
		"dataset": kind,
		"path":    path,
	}).WithError(err).Warn("Cached dataset is corrupt")
	return &CorruptDatasetError{Path: path, Dataset: string(kind), Err: err}
}
