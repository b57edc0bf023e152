// Package universe holds loaded datasets in memory, indexed for
// per-pair time-series access.
//
// A Grouped universe is built once from a flat table of rows and is
// read-only afterwards; it is safe for concurrent readers. Pairs are
// addressed through Handle values issued by the universe that owns them.
package universe

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/logging"
	"dex-market-data/internal/lookup"
	"dex-market-data/internal/normalization"
	"dex-market-data/internal/observability"
)

var (
	// ErrForeignHandle is returned for a handle issued by another universe,
	// including an earlier load of the same dataset.
	ErrForeignHandle = errors.New("handle does not belong to this universe")

	// ErrUnknownPair matches domain.ErrNotFound.
	ErrUnknownPair = fmt.Errorf("pair not in universe: %w", domain.ErrNotFound)

	ErrInvalidRange = errors.New("range start is after end")
)

// generation numbers every universe built by this process.
var generation atomic.Uint64

// Handle is an opaque reference to one pair inside one universe instance.
// Pair ids are only stable within a dataset snapshot, so a handle cannot be
// built from an id and is rejected by every other universe.
type Handle struct {
	pair domain.PairID
	gen  uint64
}

// PairID returns the dataset id of the pair, for display and joins
// against the pair universe loaded from the same snapshot.
func (h Handle) PairID() domain.PairID {
	return h.pair
}

// IsZero reports whether h was never issued.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

func (h Handle) String() string {
	return fmt.Sprintf("pair#%d", h.pair)
}

// Option configures universe construction.
type Option func(*options)

type options struct {
	fixWicks     bool
	wicks        normalization.WickThreshold
	badOpenClose float64
	removeZero   bool
	fillBucket   domain.TimeBucket
	fillUntil    time.Time
	logger       *logrus.Logger
	metrics      *observability.Metrics
}

// WithWickFix clamps broken highs, lows, opens and closes while building.
func WithWickFix(th normalization.WickThreshold, badOpenClose float64) Option {
	return func(o *options) {
		o.fixWicks = true
		o.wicks = th
		o.badOpenClose = badOpenClose
	}
}

// WithZeroCandleRemoval drops rows with a zero price.
func WithZeroCandleRemoval() Option {
	return func(o *options) {
		o.removeZero = true
	}
}

// WithForwardFill fills missing buckets of every pair with flat bars and
// extends each series to until. A zero until stops at the last sample.
func WithForwardFill(bucket domain.TimeBucket, until time.Time) Option {
	return func(o *options) {
		o.fillBucket = bucket
		o.fillUntil = until
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Grouped is a time-series universe partitioned by pair.
// Every series is sorted by timestamp ascending with no duplicates.
type Grouped[T domain.Sample[T]] struct {
	gen        uint64
	pairs      []domain.PairID
	series     map[domain.PairID][]T
	samples    int
	timestamps []time.Time
}

// CandleUniverse is a grouped universe of candles.
type CandleUniverse = Grouped[domain.Candle]

// LiquidityUniverse is a grouped universe of liquidity samples.
type LiquidityUniverse = Grouped[domain.LiquiditySample]

// NewCandleUniverse builds a candle universe from rows in any order.
func NewCandleUniverse(rows []domain.Candle, opts ...Option) (*CandleUniverse, error) {
	return New("candles", rows, opts...)
}

// NewLiquidityUniverse builds a liquidity universe from rows in any order.
func NewLiquidityUniverse(rows []domain.LiquiditySample, opts ...Option) (*LiquidityUniverse, error) {
	return New("liquidity", rows, opts...)
}

// New builds a universe from rows in any order. The input slice is not
// modified. When two rows share a pair and timestamp the later one wins.
//
// kind labels logs and metrics.
func New[T domain.Sample[T]](kind string, rows []T, opts ...Option) (*Grouped[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := logging.OrDiscard(o.logger).WithField("universe", kind)
	start := time.Now()

	sorted := make([]T, len(rows))
	copy(sorted, rows)
	normalization.SortSamples(sorted)
	sorted = normalization.DedupeSorted(sorted)
	if dropped := len(rows) - len(sorted); dropped > 0 {
		log.Debugf("Dropped %d duplicate rows", dropped)
	}

	g := &Grouped[T]{
		gen:    generation.Add(1),
		series: make(map[domain.PairID][]T),
	}

	for lo := 0; lo < len(sorted); {
		pair := sorted[lo].Key()
		hi := lo + 1
		for hi < len(sorted) && sorted[hi].Key() == pair {
			hi++
		}
		// Cap the partition so appends by forward fill never touch the
		// next pair's rows.
		s, err := prepare(sorted[lo:hi:hi], &o)
		if err != nil {
			return nil, fmt.Errorf("build %s universe: pair %d: %w", kind, pair, err)
		}
		if len(s) > 0 {
			g.pairs = append(g.pairs, pair)
			g.series[pair] = s
			g.samples += len(s)
		}
		lo = hi
	}

	g.timestamps = distinctTimestamps(g.series, g.samples)

	o.metrics.RecordUniverseBuild(kind, len(g.pairs), g.samples)
	log.WithFields(logrus.Fields{
		"pairs":   len(g.pairs),
		"samples": g.samples,
	}).Debugf("Built universe in %v", time.Since(start))
	return g, nil
}

// prepare applies the optional cleanups to one pair's sorted series.
func prepare[T domain.Sample[T]](s []T, o *options) ([]T, error) {
	if o.fixWicks {
		normalization.FixBadWicks(s, o.wicks, o.badOpenClose)
	}
	if o.removeZero {
		s = normalization.RemoveZeroCandles(s)
	}
	if o.fillBucket != "" && len(s) > 0 {
		return normalization.ForwardFill(s, o.fillBucket, o.fillUntil)
	}
	return s, nil
}

func distinctTimestamps[T domain.Sample[T]](series map[domain.PairID][]T, n int) []time.Time {
	all := make([]time.Time, 0, n)
	for _, s := range series {
		for _, row := range s {
			all = append(all, row.At())
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Before(all[j]) })

	out := all[:0]
	for i, ts := range all {
		if i > 0 && ts.Equal(all[i-1]) {
			continue
		}
		out = append(out, ts)
	}
	return out
}

// Handle returns the handle of pair.
func (g *Grouped[T]) Handle(pair domain.PairID) (Handle, error) {
	if _, ok := g.series[pair]; !ok {
		return Handle{}, fmt.Errorf("pair %d: %w", pair, ErrUnknownPair)
	}
	return Handle{pair: pair, gen: g.gen}, nil
}

// Handles returns the handles of all pairs, ordered by pair id.
func (g *Grouped[T]) Handles() []Handle {
	out := make([]Handle, len(g.pairs))
	for i, p := range g.pairs {
		out[i] = Handle{pair: p, gen: g.gen}
	}
	return out
}

// Owns reports whether h was issued by this universe.
func (g *Grouped[T]) Owns(h Handle) bool {
	return h.gen == g.gen
}

func (g *Grouped[T]) PairCount() int   { return len(g.pairs) }
func (g *Grouped[T]) SampleCount() int { return g.samples }

func (g *Grouped[T]) resolve(h Handle) ([]T, error) {
	if h.gen != g.gen {
		return nil, fmt.Errorf("%s: %w", h, ErrForeignHandle)
	}
	s, ok := g.series[h.pair]
	if !ok {
		return nil, fmt.Errorf("%s: %w", h, ErrUnknownPair)
	}
	return s, nil
}

// Series returns a copy of the full series of h.
func (g *Grouped[T]) Series(h Handle) ([]T, error) {
	s, err := g.resolve(h)
	if err != nil {
		return nil, err
	}
	return clone(s), nil
}

// Nearest returns the sample of h at ts, or the latest earlier sample if
// it is at most tolerance older than ts. The lag is ts minus the sample
// time. A sample later than ts is never returned; when there is no usable
// earlier sample the error matches domain.ErrDataUnavailable.
func (g *Grouped[T]) Nearest(h Handle, ts time.Time, tolerance time.Duration) (T, time.Duration, error) {
	var zero T
	s, err := g.resolve(h)
	if err != nil {
		return zero, 0, err
	}
	row, lag, err := lookup.Nearest(s, ts, tolerance)
	if err != nil {
		return zero, lag, fmt.Errorf("%s at %s: %w", h, ts.UTC().Format(time.RFC3339), err)
	}
	return row, lag, nil
}

// Value returns one price point of the sample Nearest would return.
func (g *Grouped[T]) Value(h Handle, ts time.Time, tolerance time.Duration, kind domain.PriceKind) (float64, time.Duration, error) {
	if !kind.IsValid() {
		return 0, 0, fmt.Errorf("unknown price kind %q", kind)
	}
	row, lag, err := g.Nearest(h, ts, tolerance)
	if err != nil {
		return 0, lag, err
	}
	return row.Prices().Pick(kind), lag, nil
}

// Range returns the samples of h with start <= timestamp <= end.
func (g *Grouped[T]) Range(h Handle, start, end time.Time) ([]T, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	s, err := g.resolve(h)
	if err != nil {
		return nil, err
	}
	lo, hi := lookup.RangeBounds(s, start, end)
	return clone(s[lo:hi]), nil
}

// Before returns the samples of h strictly earlier than ts: the history a
// decision taken at ts may see.
func (g *Grouped[T]) Before(h Handle, ts time.Time) ([]T, error) {
	s, err := g.resolve(h)
	if err != nil {
		return nil, err
	}
	return clone(s[:lookup.StrictlyBefore(s, ts)]), nil
}

// AllAt returns the sample of every pair that has one exactly at ts.
func (g *Grouped[T]) AllAt(ts time.Time) map[Handle]T {
	out := make(map[Handle]T)
	for _, p := range g.pairs {
		s := g.series[p]
		if i, ok := lookup.AtOrBefore(s, ts); ok && s[i].At().Equal(ts) {
			out[Handle{pair: p, gen: g.gen}] = s[i]
		}
	}
	return out
}

// LatestAt returns, for every pair, the latest sample at or before ts
// within tolerance. Pairs without one are left out.
func (g *Grouped[T]) LatestAt(ts time.Time, tolerance time.Duration) (map[Handle]T, error) {
	if tolerance < 0 {
		return nil, lookup.ErrNegativeTolerance
	}
	out := make(map[Handle]T)
	for _, p := range g.pairs {
		if row, _, err := lookup.Nearest(g.series[p], ts, tolerance); err == nil {
			out[Handle{pair: p, gen: g.gen}] = row
		}
	}
	return out, nil
}

// AllInRange returns the samples with start <= timestamp <= end, grouped
// by pair. Pairs with no samples in the range are left out.
func (g *Grouped[T]) AllInRange(start, end time.Time) (map[Handle][]T, error) {
	if start.After(end) {
		return nil, ErrInvalidRange
	}
	out := make(map[Handle][]T)
	for _, p := range g.pairs {
		s := g.series[p]
		lo, hi := lookup.RangeBounds(s, start, end)
		if hi > lo {
			out[Handle{pair: p, gen: g.gen}] = clone(s[lo:hi])
		}
	}
	return out, nil
}

// TimestampRange returns the first and last timestamp in the universe.
// ok is false for an empty universe.
func (g *Grouped[T]) TimestampRange() (first, last time.Time, ok bool) {
	if len(g.timestamps) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return g.timestamps[0], g.timestamps[len(g.timestamps)-1], true
}

// PriorTimestamp returns the latest timestamp of any pair strictly before ts.
func (g *Grouped[T]) PriorTimestamp(ts time.Time) (time.Time, bool) {
	i := sort.Search(len(g.timestamps), func(i int) bool {
		return !g.timestamps[i].Before(ts)
	})
	if i == 0 {
		return time.Time{}, false
	}
	return g.timestamps[i-1], true
}

func clone[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
