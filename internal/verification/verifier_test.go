package verification

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/reader"
	"dex-market-data/internal/storage/memory"
	"dex-market-data/internal/transport"
	"dex-market-data/internal/universe"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candle(pair domain.PairID, hour int, close float64) domain.Candle {
	return domain.Candle{
		PairID:    pair,
		Timestamp: t0.Add(time.Duration(hour) * time.Hour),
		Open:      close, High: close, Low: close, Close: close,
	}
}

func TestCompareSeries_ExactMatch(t *testing.T) {
	rows := []domain.Candle{candle(1, 0, 10), candle(1, 1, 11)}
	assert.Empty(t, CompareSeries(rows, append([]domain.Candle(nil), rows...)))
}

func TestCompareSeries_PriceWithinTolerance(t *testing.T) {
	source := []domain.Candle{candle(1, 0, 12345.678)}
	stored := []domain.Candle{candle(1, 0, 12345.678+1e-8)}
	assert.Empty(t, CompareSeries(source, stored))
}

func TestCompareSeries_Divergences(t *testing.T) {
	source := []domain.Candle{candle(1, 0, 10), candle(1, 1, 11), candle(1, 2, 12)}
	stored := []domain.Candle{candle(1, 0, 10), candle(1, 1, 11)}
	stored[1].Close = 99

	got := CompareSeries(source, stored)
	require.Len(t, got, 2)
	assert.Equal(t, FieldDivergence{Field: "Rows", Expected: 3, Actual: 2}, got[0])
	assert.Equal(t, "2024-01-01T01:00:00Z.Close", got[1].Field)
	assert.Equal(t, float64(11), got[1].Expected)
	assert.Equal(t, float64(99), got[1].Actual)
}

func TestCompareSeries_StopsAtTimestampShift(t *testing.T) {
	source := []domain.Candle{candle(1, 0, 10), candle(1, 1, 11), candle(1, 2, 12)}
	stored := []domain.Candle{candle(1, 0, 10), candle(1, 2, 12), candle(1, 3, 13)}

	got := CompareSeries(source, stored)
	require.Len(t, got, 1)
	assert.Equal(t, "2024-01-01T01:00:00Z.Timestamp", got[0].Field)
}

func TestCompareSeries_CapsDivergences(t *testing.T) {
	var source, stored []domain.Candle
	for h := 0; h < 50; h++ {
		source = append(source, candle(1, h, 10))
		stored = append(stored, candle(1, h, 20))
	}
	assert.Len(t, CompareSeries(source, stored), maxDivergences)
}

type staticLister []transport.Entry

func (l staticLister) Entries() ([]transport.Entry, error) { return l, nil }

func writeCandleFile(t *testing.T, dir, name string, candles []domain.Candle) transport.Entry {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, reader.WriteCandles(&buf, candles))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	sum := sha256.Sum256(buf.Bytes())
	return transport.Entry{
		Path:   path,
		Kind:   domain.DatasetCandles,
		Bucket: domain.TimeBucket1h,
		Size:   int64(buf.Len()),
		SHA256: hex.EncodeToString(sum[:]),
	}
}

func TestCacheVerifier_VerifyAll(t *testing.T) {
	dir := t.TempDir()
	good := writeCandleFile(t, dir, "good.parquet", []domain.Candle{candle(1, 0, 10)})

	tampered := writeCandleFile(t, dir, "tampered.parquet", []domain.Candle{candle(2, 0, 20)})
	require.NoError(t, os.WriteFile(tampered.Path, []byte("not parquet"), 0o644))

	missing := transport.Entry{Path: filepath.Join(dir, "gone.parquet"), Kind: domain.DatasetCandles}

	v := NewCacheVerifier(staticLister{good, tampered, missing}, reader.New())
	report, err := v.VerifyAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 2, report.Divergent)
	assert.True(t, report.Results[0].Match)

	var fields []string
	for _, d := range report.Results[1].Divergences {
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{"Size", "SHA256", "Decode"}, fields)

	assert.Equal(t, "File", report.Results[2].Divergences[0].Field)
}

func TestCacheVerifier_NoSidecar(t *testing.T) {
	dir := t.TempDir()
	e := writeCandleFile(t, dir, "bare.parquet", []domain.Candle{candle(1, 0, 10)})

	res, err := NewCacheVerifier(nil, reader.New()).VerifyEntry(transport.Entry{Path: e.Path, Size: e.Size})
	require.NoError(t, err)
	require.Len(t, res.Divergences, 1)
	assert.Equal(t, "Metadata", res.Divergences[0].Field)
}

type fakeSource struct {
	candles   []domain.Candle
	liquidity []domain.LiquiditySample
}

func (s *fakeSource) FetchCandles(_ context.Context, _ domain.TimeBucket, _ reader.Filter) ([]domain.Candle, error) {
	return append([]domain.Candle(nil), s.candles...), nil
}

func (s *fakeSource) FetchLiquidity(_ context.Context, _ domain.TimeBucket, _ reader.Filter) ([]domain.LiquiditySample, error) {
	return append([]domain.LiquiditySample(nil), s.liquidity...), nil
}

func (s *fakeSource) FetchExchangeUniverse(_ context.Context) (*universe.ExchangeUniverse, error) {
	return universe.NewExchangeUniverse(nil), nil
}

func (s *fakeSource) FetchPairUniverse(_ context.Context, _ reader.PairFilter, ex *universe.ExchangeUniverse) (*universe.PairUniverse, error) {
	return universe.NewPairUniverse(nil, ex), nil
}

func TestStoreVerifier_VerifyCandles(t *testing.T) {
	ctx := context.Background()
	src := &fakeSource{candles: []domain.Candle{
		candle(1, 1, 11), candle(1, 0, 10), candle(2, 0, 20),
	}}
	store := memory.NewCandleStore()
	require.NoError(t, store.InsertBulk(ctx, domain.TimeBucket1h, []domain.Candle{
		candle(1, 0, 10), candle(1, 1, 11), candle(2, 0, 21),
	}))

	v := NewStoreVerifier(StoreVerifierOptions{
		Source:         src,
		CandleStore:    store,
		LiquidityStore: memory.NewLiquidityStore(),
	})
	report, err := v.VerifyCandles(ctx, domain.TimeBucket1h, []domain.PairID{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Matched, "pair 3 has no rows on either side")
	require.Equal(t, 1, report.Divergent)
	assert.Equal(t, "candles/1h/2", report.Results[1].Subject)
	assert.False(t, report.Results[1].Match)
}

func TestStoreVerifier_VerifyLiquidity(t *testing.T) {
	ctx := context.Background()
	samples := []domain.LiquiditySample{
		{PairID: 1, Timestamp: t0, Open: 100, High: 110, Low: 90, Close: 105},
	}
	store := memory.NewLiquidityStore()
	require.NoError(t, store.InsertBulk(ctx, domain.TimeBucket1d, samples))

	v := NewStoreVerifier(StoreVerifierOptions{
		Source:         &fakeSource{liquidity: samples},
		CandleStore:    memory.NewCandleStore(),
		LiquidityStore: store,
	})
	report, err := v.VerifyLiquidity(ctx, domain.TimeBucket1d, []domain.PairID{1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
}
