package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"

	"dex-market-data/internal/domain"
)

// Row layouts written by this package. The decoders above accept these
// and the server's own files.

type candleRow struct {
	PairID       uint32    `parquet:"pair_id"`
	Timestamp    time.Time `parquet:"timestamp"`
	ExchangeRate float32   `parquet:"exchange_rate"`
	Open         float32   `parquet:"open"`
	Close        float32   `parquet:"close"`
	High         float32   `parquet:"high"`
	Low          float32   `parquet:"low"`
	Buys         uint32    `parquet:"buys"`
	Sells        uint32    `parquet:"sells"`
	BuyVolume    float32   `parquet:"buy_volume"`
	SellVolume   float32   `parquet:"sell_volume"`
	Avg          float32   `parquet:"avg"`
	StartBlock   uint32    `parquet:"start_block"`
	EndBlock     uint32    `parquet:"end_block"`
}

type liquidityRow struct {
	PairID       uint32    `parquet:"pair_id"`
	Timestamp    time.Time `parquet:"timestamp"`
	ExchangeRate float32   `parquet:"exchange_rate"`
	Open         float32   `parquet:"open"`
	Close        float32   `parquet:"close"`
	High         float32   `parquet:"high"`
	Low          float32   `parquet:"low"`
	Adds         uint32    `parquet:"adds"`
	Removes      uint32    `parquet:"removes"`
	Syncs        uint32    `parquet:"syncs"`
	AddVolume    float32   `parquet:"add_volume"`
	RemoveVolume float32   `parquet:"remove_volume"`
	StartBlock   uint32    `parquet:"start_block"`
	EndBlock     uint32    `parquet:"end_block"`
}

type pairRow struct {
	PairID                    uint32   `parquet:"pair_id"`
	ChainID                   uint32   `parquet:"chain_id"`
	ExchangeID                uint32   `parquet:"exchange_id"`
	Address                   string   `parquet:"address"`
	DEXType                   string   `parquet:"dex_type"`
	Token0Symbol              string   `parquet:"token0_symbol"`
	Token1Symbol              string   `parquet:"token1_symbol"`
	Token0Address             string   `parquet:"token0_address"`
	Token1Address             string   `parquet:"token1_address"`
	BaseTokenSymbol           string   `parquet:"base_token_symbol"`
	QuoteTokenSymbol          string   `parquet:"quote_token_symbol"`
	ExchangeSlug              string   `parquet:"exchange_slug"`
	PairSlug                  string   `parquet:"pair_slug"`
	Fee                       *uint32  `parquet:"fee,optional"`
	FlagInactive              bool     `parquet:"flag_inactive"`
	FlagUnsupportedQuoteToken bool     `parquet:"flag_unsupported_quote_token"`
	BuyVolume30d              *float64 `parquet:"buy_volume_30d,optional"`
	SellVolume30d             *float64 `parquet:"sell_volume_30d,optional"`
}

// WriteCandles encodes candles as a Parquet file.
func WriteCandles(w io.Writer, candles []domain.Candle) error {
	rows := make([]candleRow, len(candles))
	for i, c := range candles {
		rows[i] = toCandleRow(c)
	}
	return writeParquet(w, rows)
}

const (
	candleWriteBatch   = 1024
	maxRowsPerRowGroup = 64 << 10
)

// CandleWriter encodes candles as a Parquet file one row at a time.
// Row groups are flushed every maxRowsPerRowGroup rows so memory stays
// bounded however long the input is. Close must be called to finish
// the file.
type CandleWriter struct {
	pw   *parquet.GenericWriter[candleRow]
	buf  []candleRow
	rows int
}

// NewCandleWriter returns a writer that encodes into w.
func NewCandleWriter(w io.Writer) *CandleWriter {
	return &CandleWriter{
		pw: parquet.NewGenericWriter[candleRow](w,
			parquet.Compression(&parquet.Zstd),
			parquet.MaxRowsPerRowGroup(maxRowsPerRowGroup)),
		buf: make([]candleRow, 0, candleWriteBatch),
	}
}

// Write appends one candle.
func (cw *CandleWriter) Write(c domain.Candle) error {
	cw.buf = append(cw.buf, toCandleRow(c))
	cw.rows++
	if len(cw.buf) == cap(cw.buf) {
		return cw.flush()
	}
	return nil
}

// Rows returns how many candles have been written.
func (cw *CandleWriter) Rows() int {
	return cw.rows
}

// Close flushes buffered rows and writes the Parquet footer.
func (cw *CandleWriter) Close() error {
	if err := cw.flush(); err != nil {
		return err
	}
	if err := cw.pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func (cw *CandleWriter) flush() error {
	if len(cw.buf) == 0 {
		return nil
	}
	if _, err := cw.pw.Write(cw.buf); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	cw.buf = cw.buf[:0]
	return nil
}

func toCandleRow(c domain.Candle) candleRow {
	return candleRow{
		PairID:       uint32(c.PairID),
		Timestamp:    c.Timestamp.UTC(),
		ExchangeRate: float32(c.ExchangeRate),
		Open:         float32(c.Open),
		Close:        float32(c.Close),
		High:         float32(c.High),
		Low:          float32(c.Low),
		Buys:         c.Buys,
		Sells:        c.Sells,
		BuyVolume:    float32(c.BuyVolume),
		SellVolume:   float32(c.SellVolume),
		Avg:          float32(c.Avg),
		StartBlock:   c.StartBlock,
		EndBlock:     c.EndBlock,
	}
}

// WriteLiquidity encodes liquidity samples as a Parquet file.
func WriteLiquidity(w io.Writer, samples []domain.LiquiditySample) error {
	rows := make([]liquidityRow, len(samples))
	for i, s := range samples {
		rows[i] = liquidityRow{
			PairID:       uint32(s.PairID),
			Timestamp:    s.Timestamp.UTC(),
			ExchangeRate: float32(s.ExchangeRate),
			Open:         float32(s.Open),
			Close:        float32(s.Close),
			High:         float32(s.High),
			Low:          float32(s.Low),
			Adds:         s.Adds,
			Removes:      s.Removes,
			Syncs:        s.Syncs,
			AddVolume:    float32(s.AddVolume),
			RemoveVolume: float32(s.RemoveVolume),
			StartBlock:   s.StartBlock,
			EndBlock:     s.EndBlock,
		}
	}
	return writeParquet(w, rows)
}

// WritePairs encodes pair records as a Parquet file.
func WritePairs(w io.Writer, pairs []domain.Pair) error {
	rows := make([]pairRow, len(pairs))
	for i, p := range pairs {
		rows[i] = pairRow{
			PairID:                    uint32(p.ID),
			ChainID:                   uint32(p.ChainID),
			ExchangeID:                uint32(p.ExchangeID),
			Address:                   p.Address,
			DEXType:                   string(p.DEXType),
			Token0Symbol:              p.Token0Symbol,
			Token1Symbol:              p.Token1Symbol,
			Token0Address:             p.Token0Address,
			Token1Address:             p.Token1Address,
			BaseTokenSymbol:           p.BaseTokenSymbol,
			QuoteTokenSymbol:          p.QuoteTokenSymbol,
			ExchangeSlug:              p.ExchangeSlug,
			PairSlug:                  p.PairSlug,
			Fee:                       p.Fee,
			FlagInactive:              p.FlagInactive,
			FlagUnsupportedQuoteToken: p.FlagUnsupportedQuoteToken,
			BuyVolume30d:              p.BuyVolume30d,
			SellVolume30d:             p.SellVolume30d,
		}
	}
	return writeParquet(w, rows)
}

// WriteExchanges encodes the exchange universe JSON document.
func WriteExchanges(w io.Writer, exchanges []domain.Exchange) error {
	doc := struct {
		Exchanges map[string]domain.Exchange `json:"exchanges"`
	}{Exchanges: make(map[string]domain.Exchange, len(exchanges))}
	for _, e := range exchanges {
		doc.Exchanges[strconv.FormatUint(uint64(e.ID), 10)] = e
	}
	return json.NewEncoder(w).Encode(doc)
}

func writeParquet[R any](w io.Writer, rows []R) error {
	pw := parquet.NewGenericWriter[R](w, parquet.Compression(&parquet.Zstd))
	if _, err := pw.Write(rows); err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}
