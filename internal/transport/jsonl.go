package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"dex-market-data/internal/domain"
)

// jsonlCandle is one line of the candles-jsonl stream. Keys are
// compressed by the server; chain id (ci), exchange id (ei) and the
// deprecated total volume (v) are not used.
type jsonlCandle struct {
	PairID       *uint32         `json:"p"`
	Timestamp    *float64        `json:"ts"`
	Open         float64         `json:"o"`
	High         float64         `json:"h"`
	Low          float64         `json:"l"`
	Close        float64         `json:"c"`
	ExchangeRate float64         `json:"xr"`
	Buys         uint32          `json:"b"`
	Sells        uint32          `json:"s"`
	BuyVolume    float64         `json:"bv"`
	SellVolume   float64         `json:"sv"`
	StartBlock   uint32          `json:"sb"`
	EndBlock     uint32          `json:"eb"`
	Error        json.RawMessage `json:"error"`
}

// decodeJSONL decodes the candle stream line by line and hands each
// candle to emit, returning how many were emitted. An error object
// anywhere in the stream aborts the download; the server sends one when
// the reply would exceed max_bytes.
//
// A line cut short is returned as io.ErrUnexpectedEOF so the caller can
// retry. A line that is not JSON at all is a *ServerError.
func decodeJSONL(r io.Reader, url string, emit func(domain.Candle) error) (int, error) {
	dec := json.NewDecoder(r)
	n := 0
	for line := 1; ; line++ {
		var item jsonlCandle
		err := dec.Decode(&item)
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			if malformedJSON(err) {
				return n, &ServerError{URL: url, Message: fmt.Sprintf("malformed candle line %d: %v", line, err)}
			}
			return n, fmt.Errorf("decode candle line %d: %w", line, err)
		}
		if hasError(item.Error) {
			return n, &ServerError{URL: url, Message: string(item.Error)}
		}
		if item.PairID == nil || item.Timestamp == nil {
			return n, &ServerError{URL: url, Message: fmt.Sprintf("line %d lacks pair id or timestamp", line)}
		}

		sec, frac := math.Modf(*item.Timestamp)
		err = emit(domain.Candle{
			PairID:       domain.PairID(*item.PairID),
			Timestamp:    time.Unix(int64(sec), int64(frac*1e9)).UTC(),
			ExchangeRate: item.ExchangeRate,
			Open:         item.Open,
			High:         item.High,
			Low:          item.Low,
			Close:        item.Close,
			Buys:         item.Buys,
			Sells:        item.Sells,
			BuyVolume:    item.BuyVolume,
			SellVolume:   item.SellVolume,
			StartBlock:   item.StartBlock,
			EndBlock:     item.EndBlock,
		})
		if err != nil {
			return n, err
		}
		n++
	}
}

// hasError reports whether a raw "error" value is present and not null.
func hasError(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func malformedJSON(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
