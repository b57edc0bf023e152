package idhash

import (
	"fmt"
	"time"

	"dex-market-data/internal/domain"
)

const fileTimeLayout = "2006-01-02_15-04-05"

// CacheFileName returns the cache file name for a dataset request.
//
// Full-dataset files are named after the dataset and bucket only, so a
// user can recognise them in the cache directory. Pair-filtered candle
// files carry the time window and the request key:
//
//	candles-1h-between-2024-01-01_00-00-00-and-any-<key>.parquet
func CacheFileName(req domain.DatasetRequest) string {
	switch req.Kind {
	case domain.DatasetPairUniverse:
		return "pair-universe.parquet"
	case domain.DatasetExchangeUniverse:
		return "exchange-universe.json"
	case domain.DatasetCandles:
		return fmt.Sprintf("candles-%s.parquet", req.Bucket)
	case domain.DatasetLiquidity:
		return fmt.Sprintf("liquidity-samples-%s.parquet", req.Bucket)
	default:
		return fmt.Sprintf("candles-%s-between-%s-and-%s-%s.parquet",
			req.Bucket,
			fileTime(req.Start),
			fileTime(TruncateEnd(req.Bucket, req.End)),
			ComputeRequestKey(req),
		)
	}
}

func fileTime(t time.Time) string {
	if t.IsZero() {
		return "any"
	}
	return t.UTC().Format(fileTimeLayout)
}
