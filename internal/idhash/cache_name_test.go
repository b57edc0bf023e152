package idhash

import (
	"strings"
	"testing"
	"time"

	"dex-market-data/internal/domain"
)

func TestCacheFileName(t *testing.T) {
	tests := []struct {
		name string
		req  domain.DatasetRequest
		want string
	}{
		{
			name: "pair universe",
			req:  domain.DatasetRequest{Kind: domain.DatasetPairUniverse},
			want: "pair-universe.parquet",
		},
		{
			name: "exchange universe",
			req:  domain.DatasetRequest{Kind: domain.DatasetExchangeUniverse},
			want: "exchange-universe.json",
		},
		{
			name: "candles",
			req:  domain.DatasetRequest{Kind: domain.DatasetCandles, Bucket: domain.TimeBucket4h},
			want: "candles-4h.parquet",
		},
		{
			name: "liquidity",
			req:  domain.DatasetRequest{Kind: domain.DatasetLiquidity, Bucket: domain.TimeBucket1d},
			want: "liquidity-samples-1d.parquet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CacheFileName(tt.req); got != tt.want {
				t.Errorf("CacheFileName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCacheFileName_JSONL(t *testing.T) {
	req := jsonlRequest(2, 1)
	got := CacheFileName(req)

	prefix := "candles-1h-between-2024-01-01_00-00-00-and-2024-02-01_12-00-00-"
	if !strings.HasPrefix(got, prefix) {
		t.Errorf("CacheFileName() = %q, want prefix %q", got, prefix)
	}
	if !strings.HasSuffix(got, ComputeRequestKey(req)+".parquet") {
		t.Errorf("CacheFileName() = %q, want request key suffix", got)
	}

	req.Start = time.Time{}
	req.End = time.Time{}
	got = CacheFileName(req)
	if !strings.HasPrefix(got, "candles-1h-between-any-and-any-") {
		t.Errorf("CacheFileName() = %q, want open window", got)
	}
}
