package domain

import (
	"errors"
	"fmt"
	"time"
)

// DatasetKind identifies one downloadable dataset family.
type DatasetKind string

const (
	DatasetPairUniverse     DatasetKind = "pair-universe"
	DatasetExchangeUniverse DatasetKind = "exchange-universe"
	DatasetCandles          DatasetKind = "candles"
	DatasetLiquidity        DatasetKind = "liquidity"
	// DatasetCandlesJSONL is the pair-filtered candle stream. It is
	// converted to Parquet before entering the cache.
	DatasetCandlesJSONL DatasetKind = "candles-jsonl"
)

// AllDatasetKinds returns every dataset kind.
func AllDatasetKinds() []DatasetKind {
	return []DatasetKind{
		DatasetPairUniverse, DatasetExchangeUniverse,
		DatasetCandles, DatasetLiquidity, DatasetCandlesJSONL,
	}
}

// String returns the string representation of DatasetKind.
func (k DatasetKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k DatasetKind) IsValid() bool {
	switch k {
	case DatasetPairUniverse, DatasetExchangeUniverse, DatasetCandles, DatasetLiquidity, DatasetCandlesJSONL:
		return true
	}
	return false
}

// Bucketed reports whether the kind is parametrised by a time bucket.
func (k DatasetKind) Bucketed() bool {
	return k == DatasetCandles || k == DatasetLiquidity || k == DatasetCandlesJSONL
}

// ParseDatasetKind converts a CLI or config value into a DatasetKind.
func ParseDatasetKind(s string) (DatasetKind, error) {
	k := DatasetKind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("unknown dataset %q", s)
	}
	return k, nil
}

// DatasetRequest identifies one dataset download. Two requests with the
// same signature map to the same cache file.
type DatasetRequest struct {
	Kind   DatasetKind
	Bucket TimeBucket

	// PairIDs, Start and End are only used by DatasetCandlesJSONL.
	// Zero Start/End mean unbounded.
	PairIDs []PairID
	Start   time.Time
	End     time.Time

	// MaxBytes caps the streamed JSONL reply size, zero for no limit.
	MaxBytes int64

	// ForceRefresh downloads even if a cached copy exists.
	ForceRefresh bool
}

// Validate checks that the request is complete for its kind.
func (r DatasetRequest) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("unknown dataset %q", r.Kind)
	}
	if r.Kind.Bucketed() && !r.Bucket.IsValid() {
		return fmt.Errorf("dataset %s needs a valid time bucket, got %q", r.Kind, r.Bucket)
	}
	if !r.Kind.Bucketed() && r.Bucket != "" {
		return fmt.Errorf("dataset %s does not take a time bucket", r.Kind)
	}
	if r.Kind != DatasetCandlesJSONL {
		if len(r.PairIDs) > 0 || !r.Start.IsZero() || !r.End.IsZero() {
			return fmt.Errorf("dataset %s does not take pair or time filters", r.Kind)
		}
		return nil
	}
	if len(r.PairIDs) == 0 {
		return errors.New("candles-jsonl needs at least one pair id")
	}
	if !r.Start.IsZero() && !r.End.IsZero() && !r.End.After(r.Start) {
		return fmt.Errorf("end %s must be after start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	if r.MaxBytes < 0 {
		return errors.New("max bytes must not be negative")
	}
	return nil
}
