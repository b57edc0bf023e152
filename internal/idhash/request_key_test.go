package idhash

import (
	"testing"
	"time"

	"dex-market-data/internal/domain"
)

func jsonlRequest(ids ...domain.PairID) domain.DatasetRequest {
	return domain.DatasetRequest{
		Kind:    domain.DatasetCandlesJSONL,
		Bucket:  domain.TimeBucket1h,
		PairIDs: ids,
		Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, 2, 1, 12, 34, 56, 0, time.UTC),
	}
}

func TestComputeRequestKey(t *testing.T) {
	got := ComputeRequestKey(jsonlRequest(1, 2, 3))
	if len(got) != 64 {
		t.Errorf("ComputeRequestKey() length = %d, want 64", len(got))
	}

	got2 := ComputeRequestKey(jsonlRequest(1, 2, 3))
	if got != got2 {
		t.Errorf("ComputeRequestKey() not deterministic: %s != %s", got, got2)
	}
}

func TestComputeRequestKey_PairOrderIrrelevant(t *testing.T) {
	a := ComputeRequestKey(jsonlRequest(3, 1, 2))
	b := ComputeRequestKey(jsonlRequest(1, 2, 3, 3))
	if a != b {
		t.Errorf("pair order or duplicates changed the key: %s != %s", a, b)
	}
}

func TestComputeRequestKey_DifferentInputs(t *testing.T) {
	base := ComputeRequestKey(jsonlRequest(1, 2))

	diffPairs := ComputeRequestKey(jsonlRequest(1, 3))
	if base == diffPairs {
		t.Error("Different pairs should produce different hash")
	}

	req := jsonlRequest(1, 2)
	req.Bucket = domain.TimeBucket1d
	if base == ComputeRequestKey(req) {
		t.Error("Different bucket should produce different hash")
	}

	req = jsonlRequest(1, 2)
	req.Start = req.Start.Add(24 * time.Hour)
	if base == ComputeRequestKey(req) {
		t.Error("Different start should produce different hash")
	}

	req = jsonlRequest(1, 2)
	req.ForceRefresh = true
	if base != ComputeRequestKey(req) {
		t.Error("ForceRefresh should not change the hash")
	}
}

func TestComputeRequestKey_EndTruncated(t *testing.T) {
	a := jsonlRequest(1)
	b := jsonlRequest(1)
	b.End = b.End.Add(20 * time.Minute)
	if ComputeRequestKey(a) != ComputeRequestKey(b) {
		t.Error("ends within the same hour should share a key for 1h bucket")
	}
}

func TestTruncateEnd(t *testing.T) {
	end := time.Date(2024, 2, 1, 12, 34, 56, 789, time.UTC)
	tests := []struct {
		bucket domain.TimeBucket
		want   time.Time
	}{
		{domain.TimeBucket1m, time.Date(2024, 2, 1, 12, 34, 0, 0, time.UTC)},
		{domain.TimeBucket15m, time.Date(2024, 2, 1, 12, 34, 0, 0, time.UTC)},
		{domain.TimeBucket1h, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)},
		{domain.TimeBucket4h, time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)},
		{domain.TimeBucket1d, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
		{domain.TimeBucket7d, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.bucket), func(t *testing.T) {
			if got := TruncateEnd(tt.bucket, end); !got.Equal(tt.want) {
				t.Errorf("TruncateEnd() = %s, want %s", got, tt.want)
			}
		})
	}

	if got := TruncateEnd(domain.TimeBucket1h, time.Time{}); !got.IsZero() {
		t.Errorf("TruncateEnd(zero) = %s, want zero", got)
	}
}
