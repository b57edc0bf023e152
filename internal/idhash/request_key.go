package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"dex-market-data/internal/domain"
)

// ComputeRequestKey computes a deterministic key for a dataset request using SHA256.
// Formula: SHA256(kind|bucket|sorted_pair_ids|start|truncated_end|max_bytes)
// Returns hex-encoded hash (64 characters).
//
// ForceRefresh is not part of the key: a refresh replaces the same file.
func ComputeRequestKey(req domain.DatasetRequest) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		req.Kind,
		req.Bucket,
		joinPairIDs(req.PairIDs),
		formatKeyTime(req.Start),
		formatKeyTime(TruncateEnd(req.Bucket, req.End)),
		req.MaxBytes,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// TruncateEnd coarsens an end time so that requests issued a few seconds
// apart share a cache entry. Seconds are always dropped, minutes for
// buckets of one hour or more and hours for buckets of one day or more.
func TruncateEnd(bucket domain.TimeBucket, end time.Time) time.Time {
	if end.IsZero() {
		return end
	}
	end = end.UTC()
	width := bucket.Duration()
	unit := time.Minute
	if width >= time.Hour {
		unit = time.Hour
	}
	if width >= 24*time.Hour {
		y, m, d := end.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return end.Truncate(unit)
}

// SortedPairIDs returns a sorted copy without duplicates.
func SortedPairIDs(ids []domain.PairID) []domain.PairID {
	out := make([]domain.PairID, 0, len(ids))
	seen := make(map[domain.PairID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinPairIDs(ids []domain.PairID) string {
	sorted := SortedPairIDs(ids)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatUint(uint64(id), 10)
	}
	return strings.Join(parts, ",")
}

func formatKeyTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
