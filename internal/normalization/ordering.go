package normalization

import (
	"sort"

	"dex-market-data/internal/domain"
)

// SortSamples orders rows by (pair_id ASC, timestamp ASC).
// The pair is the partition key and the timestamp orders rows inside a
// partition. The sort is stable, so duplicates keep their input order and
// DedupeSorted can keep the last one.
func SortSamples[T domain.Sample[T]](rows []T) {
	sort.SliceStable(rows, func(i, j int) bool {
		return compareSamples(rows[i], rows[j]) < 0
	})
}

// IsSortedStrict reports whether rows are ordered by (pair_id, timestamp)
// with strictly increasing timestamps inside each pair.
func IsSortedStrict[T domain.Sample[T]](rows []T) bool {
	for i := 1; i < len(rows); i++ {
		if compareSamples(rows[i-1], rows[i]) >= 0 {
			return false
		}
	}
	return true
}

// compareSamples returns:
//   - negative if a < b
//   - zero if a == b
//   - positive if a > b
func compareSamples[T domain.Sample[T]](a, b T) int {
	if a.Key() != b.Key() {
		if a.Key() < b.Key() {
			return -1
		}
		return 1
	}
	at, bt := a.At(), b.At()
	if !at.Equal(bt) {
		if at.Before(bt) {
			return -1
		}
		return 1
	}
	return 0
}
