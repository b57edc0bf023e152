package normalization

import "dex-market-data/internal/domain"

// DedupeSorted drops rows that repeat the (pair_id, timestamp) of the
// following row, so the last occurrence wins. Rows must be pre-sorted
// with SortSamples. The input slice is reused.
func DedupeSorted[T domain.Sample[T]](rows []T) []T {
	if len(rows) < 2 {
		return rows
	}

	out := rows[:0]
	for i := range rows {
		if i+1 < len(rows) && compareSamples(rows[i], rows[i+1]) == 0 {
			continue
		}
		out = append(out, rows[i])
	}
	return out
}
