package metrics

import (
	"sort"

	"dex-market-data/internal/universe"
)

// Summarize computes stats for every pair of u.
// Results are sorted by volume DESC, pair id ASC; top limits the count,
// zero for all.
func Summarize(u *universe.CandleUniverse, top int) ([]PairStats, error) {
	handles := u.Handles()
	out := make([]PairStats, 0, len(handles))
	for _, h := range handles {
		series, err := u.Series(h)
		if err != nil {
			return nil, err
		}
		out = append(out, ComputePairStats(h.PairID(), series))
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].PairID < out[j].PairID
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out, nil
}
