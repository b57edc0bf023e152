package normalization

import (
	"fmt"
	"time"

	"dex-market-data/internal/domain"
)

// ForwardFill inserts a flat sample for every missing bucket of one pair's
// series. The dataset has no rows for buckets without trades; the filled
// rows carry open and close from the previous close and no activity.
//
// series must belong to one pair and be strictly ordered by timestamp.
// If until is after the last sample, the series is extended up to and
// including the bucket containing until.
func ForwardFill[T domain.Sample[T]](series []T, bucket domain.TimeBucket, until time.Time) ([]T, error) {
	step := bucket.Duration()
	if step == 0 {
		return nil, fmt.Errorf("forward fill: unknown time bucket %q", bucket)
	}
	if len(series) == 0 {
		return series, nil
	}

	out := make([]T, 0, len(series))
	out = append(out, series[0])
	for i := 1; i < len(series); i++ {
		prev := out[len(out)-1]
		for ts := prev.At().Add(step); ts.Before(series[i].At()); ts = ts.Add(step) {
			out = append(out, prev.ForwardFilled(ts))
		}
		out = append(out, series[i])
	}

	if !until.IsZero() {
		last := out[len(out)-1]
		end := bucket.Truncate(until)
		for ts := last.At().Add(step); !ts.After(end); ts = ts.Add(step) {
			out = append(out, last.ForwardFilled(ts))
		}
	}
	return out, nil
}
