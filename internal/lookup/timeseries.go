package lookup

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"dex-market-data/internal/domain"
)

// Errors returned by lookup functions. Both match domain.ErrDataUnavailable.
var (
	ErrNoPriorSample     = fmt.Errorf("no sample at or before target: %w", domain.ErrDataUnavailable)
	ErrOutsideTolerance  = fmt.Errorf("latest sample is older than tolerance: %w", domain.ErrDataUnavailable)
	ErrNegativeTolerance = errors.New("tolerance must not be negative")
)

// AtOrBefore returns the index of the latest sample with timestamp <= target.
// Series must be sorted by timestamp ascending with no duplicates.
// Returns false if every sample is after target; a later sample is never
// returned, so callers cannot see the future.
func AtOrBefore[T domain.Sample[T]](series []T, target time.Time) (int, bool) {
	// First index strictly after target.
	i := sort.Search(len(series), func(i int) bool {
		return series[i].At().After(target)
	})
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// Nearest returns the sample at target, or the latest earlier sample if it
// lies within tolerance. The returned lag is target minus the sample time.
//
// Zero tolerance accepts exact matches only.
func Nearest[T domain.Sample[T]](series []T, target time.Time, tolerance time.Duration) (T, time.Duration, error) {
	var zero T
	if tolerance < 0 {
		return zero, 0, ErrNegativeTolerance
	}

	i, ok := AtOrBefore(series, target)
	if !ok {
		return zero, 0, ErrNoPriorSample
	}

	s := series[i]
	lag := target.Sub(s.At())
	if lag > tolerance {
		return zero, lag, fmt.Errorf("%w: lag %s > %s", ErrOutsideTolerance, lag, tolerance)
	}
	return s, lag, nil
}

// RangeBounds returns the half-open index range [lo, hi) of samples with
// start <= timestamp <= end.
func RangeBounds[T domain.Sample[T]](series []T, start, end time.Time) (int, int) {
	lo := sort.Search(len(series), func(i int) bool {
		return !series[i].At().Before(start)
	})
	hi := sort.Search(len(series), func(i int) bool {
		return series[i].At().After(end)
	})
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// StrictlyBefore returns the number of samples with timestamp < target.
// series[:n] is the history visible to a decision made at target, without
// the bar that is still forming.
func StrictlyBefore[T domain.Sample[T]](series []T, target time.Time) int {
	return sort.Search(len(series), func(i int) bool {
		return !series[i].At().Before(target)
	})
}
