package domain

import (
	"fmt"
	"time"
)

// TimeBucket is the fixed duration a candle or liquidity sample summarises.
// All buckets are in UTC.
type TimeBucket string

const (
	TimeBucket1m  TimeBucket = "1m"
	TimeBucket5m  TimeBucket = "5m"
	TimeBucket15m TimeBucket = "15m"
	TimeBucket1h  TimeBucket = "1h"
	TimeBucket4h  TimeBucket = "4h"
	TimeBucket1d  TimeBucket = "1d"
	TimeBucket7d  TimeBucket = "7d"
	TimeBucket30d TimeBucket = "30d"
)

var bucketDurations = map[TimeBucket]time.Duration{
	TimeBucket1m:  time.Minute,
	TimeBucket5m:  5 * time.Minute,
	TimeBucket15m: 15 * time.Minute,
	TimeBucket1h:  time.Hour,
	TimeBucket4h:  4 * time.Hour,
	TimeBucket1d:  24 * time.Hour,
	TimeBucket7d:  7 * 24 * time.Hour,
	TimeBucket30d: 30 * 24 * time.Hour,
}

// AllTimeBuckets lists the buckets served by the dataset API, shortest first.
func AllTimeBuckets() []TimeBucket {
	return []TimeBucket{
		TimeBucket1m, TimeBucket5m, TimeBucket15m, TimeBucket1h,
		TimeBucket4h, TimeBucket1d, TimeBucket7d, TimeBucket30d,
	}
}

// ParseTimeBucket converts an API bucket value such as "1h".
func ParseTimeBucket(s string) (TimeBucket, error) {
	b := TimeBucket(s)
	if !b.IsValid() {
		return "", fmt.Errorf("unknown time bucket %q", s)
	}
	return b, nil
}

// String returns the API value of the bucket.
func (b TimeBucket) String() string {
	return string(b)
}

// IsValid checks if the bucket is one of the supported values.
func (b TimeBucket) IsValid() bool {
	_, ok := bucketDurations[b]
	return ok
}

// Duration returns the bucket width. Zero for unknown buckets.
func (b TimeBucket) Duration() time.Duration {
	return bucketDurations[b]
}

// Truncate aligns t to the start of its bucket (UTC, counted from the Unix epoch).
func (b TimeBucket) Truncate(t time.Time) time.Time {
	d := b.Duration()
	if d == 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(d)
}
