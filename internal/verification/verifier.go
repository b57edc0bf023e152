// Package verification checks that cached dataset files and exported
// store rows still match their source.
package verification

import (
	"fmt"
	"math"

	"dex-market-data/internal/domain"
)

// FloatTolerance is the tolerance for price comparisons. Stores round
// through float64 columns, so exact equality is expected; the tolerance
// only absorbs formatting noise.
const FloatTolerance = 1e-9

// maxDivergences caps how many row divergences one result keeps.
const maxDivergences = 10

// FieldDivergence represents a mismatch between expected and actual values.
type FieldDivergence struct {
	Field    string // field name, row fields are prefixed with the row timestamp
	Expected any    // value from the source
	Actual   any    // value found
}

func (d FieldDivergence) String() string {
	return fmt.Sprintf("%s: expected %v, got %v", d.Field, d.Expected, d.Actual)
}

// Result contains the result of verifying one subject: a cached file or
// one pair's series in a store.
type Result struct {
	Subject     string
	Match       bool
	Divergences []FieldDivergence
}

// Report contains results for batch verification.
type Report struct {
	Total     int
	Matched   int
	Divergent int
	Results   []Result
}

func (r *Report) add(res Result) {
	res.Match = len(res.Divergences) == 0
	r.Total++
	if res.Match {
		r.Matched++
	} else {
		r.Divergent++
	}
	r.Results = append(r.Results, res)
}

// CompareSeries compares a stored series with the source series of the
// same pair. Both must be sorted by timestamp. At most maxDivergences
// row divergences are reported.
func CompareSeries[T domain.Sample[T]](source, stored []T) []FieldDivergence {
	var divergences []FieldDivergence

	if len(source) != len(stored) {
		divergences = append(divergences, FieldDivergence{
			Field:    "Rows",
			Expected: len(source),
			Actual:   len(stored),
		})
	}

	for i := 0; i < min(len(source), len(stored)) && len(divergences) < maxDivergences; i++ {
		want, got := source[i], stored[i]
		at := want.At().UTC().Format("2006-01-02T15:04:05Z")

		if !want.At().Equal(got.At()) {
			divergences = append(divergences, FieldDivergence{
				Field:    at + ".Timestamp",
				Expected: want.At(),
				Actual:   got.At(),
			})
			// Later rows are shifted; comparing them adds noise.
			break
		}
		divergences = append(divergences, compareOHLC(at, want.Prices(), got.Prices())...)
	}

	if len(divergences) > maxDivergences {
		divergences = divergences[:maxDivergences]
	}
	return divergences
}

func compareOHLC(prefix string, want, got domain.OHLC) []FieldDivergence {
	var divergences []FieldDivergence
	fields := []struct {
		name      string
		want, got float64
	}{
		{"Open", want.Open, got.Open},
		{"High", want.High, got.High},
		{"Low", want.Low, got.Low},
		{"Close", want.Close, got.Close},
	}
	for _, f := range fields {
		if !floatEquals(f.want, f.got) {
			divergences = append(divergences, FieldDivergence{
				Field:    prefix + "." + f.name,
				Expected: f.want,
				Actual:   f.got,
			})
		}
	}
	return divergences
}

// floatEquals compares two float64 values within FloatTolerance, relative
// to their magnitude for large prices.
func floatEquals(a, b float64) bool {
	diff := math.Abs(a - b)
	if diff <= FloatTolerance {
		return true
	}
	return diff <= FloatTolerance*math.Max(math.Abs(a), math.Abs(b))
}
