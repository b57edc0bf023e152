// Package reporting renders export and verification runs as Markdown or CSV.
package reporting

import (
	"time"

	"dex-market-data/internal/export"
	"dex-market-data/internal/verification"
)

// Report represents one CLI run.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Endpoint    string

	// Export steps in run order
	Exports []export.Result

	// Verification is nil when the run did not verify anything.
	Verification *verification.Report
}

// Totals sums the export steps.
type Totals struct {
	Read    int
	Skipped int
	Written int
}

// Totals returns the sums over all export steps.
func (r *Report) Totals() Totals {
	var t Totals
	for _, e := range r.Exports {
		t.Read += e.Read
		t.Skipped += e.Skipped
		t.Written += e.Written
	}
	return t
}
