package reporting

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dex-market-data/internal/domain"
	"dex-market-data/internal/export"
	"dex-market-data/internal/verification"
)

func testReport() *Report {
	return &Report{
		GeneratedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Endpoint:    "https://example.test/api",
		Exports: []export.Result{
			{Table: "exchanges", Read: 2, Written: 2},
			{Table: "candles", Bucket: domain.TimeBucket1h, Read: 10, Skipped: 3, Written: 7},
		},
	}
}

func TestReport_Totals(t *testing.T) {
	assert.Equal(t, Totals{Read: 12, Skipped: 3, Written: 9}, testReport().Totals())
}

func TestRenderMarkdown(t *testing.T) {
	md := RenderMarkdown(testReport())

	assert.Contains(t, md, "# Dataset Report")
	assert.Contains(t, md, "Generated: 2024-03-01T12:00:00Z")
	assert.Contains(t, md, "| exchanges | - | 2 | 0 | 2 |")
	assert.Contains(t, md, "| candles | 1h | 10 | 3 | 7 |")
	assert.Contains(t, md, "| **Total** | | 12 | 3 | 9 |")
	assert.NotContains(t, md, "## Verification")
}

func TestRenderMarkdown_Verification(t *testing.T) {
	r := &Report{GeneratedAt: time.Now(), Verification: &verification.Report{
		Total: 2, Matched: 1, Divergent: 1,
		Results: []verification.Result{
			{Subject: "a.parquet", Match: true},
			{Subject: "b.parquet", Divergences: []verification.FieldDivergence{
				{Field: "Size", Expected: int64(10), Actual: int64(4)},
			}},
		},
	}}
	md := RenderMarkdown(r)

	assert.NotContains(t, md, "## Export")
	assert.Contains(t, md, "Checked: 2 | OK: 1 | Divergent: 1")
	assert.Contains(t, md, "| b.parquet | Size: expected 10, got 4 |")
	assert.NotContains(t, md, "a.parquet")

	r.Verification = &verification.Report{Total: 1, Matched: 1}
	assert.Contains(t, RenderMarkdown(r), "**All checks passed.**")
}

func TestRenderCSV(t *testing.T) {
	out, err := RenderCSV(testReport())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "table,bucket,read,skipped,written", lines[0])
	assert.Equal(t, "exchanges,,2,0,2", lines[1])
	assert.Equal(t, "candles,1h,10,3,7", lines[2])
}
