package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dex-market-data/internal/reporting"
)

// writeReport writes r to path as CSV for a .csv path and as Markdown
// otherwise. An empty path writes nothing, "-" writes to stdout.
func (e *runEnv) writeReport(path string, r *reporting.Report) error {
	if path == "" {
		return nil
	}
	r.GeneratedAt = time.Now().UTC()

	var out string
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		csv, err := reporting.RenderCSV(r)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		out = csv
	} else {
		out = reporting.RenderMarkdown(r)
	}

	if path == "-" {
		fmt.Print(out)
		return nil
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	e.logger.WithField("path", path).Info("Report written")
	return nil
}
