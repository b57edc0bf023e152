package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Dataset Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.UTC().Format(time.RFC3339)))
	if r.Endpoint != "" {
		sb.WriteString(fmt.Sprintf("Endpoint: %s\n\n", r.Endpoint))
	}

	if len(r.Exports) > 0 {
		sb.WriteString("## Export\n\n")
		sb.WriteString("| Table | Bucket | Read | Skipped | Written |\n")
		sb.WriteString("|-------|--------|------|---------|---------|\n")
		for _, e := range r.Exports {
			bucket := string(e.Bucket)
			if bucket == "" {
				bucket = "-"
			}
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d |\n", e.Table, bucket, e.Read, e.Skipped, e.Written))
		}
		t := r.Totals()
		sb.WriteString(fmt.Sprintf("| **Total** | | %d | %d | %d |\n\n", t.Read, t.Skipped, t.Written))
	}

	if v := r.Verification; v != nil {
		sb.WriteString("## Verification\n\n")
		sb.WriteString(fmt.Sprintf("Checked: %d | OK: %d | Divergent: %d\n\n", v.Total, v.Matched, v.Divergent))
		if v.Divergent == 0 {
			sb.WriteString("**All checks passed.**\n\n")
		} else {
			sb.WriteString("| Subject | Divergence |\n")
			sb.WriteString("|---------|------------|\n")
			for _, res := range v.Results {
				for _, d := range res.Divergences {
					sb.WriteString(fmt.Sprintf("| %s | %s |\n", res.Subject, escapeCell(d.String())))
				}
			}
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
