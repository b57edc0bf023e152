package reporting

import (
	"encoding/csv"
	"strconv"
	"strings"
)

// RenderCSV renders the export steps as CSV string.
func RenderCSV(r *Report) (string, error) {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	// Header
	if err := w.Write([]string{"table", "bucket", "read", "skipped", "written"}); err != nil {
		return "", err
	}

	// Rows
	for _, e := range r.Exports {
		err := w.Write([]string{
			e.Table,
			string(e.Bucket),
			strconv.Itoa(e.Read),
			strconv.Itoa(e.Skipped),
			strconv.Itoa(e.Written),
		})
		if err != nil {
			return "", err
		}
	}

	w.Flush()
	return sb.String(), w.Error()
}
