// Package csvreport writes one CSV file per worker run under a dump
// directory, one row per completed loop iteration. This is deliberately
// built on encoding/csv rather than a third-party CSV library: the format
// here is a fixed four-column table with no quoting/dialect edge cases
// that would justify pulling in a dependency for it (see DESIGN.md).
package csvreport

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Row is one completed loop iteration.
type Row struct {
	Loop     int
	Result   string
	Duration time.Duration
	Summary  string
}

// Write creates dir (if needed) and writes a CSV file named
// "<workerName>_<timestamp>.csv" containing header + one row per entry in
// rows, returning the path written.
func Write(dir, workerName string, startedAt time.Time, rows []Row) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create csv dump dir: %w", err)
	}

	name := fmt.Sprintf("%s_%s.csv", workerName, startedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv dump file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"loop", "result", "duration_seconds", "summary"}); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{
			fmt.Sprintf("%d", r.Loop),
			r.Result,
			fmt.Sprintf("%.3f", r.Duration.Seconds()),
			r.Summary,
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}

	return path, w.Error()
}
