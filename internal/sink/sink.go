// Package sink delivers finished result tables to their output
// destination.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vizquery/internal/query"
)

// Sink receives the result table of one completed run and returns the
// destination it was written to.
type Sink interface {
	Write(ctx context.Context, queryName string, table *query.ResultTable) (string, error)
}

// DefaultPattern names output files by query, date and time.
const DefaultPattern = "{name}_{date}_{time}"

// FileSink writes delimited files into a directory, naming each file from
// a pattern with {name}, {date} and {time} placeholders. The .csv suffix
// is appended when the pattern does not already end with it.
type FileSink struct {
	Dir     string
	Pattern string

	// now is swappable for tests.
	now func() time.Time
}

// NewFileSink creates a sink writing into dir with the given pattern (or
// DefaultPattern when empty).
func NewFileSink(dir, pattern string) *FileSink {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &FileSink{Dir: dir, Pattern: pattern, now: time.Now}
}

// Filename expands the pattern for a query name at the given moment.
func (s *FileSink) Filename(queryName string, at time.Time) string {
	name := s.Pattern
	name = strings.ReplaceAll(name, "{name}", sanitize(queryName))
	name = strings.ReplaceAll(name, "{date}", at.Format("2006-01-02"))
	name = strings.ReplaceAll(name, "{time}", at.Format("15-04-05"))
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return name
}

// Write renders the table as CSV. The header row carries the column
// labels; cells serialize with their natural formatting.
func (s *FileSink) Write(ctx context.Context, queryName string, table *query.ResultTable) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(s.Dir, s.Filename(queryName, s.now()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(table.Columns); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for _, row := range table.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return "", fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush output: %w", err)
	}
	return path, nil
}

// formatCell renders one cell value. JSON numbers arrive as float64;
// integral values print without a decimal point.
func formatCell(cell interface{}) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// sanitize strips path separators from user-chosen query names.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, string(os.PathSeparator), "_")
	return strings.ReplaceAll(name, "..", "_")
}
