package sink

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizquery/internal/query"
)

var fixedNow = time.Date(2024, time.March, 9, 14, 30, 5, 0, time.UTC)

func fixedSink(dir, pattern string) *FileSink {
	s := NewFileSink(dir, pattern)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestFilename_PatternExpansion(t *testing.T) {
	s := fixedSink(t.TempDir(), "{name}_{date}_{time}")
	assert.Equal(t, "sales_2024-03-09_14-30-05.csv", s.Filename("sales", fixedNow))
}

func TestFilename_DefaultPattern(t *testing.T) {
	s := fixedSink(t.TempDir(), "")
	assert.Equal(t, "sales_2024-03-09_14-30-05.csv", s.Filename("sales", fixedNow))
}

func TestFilename_KeepsExplicitCSVSuffix(t *testing.T) {
	s := fixedSink(t.TempDir(), "report.csv")
	assert.Equal(t, "report.csv", s.Filename("sales", fixedNow))
}

func TestFilename_SanitizesQueryName(t *testing.T) {
	s := fixedSink(t.TempDir(), "{name}")
	name := s.Filename("../evil/name", fixedNow)
	assert.NotContains(t, name, string(os.PathSeparator))
	assert.NotContains(t, name, "..")
}

func TestWrite_HeaderAndRows(t *testing.T) {
	dir := t.TempDir()
	s := fixedSink(dir, "{name}")

	table := &query.ResultTable{
		Columns: []string{"Region", "SUM(Sales)", "Returned"},
		Rows: [][]interface{}{
			{"East", 100.5, true},
			{"West", float64(200), false},
			{nil, 0.25, nil},
		},
	}

	path, err := s.Write(context.Background(), "sales", table)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "sales.csv"), path)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Region", "SUM(Sales)", "Returned"}, records[0])
	assert.Equal(t, []string{"East", "100.5", "true"}, records[1])
	assert.Equal(t, []string{"West", "200", "false"}, records[2], "integral floats print without a decimal point")
	assert.Equal(t, []string{"", "0.25", ""}, records[3], "nulls render empty")
}

func TestWrite_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	s := fixedSink(dir, "{name}")

	table := &query.ResultTable{Columns: []string{"Region"}, Rows: [][]interface{}{{"East"}}}
	path, err := s.Write(context.Background(), "q", table)
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestWrite_CancelledContext(t *testing.T) {
	s := fixedSink(t.TempDir(), "{name}")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Write(ctx, "q", &query.ResultTable{Columns: []string{"A"}})
	assert.ErrorIs(t, err, context.Canceled)
}
