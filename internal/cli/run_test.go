package cli

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizquery/internal/engine"
	"vizquery/internal/vizql"
)

// stubEngine builds an engine whose upstream serves the given rows.
func stubEngine(t *testing.T, body string) *engine.Engine {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/3.25/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<tsResponse><credentials token="tok-1"><site id="site-1" contentUrl="acme"/></credentials></tsResponse>`)
	})
	mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := vizql.NewClient(vizql.Config{
		ServerURL: srv.URL, Site: "acme", TokenName: "ci", TokenSecret: "secret",
		MaxAttempts: 2, RetryDelay: time.Millisecond,
	}, nil)
	return engine.New(client, nil)
}

func TestRunCommand_WritesOutputAndRecordsRun(t *testing.T) {
	store := openTestStore(t)
	saveTestQuery(t, store, "regions")
	eng := stubEngine(t, `{"data":[["East"],["West"]]}`)

	out := filepath.Join(t.TempDir(), "regions.csv")
	cmd := &RunCommand{Name: "regions", Output: out, globals: &GlobalFlags{}}
	require.NoError(t, cmd.executeWith(eng, store))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "East")

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].RowCount)
	assert.Empty(t, runs[0].Error)
	assert.Equal(t, out, runs[0].OutputPath)
}

func TestRunCommand_FailedOutputWriteStillRecorded(t *testing.T) {
	store := openTestStore(t)
	saveTestQuery(t, store, "regions")
	eng := stubEngine(t, `{"data":[["East"],["West"]]}`)

	// A regular file where the output directory should be makes the write
	// fail after a successful execution.
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cmd := &RunCommand{
		Name: "regions", Output: filepath.Join(blocker, "out.csv"),
		globals: &GlobalFlags{},
	}
	require.Error(t, cmd.executeWith(eng, store))

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1, "a failed write must still leave a history record")
	assert.Equal(t, 2, runs[0].RowCount)
	assert.Contains(t, runs[0].Error, "write output")
	assert.Empty(t, runs[0].OutputPath)
}

func TestRunCommand_FailedExecutionRecorded(t *testing.T) {
	store := openTestStore(t)
	saveTestQuery(t, store, "regions")
	eng := stubEngine(t, `{"data":[["East","extra-cell"]]}`)

	cmd := &RunCommand{Name: "regions", globals: &GlobalFlags{}}
	require.Error(t, cmd.executeWith(eng, store))

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Error, "malformed")
}
