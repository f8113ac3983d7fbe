package vizql

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesRequest() *QueryRequest {
	return &QueryRequest{
		Datasource: DatasourceRef{DatasourceLUID: "ds-1"},
		Query: QuerySpec{Fields: []FieldRef{
			{FieldCaption: "Region"},
			{FieldCaption: "Sales", Function: "SUM"},
		}},
	}
}

func TestExecute_ParsesPositionalRows(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		assert.Equal(t, "tok-1", r.Header.Get("X-Tableau-Auth"))
		fmt.Fprint(w, `{"data":[["East",100.5],["West",200]]}`)
	})

	table, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "SUM(Sales)"}, table.Columns)
	require.Equal(t, 2, table.RowCount())
	assert.Equal(t, "East", table.Rows[0][0])
	assert.Equal(t, 100.5, table.Rows[0][1])
	assert.EqualValues(t, 1, queries.Load())
}

func TestExecute_ReauthenticatesOnceOn401(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		if r.Header.Get("X-Tableau-Auth") == "tok-1" {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"data":[["East",1]]}`)
	})

	client := ts.client(t)
	_, _, err := client.session(context.Background())
	require.NoError(t, err)

	table, err := client.Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.NoError(t, err)
	assert.Equal(t, 1, table.RowCount())

	assert.EqualValues(t, 2, ts.signins.Load(), "exactly one re-authentication")
	assert.EqualValues(t, 2, queries.Load(), "original request replayed once")
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		if queries.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"data":[]}`)
	})

	table, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.NoError(t, err)
	assert.Equal(t, 0, table.RowCount())
	assert.EqualValues(t, 2, queries.Load())
}

func TestExecute_TransientBudgetExhausted(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		http.Error(w, "still overloaded", http.StatusServiceUnavailable)
	})

	_, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue, "last raw upstream error must be preserved")
	assert.True(t, ue.Transient)
	assert.Equal(t, http.StatusServiceUnavailable, ue.Status)
	assert.Contains(t, ue.Body, "still overloaded")
	assert.EqualValues(t, 3, queries.Load(), "attempt budget is MaxAttempts")
}

func TestExecute_PermanentErrorNotRetried(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		http.Error(w, "malformed filter clause", http.StatusBadRequest)
	})

	_, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.Error(t, err)

	var ue *UpstreamError
	require.ErrorAs(t, err, &ue)
	assert.False(t, ue.Transient)
	assert.EqualValues(t, 1, queries.Load(), "permanent failures surface immediately")
}

func TestExecute_UnknownDataSource(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		http.Error(w, "no such datasource", http.StatusNotFound)
	})

	_, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	assert.ErrorIs(t, err, ErrUnknownDataSource)
	assert.EqualValues(t, 1, queries.Load())
}

func TestExecute_RowWidthMismatch(t *testing.T) {
	ts := newTestServer(t)
	var queries atomic.Int64
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		queries.Add(1)
		fmt.Fprint(w, `{"data":[["East",1],["West"]]}`)
	})

	_, err := ts.client(t).Execute(context.Background(), salesRequest(), []string{"Region", "SUM(Sales)"})
	require.Error(t, err)

	var me *MalformedResponseError
	require.ErrorAs(t, err, &me)
	assert.Contains(t, me.Reason, "row 1")
	assert.EqualValues(t, 1, queries.Load(), "malformed responses are not retried")
}

func TestExecute_Cancelled(t *testing.T) {
	ts := newTestServer(t)
	ts.mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ts.client(t).Execute(ctx, salesRequest(), []string{"Region", "SUM(Sales)"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "cancelled")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(&MalformedResponseError{Reason: "x"}))
	assert.False(t, isTransient(fmt.Errorf("wrap: %w", ErrUnknownDataSource)))
	assert.False(t, isTransient(fmt.Errorf("%w: bad secret", errAuth)))
	assert.True(t, isTransient(&UpstreamError{Status: 503, Transient: true}))
	assert.False(t, isTransient(&UpstreamError{Status: 400}))
	// Opaque transport failures are retried.
	assert.True(t, isTransient(errors.New("connection reset by peer")))
}
