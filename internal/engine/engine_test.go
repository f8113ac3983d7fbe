package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizquery/internal/query"
	"vizquery/internal/vizql"
)

func stubClient(t *testing.T, queryHandler http.HandlerFunc) *vizql.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/3.25/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<tsResponse><credentials token="tok-1"><site id="site-1" contentUrl="acme"/></credentials></tsResponse>`)
	})
	mux.HandleFunc("/api/v1/vizql-data-service/query-datasource", queryHandler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return vizql.NewClient(vizql.Config{
		ServerURL: srv.URL, Site: "acme", TokenName: "ci", TokenSecret: "secret",
		MaxAttempts: 2, RetryDelay: time.Millisecond,
	}, nil)
}

func salesModel(t *testing.T) *query.Model {
	t.Helper()
	m := query.New(query.DataSource{LUID: "ds-1", Name: "Superstore"})
	require.NoError(t, m.AddField(query.Field{
		Name: "Region", DataSource: "ds-1", Role: query.RoleDimension, Type: query.TypeString,
	}, ""))
	require.NoError(t, m.AddField(query.Field{
		Name: "Sales", DataSource: "ds-1", Role: query.RoleMeasure, Type: query.TypeNumber,
	}, query.AggSum))
	return m
}

func TestRun_EndToEnd(t *testing.T) {
	client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[["East",100],["West",250.5]]}`)
	})
	eng := New(client, nil)

	table, err := eng.Run(context.Background(), salesModel(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "SUM(Sales)"}, table.Columns)
	assert.Equal(t, 2, table.RowCount())
}

func TestRun_InvalidModelNeverReachesUpstream(t *testing.T) {
	client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("an invalid model must not be executed")
	})
	eng := New(client, nil)

	m := query.New(query.DataSource{LUID: "ds-1"})
	_, err := eng.Run(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one field")
}

func TestRun_UpstreamErrorSurfaces(t *testing.T) {
	client := stubClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	})
	eng := New(client, nil)

	_, err := eng.Run(context.Background(), salesModel(t))
	require.Error(t, err)

	var ue *vizql.UpstreamError
	assert.ErrorAs(t, err, &ue)
}
