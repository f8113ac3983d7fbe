// Package engine ties the query pipeline together: validate a model,
// compile it, and execute it against the upstream service. Both the
// interactive CLI and the scheduler run queries through here.
package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"vizquery/internal/compile"
	"vizquery/internal/query"
	"vizquery/internal/vizql"
)

// Engine executes query models end to end.
type Engine struct {
	client *vizql.Client
	log    logrus.FieldLogger
}

// New creates an engine around an upstream client.
func New(client *vizql.Client, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{client: client, log: log}
}

// Client exposes the underlying upstream client for catalog operations.
func (e *Engine) Client() *vizql.Client {
	return e.client
}

// Run validates, compiles and executes a query model, returning its result
// table. Validation and compile errors surface immediately and are never
// retried; execution follows the client's retry policy.
func (e *Engine) Run(ctx context.Context, m *query.Model) (*query.ResultTable, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	req, err := compile.Compile(m)
	if err != nil {
		return nil, fmt.Errorf("compile query: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"datasource": m.DataSource().LUID,
		"fields":     len(m.Fields()),
		"filters":    len(m.Filters()),
	}).Debug("executing query")

	return e.client.Execute(ctx, req, m.ColumnLabels())
}
