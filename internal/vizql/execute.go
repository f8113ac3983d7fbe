package vizql

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	retry "github.com/avast/retry-go"

	"vizquery/internal/query"
)

// Execute sends a compiled query request and parses the response into a
// result table whose rows align positionally with columns. Transient
// upstream failures are retried with backoff up to the configured attempt
// count; the last raw upstream error is surfaced after exhaustion.
// Cancelling ctx aborts the retry loop promptly and reports the
// cancellation, not a failure.
func (c *Client) Execute(ctx context.Context, req *QueryRequest, columns []string) (*query.ResultTable, error) {
	var table *query.ResultTable

	err := retry.Do(
		func() error {
			t, err := c.executeOnce(ctx, req, columns)
			if err != nil {
				return err
			}
			table = t
			return nil
		},
		retry.Attempts(c.cfg.MaxAttempts),
		retry.Delay(c.cfg.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.WithFields(map[string]interface{}{
				"attempt": n + 1, "error": err,
			}).Warn("query attempt failed, retrying")
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("execute query: %w", err)
	}
	return table, nil
}

// executeOnce performs a single attempt.
func (c *Client) executeOnce(ctx context.Context, req *QueryRequest, columns []string) (*query.ResultTable, error) {
	status, raw, err := c.post(ctx, c.vizqlURL("query-datasource"), req)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, classify(status, raw)
	}
	return parseRows(raw, columns)
}

// parseRows maps upstream rows positionally onto the requested columns. A
// row with a different cell count than the column count means the response
// cannot be trusted and the execution fails.
func parseRows(raw []byte, columns []string) (*query.ResultTable, error) {
	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("decode body: %v", err)}
	}

	table := &query.ResultTable{
		Columns: columns,
		Rows:    make([][]interface{}, 0, len(parsed.Data)),
	}
	for i, row := range parsed.Data {
		if len(row) != len(columns) {
			return nil, &MalformedResponseError{
				Reason: fmt.Sprintf("row %d has %d cells, want %d", i, len(row), len(columns)),
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}
