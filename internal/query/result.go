package query

// ResultTable holds the rows produced by one execution. Columns align with
// the query model's selected-field order; each row is an ordered slice of
// cell values in the same order. A table is produced fresh per execution
// and never mutated afterwards.
type ResultTable struct {
	Columns []string
	Rows    [][]interface{}
}

// RowCount returns the number of data rows.
func (t *ResultTable) RowCount() int {
	return len(t.Rows)
}
