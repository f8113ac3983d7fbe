// Package vizql talks to the remote analytics server: session credential
// exchange, data source catalog, and query execution against the VizQL
// data-service endpoints.
package vizql

// Wire types for the query-datasource endpoint. The shapes are fixed by
// the upstream contract and serialize deterministically with encoding/json.

// QueryRequest is the full request payload for one query execution.
type QueryRequest struct {
	Datasource DatasourceRef `json:"datasource"`
	Query      QuerySpec     `json:"query"`
}

// DatasourceRef names the published data source to query.
type DatasourceRef struct {
	DatasourceLUID string `json:"datasourceLuid"`
}

// QuerySpec carries the selected fields and filters.
type QuerySpec struct {
	Fields  []FieldRef  `json:"fields"`
	Filters []FilterRef `json:"filters,omitempty"`
}

// FieldRef selects one field; Function is set only for aggregated measures.
type FieldRef struct {
	FieldCaption string `json:"fieldCaption"`
	Function     string `json:"function,omitempty"`
}

// Filter type discriminators understood by the upstream service.
const (
	FilterSet          = "SET"
	FilterMatch        = "MATCH"
	FilterQuantNumeric = "QUANTITATIVE_NUMERICAL"
	FilterQuantDate    = "QUANTITATIVE_DATE"
	FilterRelativeDate = "DATE"
)

// Quantitative sub-kinds.
const (
	QuantRange       = "RANGE"
	QuantMin         = "MIN"
	QuantMax         = "MAX"
	QuantOnlyNull    = "ONLY_NULL"
	QuantOnlyNonNull = "ONLY_NON_NULL"
)

// FilterRef is one filter clause. Only the operands relevant to FilterType
// are populated.
type FilterRef struct {
	FilterType string         `json:"filterType"`
	Field      FilterFieldRef `json:"field"`

	// SET
	Values  []string `json:"values,omitempty"`
	Exclude *bool    `json:"exclude,omitempty"`

	// MATCH
	Contains string `json:"contains,omitempty"`

	// QUANTITATIVE_NUMERICAL / QUANTITATIVE_DATE
	QuantitativeFilterType string   `json:"quantitativeFilterType,omitempty"`
	Min                    *float64 `json:"min,omitempty"`
	Max                    *float64 `json:"max,omitempty"`
	MinDate                string   `json:"minDate,omitempty"`
	MaxDate                string   `json:"maxDate,omitempty"`

	// DATE (relative)
	PeriodType    string `json:"periodType,omitempty"`
	DateRangeType string `json:"dateRangeType,omitempty"`
	RangeN        int    `json:"rangeN,omitempty"`
}

// FilterFieldRef names the filtered field.
type FilterFieldRef struct {
	FieldCaption string `json:"fieldCaption"`
}

// queryResponse is the response body of query-datasource: rows of cell
// values, positional in requested field order.
type queryResponse struct {
	Data [][]interface{} `json:"data"`
}

// metadataResponse is the response body of read-metadata.
type metadataResponse struct {
	Data []struct {
		FieldName string `json:"fieldName"`
		DataType  string `json:"dataType"`
	} `json:"data"`
}

// listDatasourcesResponse is the response body of the VizQL
// list-datasources fallback endpoint.
type listDatasourcesResponse struct {
	Datasources []struct {
		Name string `json:"name"`
		LUID string `json:"luid"`
	} `json:"datasources"`
}
