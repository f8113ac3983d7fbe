package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizquery/internal/query"
)

func testCatalog() map[string]query.Field {
	return map[string]query.Field{
		"Region": {Name: "Region", DataSource: "ds-1", Role: query.RoleDimension, Type: query.TypeString},
		"Sales":  {Name: "Sales", DataSource: "ds-1", Role: query.RoleMeasure, Type: query.TypeNumber},
		"Order Date": {
			Name: "Order Date", DataSource: "ds-1", Role: query.RoleDimension, Type: query.TypeDate,
		},
	}
}

func TestParseFieldSpec(t *testing.T) {
	name, agg, err := parseFieldSpec("Region")
	require.NoError(t, err)
	assert.Equal(t, "Region", name)
	assert.Empty(t, agg)

	name, agg, err = parseFieldSpec("SUM(Sales)")
	require.NoError(t, err)
	assert.Equal(t, "Sales", name)
	assert.Equal(t, query.AggSum, agg)

	name, agg, err = parseFieldSpec("countd( Customer ID )")
	require.NoError(t, err)
	assert.Equal(t, "Customer ID", name)
	assert.Equal(t, query.AggCountDistinct, agg)

	_, _, err = parseFieldSpec("STDDEV(Sales)")
	require.Error(t, err)

	_, _, err = parseFieldSpec("SUM()")
	require.Error(t, err)

	_, _, err = parseFieldSpec("")
	require.Error(t, err)
}

func TestParseFilterSpec_SetFilter(t *testing.T) {
	p, err := parseFilterSpec(`{"field":"Region","op":"in","values":["East","West"]}`, testCatalog())
	require.NoError(t, err)

	assert.Equal(t, "Region", p.Field.Name)
	assert.Equal(t, query.OpIn, p.Op)
	assert.Equal(t, []string{"East", "West"}, p.Values)
}

func TestParseFilterSpec_DateRange(t *testing.T) {
	p, err := parseFilterSpec(
		`{"field":"Order Date","op":"range","minDate":"2024-01-01","maxDate":"2024-06-30"}`,
		testCatalog())
	require.NoError(t, err)

	assert.Equal(t, query.OpRange, p.Op)
	require.NotNil(t, p.MinDate)
	assert.Equal(t, "2024-01-01", p.MinDate.String())
	assert.Equal(t, "2024-06-30", p.MaxDate.String())
}

func TestParseFilterSpec_Errors(t *testing.T) {
	_, err := parseFilterSpec(`not json`, testCatalog())
	require.Error(t, err)

	_, err = parseFilterSpec(`{"field":"Ghost","op":"equals","values":["x"]}`, testCatalog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")

	_, err = parseFilterSpec(`{"field":"Region","op":"resembles","values":["x"]}`, testCatalog())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}
