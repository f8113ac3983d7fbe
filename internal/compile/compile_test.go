package compile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vizquery/internal/query"
	"vizquery/internal/vizql"
)

var testDS = query.DataSource{LUID: "ds-1", Name: "Superstore"}

func dimRegion() query.Field {
	return query.Field{Name: "Region", DataSource: "ds-1", Role: query.RoleDimension, Type: query.TypeString}
}

func measSales() query.Field {
	return query.Field{Name: "Sales", DataSource: "ds-1", Role: query.RoleMeasure, Type: query.TypeNumber}
}

func dimOrderDate() query.Field {
	return query.Field{Name: "Order Date", DataSource: "ds-1", Role: query.RoleDimension, Type: query.TypeDate}
}

// baseModel builds Region + SUM(Sales).
func baseModel(t *testing.T) *query.Model {
	t.Helper()
	m := query.New(testDS)
	require.NoError(t, m.AddField(dimRegion(), ""))
	require.NoError(t, m.AddField(measSales(), query.AggSum))
	return m
}

func TestCompile_FieldsAndAggregations(t *testing.T) {
	req, err := Compile(baseModel(t))
	require.NoError(t, err)

	assert.Equal(t, "ds-1", req.Datasource.DatasourceLUID)
	require.Len(t, req.Query.Fields, 2)
	assert.Equal(t, vizql.FieldRef{FieldCaption: "Region"}, req.Query.Fields[0])
	assert.Equal(t, vizql.FieldRef{FieldCaption: "Sales", Function: "SUM"}, req.Query.Fields[1])
	assert.Empty(t, req.Query.Filters)
}

func TestCompile_PreservesFieldOrder(t *testing.T) {
	m := query.New(testDS)
	require.NoError(t, m.AddField(measSales(), query.AggAvg))
	require.NoError(t, m.AddField(dimRegion(), ""))

	req, err := Compile(m)
	require.NoError(t, err)
	assert.Equal(t, "Sales", req.Query.Fields[0].FieldCaption)
	assert.Equal(t, "Region", req.Query.Fields[1].FieldCaption)
}

func TestCompile_InvalidModelRefused(t *testing.T) {
	m := query.New(testDS)

	req, err := Compile(m)
	require.Error(t, err)
	assert.Nil(t, req)
}

func TestCompile_Deterministic(t *testing.T) {
	build := func() *query.Model {
		m := query.New(testDS)
		require.NoError(t, m.AddField(dimRegion(), ""))
		require.NoError(t, m.AddField(measSales(), query.AggSum))
		require.NoError(t, m.AddFilter(query.FilterPredicate{
			Field: dimRegion(), Op: query.OpIn, Values: []string{"East", "West"},
		}))
		min := 50.0
		require.NoError(t, m.AddFilter(query.FilterPredicate{
			Field: measSales(), Op: query.OpGreaterThan, Min: &min,
		}))
		return m
	}

	first, err := Compile(build())
	require.NoError(t, err)
	second, err := Compile(build())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b), "identical models must compile to identical payloads")
}

func TestCompile_SetFilter(t *testing.T) {
	m := baseModel(t)
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: dimRegion(), Op: query.OpEquals, Values: []string{"West"},
	}))

	req, err := Compile(m)
	require.NoError(t, err)
	require.Len(t, req.Query.Filters, 1)

	f := req.Query.Filters[0]
	assert.Equal(t, vizql.FilterSet, f.FilterType)
	assert.Equal(t, "Region", f.Field.FieldCaption)
	assert.Equal(t, []string{"West"}, f.Values)
	require.NotNil(t, f.Exclude)
	assert.False(t, *f.Exclude)
}

func TestCompile_MatchFilter(t *testing.T) {
	m := baseModel(t)
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: dimRegion(), Op: query.OpMatches, Values: []string{"We"},
	}))

	req, err := Compile(m)
	require.NoError(t, err)

	f := req.Query.Filters[0]
	assert.Equal(t, vizql.FilterMatch, f.FilterType)
	assert.Equal(t, "We", f.Contains)
	assert.Empty(t, f.Values)
}

func TestCompile_NumericRange(t *testing.T) {
	m := baseModel(t)
	min, max := 10.0, 500.0
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: measSales(), Op: query.OpRange, Min: &min, Max: &max,
	}))

	req, err := Compile(m)
	require.NoError(t, err)

	f := req.Query.Filters[0]
	assert.Equal(t, vizql.FilterQuantNumeric, f.FilterType)
	assert.Equal(t, vizql.QuantRange, f.QuantitativeFilterType)
	assert.Equal(t, 10.0, *f.Min)
	assert.Equal(t, 500.0, *f.Max)
}

func TestCompile_NumericBounds_DropIrrelevantSide(t *testing.T) {
	m := baseModel(t)
	min := 10.0
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: measSales(), Op: query.OpGreaterThan, Min: &min,
	}))
	max := 99.0
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: measSales(), Op: query.OpLessThan, Max: &max,
	}))

	req, err := Compile(m)
	require.NoError(t, err)

	gt := req.Query.Filters[0]
	assert.Equal(t, vizql.QuantMin, gt.QuantitativeFilterType)
	assert.Equal(t, 10.0, *gt.Min)
	assert.Nil(t, gt.Max)

	lt := req.Query.Filters[1]
	assert.Equal(t, vizql.QuantMax, lt.QuantitativeFilterType)
	assert.Equal(t, 99.0, *lt.Max)
	assert.Nil(t, lt.Min)
}

func TestCompile_DateRange_DayPrecision(t *testing.T) {
	m := baseModel(t)
	minDate := query.NewDate(2024, 1, 1)
	maxDate := query.NewDate(2024, 6, 30)
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: dimOrderDate(), Op: query.OpRange, MinDate: &minDate, MaxDate: &maxDate,
	}))

	req, err := Compile(m)
	require.NoError(t, err)

	f := req.Query.Filters[0]
	assert.Equal(t, vizql.FilterQuantDate, f.FilterType)
	assert.Equal(t, vizql.QuantRange, f.QuantitativeFilterType)
	assert.Equal(t, "2024-01-01", f.MinDate)
	assert.Equal(t, "2024-06-30", f.MaxDate)
	assert.Nil(t, f.Min)
	assert.Nil(t, f.Max)
}

func TestCompile_NullFilters(t *testing.T) {
	m := baseModel(t)
	require.NoError(t, m.AddFilter(query.FilterPredicate{Field: measSales(), Op: query.OpNotNull}))
	require.NoError(t, m.AddFilter(query.FilterPredicate{Field: dimOrderDate(), Op: query.OpOnlyNull}))

	req, err := Compile(m)
	require.NoError(t, err)

	assert.Equal(t, vizql.QuantOnlyNonNull, req.Query.Filters[0].QuantitativeFilterType)
	assert.Equal(t, vizql.FilterQuantNumeric, req.Query.Filters[0].FilterType)
	assert.Equal(t, vizql.QuantOnlyNull, req.Query.Filters[1].QuantitativeFilterType)
	assert.Equal(t, vizql.FilterQuantDate, req.Query.Filters[1].FilterType)
}

func TestCompile_RelativeDateFilter(t *testing.T) {
	m := baseModel(t)
	require.NoError(t, m.AddFilter(query.FilterPredicate{
		Field: dimOrderDate(), Op: query.OpRelativeDate,
		Period: query.PeriodMonths, RangeType: query.RangeLastN, RangeN: 3,
	}))

	req, err := Compile(m)
	require.NoError(t, err)

	f := req.Query.Filters[0]
	assert.Equal(t, vizql.FilterRelativeDate, f.FilterType)
	assert.Equal(t, query.PeriodMonths, f.PeriodType)
	assert.Equal(t, query.RangeLastN, f.DateRangeType)
	assert.Equal(t, 3, f.RangeN)
}
