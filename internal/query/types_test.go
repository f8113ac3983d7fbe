package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAggregation(t *testing.T) {
	agg, err := ParseAggregation("sum")
	require.NoError(t, err)
	assert.Equal(t, AggSum, agg)

	agg, err = ParseAggregation(" MEDIAN ")
	require.NoError(t, err)
	assert.Equal(t, AggMedian, agg)

	// Distinct-count aliases
	for _, alias := range []string{"COUNTD", "count_distinct", "Count-Distinct"} {
		agg, err = ParseAggregation(alias)
		require.NoError(t, err, alias)
		assert.Equal(t, AggCountDistinct, agg)
	}

	_, err = ParseAggregation("STDDEV")
	require.Error(t, err)
}

func TestSelectedField_Label(t *testing.T) {
	dim := SelectedField{Field: Field{Name: "Region"}}
	assert.Equal(t, "Region", dim.Label())

	meas := SelectedField{Field: Field{Name: "Sales"}, Aggregation: AggSum}
	assert.Equal(t, "SUM(Sales)", meas.Label())
}

func TestDate_ParseAndFormat(t *testing.T) {
	d, err := ParseDate("2024-03-09")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.March, 9), d)
	assert.Equal(t, "2024-03-09", d.String())

	_, err = ParseDate("03/09/2024")
	require.Error(t, err)

	_, err = ParseDate("2024-03-09T10:00:00Z")
	require.Error(t, err, "time-of-day is not representable")
}

func TestDate_TextRoundTrip(t *testing.T) {
	d := NewDate(2024, time.December, 31)

	text, err := d.MarshalText()
	require.NoError(t, err)

	var restored Date
	require.NoError(t, restored.UnmarshalText(text))
	assert.Equal(t, d, restored)
}

func TestDateOf_TruncatesTime(t *testing.T) {
	at := time.Date(2024, time.June, 15, 23, 59, 58, 0, time.UTC)
	assert.Equal(t, NewDate(2024, time.June, 15), DateOf(at))
}
