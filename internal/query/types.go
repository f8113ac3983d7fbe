package query

import (
	"fmt"
	"strings"
	"time"
)

// DataSource identifies a published data source on the remote server.
// Instances are immutable once fetched; refreshing the catalog produces
// new values rather than mutating existing ones.
type DataSource struct {
	LUID string `json:"luid"`
	Name string `json:"name"`
	Site string `json:"site,omitempty"`
}

// Role classifies a field as groupable or aggregatable.
type Role string

const (
	RoleDimension Role = "dimension"
	RoleMeasure   Role = "measure"
)

// FieldType is the declared type of a field as reported by the upstream
// metadata endpoint.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeDate    FieldType = "date"
	TypeBoolean FieldType = "boolean"
)

// Field is a single named column of a data source. DataSource holds the
// LUID of the owning source.
type Field struct {
	Name       string    `json:"name"`
	DataSource string    `json:"datasource"`
	Role       Role      `json:"role"`
	Type       FieldType `json:"type"`
}

// Aggregation is a reduction function applied to a measure.
type Aggregation string

const (
	AggSum           Aggregation = "SUM"
	AggAvg           Aggregation = "AVG"
	AggMin           Aggregation = "MIN"
	AggMax           Aggregation = "MAX"
	AggCount         Aggregation = "COUNT"
	AggCountDistinct Aggregation = "COUNTD"
	AggMedian        Aggregation = "MEDIAN"
)

// aggregations is the full set of supported reduction functions, in the
// order they are presented to users.
var aggregations = []Aggregation{
	AggSum, AggAvg, AggMin, AggMax, AggCount, AggCountDistinct, AggMedian,
}

// ParseAggregation maps a user-supplied name (case-insensitive) to an
// Aggregation.
func ParseAggregation(s string) (Aggregation, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if name == "COUNT_DISTINCT" || name == "COUNT-DISTINCT" {
		name = string(AggCountDistinct)
	}
	for _, a := range aggregations {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown aggregation %q", s)
}

// SelectedField is a field chosen into a query model. Aggregation is empty
// for dimensions and set to exactly one function for measures.
type SelectedField struct {
	Field       Field       `json:"field"`
	Aggregation Aggregation `json:"aggregation,omitempty"`
}

// Label returns the display name for the field's result column, e.g.
// "Region" or "SUM(Sales)".
func (s SelectedField) Label() string {
	if s.Aggregation == "" {
		return s.Field.Name
	}
	return fmt.Sprintf("%s(%s)", s.Aggregation, s.Field.Name)
}

// dateLayout is the only date serialization the upstream accepts. Dates
// carry day precision; time-of-day is not representable.
const dateLayout = "2006-01-02"

// Date is a day-precision calendar date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// DateOf truncates a time.Time to its calendar date.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether the date is the zero value.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
