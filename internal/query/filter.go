package query

import "fmt"

// Operator is a filter comparison kind. Each operator is valid only for a
// subset of field types; AddFilter rejects mismatches so downstream
// compilation never sees one.
type Operator string

const (
	// OpEquals keeps rows whose field equals a single literal value.
	// Valid for string and boolean fields.
	OpEquals Operator = "equals"
	// OpIn keeps rows whose field is any of a set of values. String fields.
	OpIn Operator = "in"
	// OpMatches keeps rows whose field contains a substring pattern.
	// String fields.
	OpMatches Operator = "matches"
	// OpRange keeps rows between an inclusive min and max. Number and date
	// fields.
	OpRange Operator = "range"
	// OpGreaterThan keeps rows at or above a minimum. Number and date fields.
	OpGreaterThan Operator = "gt"
	// OpLessThan keeps rows at or below a maximum. Number and date fields.
	OpLessThan Operator = "lt"
	// OpNotNull keeps rows with a non-null value. Number and date fields.
	OpNotNull Operator = "notnull"
	// OpOnlyNull keeps rows with a null value. Number and date fields.
	OpOnlyNull Operator = "onlynull"
	// OpRelativeDate keeps rows in a period relative to today (last N
	// months, current quarter, year to date). Date fields.
	OpRelativeDate Operator = "relative"
)

// operatorTypes maps each operator to the field types it applies to.
var operatorTypes = map[Operator][]FieldType{
	OpEquals:       {TypeString, TypeBoolean},
	OpIn:           {TypeString},
	OpMatches:      {TypeString},
	OpRange:        {TypeNumber, TypeDate},
	OpGreaterThan:  {TypeNumber, TypeDate},
	OpLessThan:     {TypeNumber, TypeDate},
	OpNotNull:      {TypeNumber, TypeDate},
	OpOnlyNull:     {TypeNumber, TypeDate},
	OpRelativeDate: {TypeDate},
}

// ValidFor reports whether the operator applies to fields of type t.
func (op Operator) ValidFor(t FieldType) bool {
	for _, ft := range operatorTypes[op] {
		if ft == t {
			return true
		}
	}
	return false
}

// ParseOperator maps a stored or user-supplied operator name to an Operator.
func ParseOperator(s string) (Operator, error) {
	op := Operator(s)
	if _, ok := operatorTypes[op]; !ok {
		return "", fmt.Errorf("unknown operator %q", s)
	}
	return op, nil
}

// Relative-date period units, matching the upstream vocabulary.
const (
	PeriodDays     = "DAYS"
	PeriodWeeks    = "WEEKS"
	PeriodMonths   = "MONTHS"
	PeriodQuarters = "QUARTERS"
	PeriodYears    = "YEARS"
)

// Relative-date anchors, matching the upstream vocabulary. RangeLastN and
// RangeNextN require a count (FilterPredicate.RangeN).
const (
	RangeLast    = "LAST"
	RangeCurrent = "CURRENT"
	RangeNext    = "NEXT"
	RangeLastN   = "LASTN"
	RangeNextN   = "NEXTN"
	RangeToDate  = "TODATE"
)

var periodTypes = map[string]bool{
	PeriodDays: true, PeriodWeeks: true, PeriodMonths: true,
	PeriodQuarters: true, PeriodYears: true,
}

var dateRangeTypes = map[string]bool{
	RangeLast: true, RangeCurrent: true, RangeNext: true,
	RangeLastN: true, RangeNextN: true, RangeToDate: true,
}

// FilterPredicate narrows result rows by one field's value. All predicates
// on a model are AND-combined. Only the operand fields relevant to Op are
// set; the rest stay zero.
type FilterPredicate struct {
	Field Field    `json:"field"`
	Op    Operator `json:"op"`

	// Values holds the literal(s) for OpEquals, OpIn and OpMatches.
	Values []string `json:"values,omitempty"`

	// Min/Max bound OpRange, OpGreaterThan and OpLessThan on number fields.
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`

	// MinDate/MaxDate bound the same operators on date fields.
	MinDate *Date `json:"minDate,omitempty"`
	MaxDate *Date `json:"maxDate,omitempty"`

	// Period, RangeType and RangeN configure OpRelativeDate.
	Period    string `json:"period,omitempty"`
	RangeType string `json:"rangeType,omitempty"`
	RangeN    int    `json:"rangeN,omitempty"`
}

// checkOperands verifies that the operands present match what Op requires.
func (p FilterPredicate) checkOperands() error {
	switch p.Op {
	case OpEquals:
		if len(p.Values) != 1 {
			return fmt.Errorf("equals needs exactly one value, got %d", len(p.Values))
		}
	case OpIn:
		if len(p.Values) == 0 {
			return fmt.Errorf("in-set needs at least one value")
		}
	case OpMatches:
		if len(p.Values) != 1 || p.Values[0] == "" {
			return fmt.Errorf("matches needs exactly one non-empty pattern")
		}
	case OpRange:
		if p.Field.Type == TypeNumber && (p.Min == nil || p.Max == nil) {
			return fmt.Errorf("range on a number field needs both min and max")
		}
		if p.Field.Type == TypeDate && (p.MinDate == nil || p.MaxDate == nil) {
			return fmt.Errorf("range on a date field needs both minDate and maxDate")
		}
	case OpGreaterThan:
		if p.Field.Type == TypeNumber && p.Min == nil {
			return fmt.Errorf("greater-than needs min")
		}
		if p.Field.Type == TypeDate && p.MinDate == nil {
			return fmt.Errorf("greater-than needs minDate")
		}
	case OpLessThan:
		if p.Field.Type == TypeNumber && p.Max == nil {
			return fmt.Errorf("less-than needs max")
		}
		if p.Field.Type == TypeDate && p.MaxDate == nil {
			return fmt.Errorf("less-than needs maxDate")
		}
	case OpNotNull, OpOnlyNull:
		// No operands.
	case OpRelativeDate:
		if !periodTypes[p.Period] {
			return fmt.Errorf("invalid relative-date period %q", p.Period)
		}
		if !dateRangeTypes[p.RangeType] {
			return fmt.Errorf("invalid relative-date range type %q", p.RangeType)
		}
		if (p.RangeType == RangeLastN || p.RangeType == RangeNextN) && p.RangeN < 1 {
			return fmt.Errorf("%s needs rangeN >= 1", p.RangeType)
		}
	default:
		return fmt.Errorf("unknown operator %q", p.Op)
	}
	return nil
}

// equal reports structural equality of two predicates, used by RemoveFilter.
func (p FilterPredicate) equal(other FilterPredicate) bool {
	if p.Field != other.Field || p.Op != other.Op {
		return false
	}
	if len(p.Values) != len(other.Values) {
		return false
	}
	for i := range p.Values {
		if p.Values[i] != other.Values[i] {
			return false
		}
	}
	return floatPtrEq(p.Min, other.Min) && floatPtrEq(p.Max, other.Max) &&
		datePtrEq(p.MinDate, other.MinDate) && datePtrEq(p.MaxDate, other.MaxDate) &&
		p.Period == other.Period && p.RangeType == other.RangeType && p.RangeN == other.RangeN
}

func floatPtrEq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func datePtrEq(a, b *Date) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
