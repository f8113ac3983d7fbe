// Package compile translates a validated query model into the upstream
// request payload.
package compile

import (
	"fmt"

	"vizquery/internal/query"
	"vizquery/internal/vizql"
)

// InternalError reports an operator/type combination the model layer
// should have rejected. Seeing one is an internal-consistency bug, not a
// user-facing condition.
type InternalError struct {
	Reason string
}

func (e *InternalError) Error() string {
	return "compiler invariant violation: " + e.Reason
}

// Compile translates a query model into a request payload. The model must
// have passed Validate; Compile re-runs it and refuses models that fail,
// so a stored definition that decoded into an invalid state cannot reach
// the upstream. Compiling the same model twice yields identical payloads.
func Compile(m *query.Model) (*vizql.QueryRequest, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	req := &vizql.QueryRequest{
		Datasource: vizql.DatasourceRef{DatasourceLUID: m.DataSource().LUID},
	}

	for _, sf := range m.Fields() {
		req.Query.Fields = append(req.Query.Fields, vizql.FieldRef{
			FieldCaption: sf.Field.Name,
			Function:     string(sf.Aggregation),
		})
	}

	for _, p := range m.Filters() {
		ref, err := compileFilter(p)
		if err != nil {
			return nil, err
		}
		req.Query.Filters = append(req.Query.Filters, ref)
	}

	return req, nil
}

// compileFilter maps one predicate onto the operator vocabulary the
// upstream expects for the field's type.
func compileFilter(p query.FilterPredicate) (vizql.FilterRef, error) {
	ref := vizql.FilterRef{
		Field: vizql.FilterFieldRef{FieldCaption: p.Field.Name},
	}

	switch p.Op {
	case query.OpEquals, query.OpIn:
		exclude := false
		ref.FilterType = vizql.FilterSet
		ref.Values = append([]string(nil), p.Values...)
		ref.Exclude = &exclude

	case query.OpMatches:
		ref.FilterType = vizql.FilterMatch
		ref.Contains = p.Values[0]

	case query.OpRange:
		quantitative(&ref, p, vizql.QuantRange)

	case query.OpGreaterThan:
		quantitative(&ref, p, vizql.QuantMin)

	case query.OpLessThan:
		quantitative(&ref, p, vizql.QuantMax)

	case query.OpNotNull:
		quantitative(&ref, p, vizql.QuantOnlyNonNull)

	case query.OpOnlyNull:
		quantitative(&ref, p, vizql.QuantOnlyNull)

	case query.OpRelativeDate:
		ref.FilterType = vizql.FilterRelativeDate
		ref.PeriodType = p.Period
		ref.DateRangeType = p.RangeType
		ref.RangeN = p.RangeN

	default:
		return ref, &InternalError{Reason: fmt.Sprintf("operator %q on %s field %q", p.Op, p.Field.Type, p.Field.Name)}
	}

	return ref, nil
}

// quantitative fills a RANGE/MIN/MAX/null-kind clause for a number or date
// field. Dates serialize at day granularity only.
func quantitative(ref *vizql.FilterRef, p query.FilterPredicate, kind string) {
	ref.QuantitativeFilterType = kind
	switch p.Field.Type {
	case query.TypeNumber:
		ref.FilterType = vizql.FilterQuantNumeric
		ref.Min = p.Min
		ref.Max = p.Max
	case query.TypeDate:
		ref.FilterType = vizql.FilterQuantDate
		if p.MinDate != nil {
			ref.MinDate = p.MinDate.String()
		}
		if p.MaxDate != nil {
			ref.MaxDate = p.MaxDate.String()
		}
	}

	switch kind {
	case vizql.QuantMin:
		ref.Max, ref.MaxDate = nil, ""
	case vizql.QuantMax:
		ref.Min, ref.MinDate = nil, ""
	case vizql.QuantOnlyNull, vizql.QuantOnlyNonNull:
		ref.Min, ref.Max = nil, nil
		ref.MinDate, ref.MaxDate = "", ""
	}
}
