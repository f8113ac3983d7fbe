package query

import (
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// ValidationError reports a query-model invariant violation. These are
// always correctable by the caller before execution and are never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + e.Reason
}

func invalidf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Model is the in-memory representation of a query: an ordered field
// selection and an AND-combined set of filter predicates against a single
// data source. Mutations enforce the structural invariants immediately, so
// a Model is internally consistent at all times; Validate re-checks the
// whole model before compilation.
type Model struct {
	ds      DataSource
	fields  []SelectedField
	filters []FilterPredicate
}

// New creates an empty query model bound to a data source.
func New(ds DataSource) *Model {
	return &Model{ds: ds}
}

// DataSource returns the data source the model queries.
func (m *Model) DataSource() DataSource {
	return m.ds
}

// Fields returns the selected fields in selection order.
func (m *Model) Fields() []SelectedField {
	out := make([]SelectedField, len(m.fields))
	copy(out, m.fields)
	return out
}

// Filters returns the filter predicates.
func (m *Model) Filters() []FilterPredicate {
	out := make([]FilterPredicate, len(m.filters))
	copy(out, m.filters)
	return out
}

// ColumnLabels returns result column headers in field order.
func (m *Model) ColumnLabels() []string {
	labels := make([]string, len(m.fields))
	for i, f := range m.fields {
		labels[i] = f.Label()
	}
	return labels
}

// AddField selects a field into the model. Dimensions must be added with an
// empty aggregation, measures with exactly one. Re-adding an identical
// selection is a no-op; re-adding the same field with a different
// aggregation is an error (remove it first).
func (m *Model) AddField(f Field, agg Aggregation) error {
	if f.DataSource != m.ds.LUID {
		return invalidf("field %q belongs to data source %s, not %s", f.Name, f.DataSource, m.ds.LUID)
	}
	switch f.Role {
	case RoleDimension:
		if agg != "" {
			return invalidf("dimension %q cannot carry aggregation %s", f.Name, agg)
		}
	case RoleMeasure:
		if agg == "" {
			return invalidf("measure %q requires an aggregation", f.Name)
		}
		if _, err := ParseAggregation(string(agg)); err != nil {
			return invalidf("measure %q: %v", f.Name, err)
		}
	default:
		return invalidf("field %q has unknown role %q", f.Name, f.Role)
	}

	for _, existing := range m.fields {
		if existing.Field.Name != f.Name {
			continue
		}
		if existing.Field == f && existing.Aggregation == agg {
			return nil // idempotent re-add
		}
		if existing.Field != f {
			return invalidf("field %q already selected as a %s %s field", f.Name, existing.Field.Role, existing.Field.Type)
		}
		return invalidf("field %q already selected with aggregation %q", f.Name, existing.Aggregation)
	}

	m.fields = append(m.fields, SelectedField{Field: f, Aggregation: agg})
	return nil
}

// RemoveField drops the selection of the named field, if present.
func (m *Model) RemoveField(name string) {
	for i, f := range m.fields {
		if f.Field.Name == name {
			m.fields = append(m.fields[:i], m.fields[i+1:]...)
			return
		}
	}
}

// AddFilter adds a predicate. Operator/type mismatches and malformed
// operands are rejected here, never deferred to Validate.
func (m *Model) AddFilter(p FilterPredicate) error {
	if p.Field.DataSource != m.ds.LUID {
		return invalidf("filter field %q belongs to data source %s, not %s", p.Field.Name, p.Field.DataSource, m.ds.LUID)
	}
	if !p.Op.ValidFor(p.Field.Type) {
		return invalidf("operator %q is not valid for %s field %q", p.Op, p.Field.Type, p.Field.Name)
	}
	if err := p.checkOperands(); err != nil {
		return invalidf("filter on %q: %v", p.Field.Name, err)
	}
	m.filters = append(m.filters, p)
	return nil
}

// RemoveFilter drops the first predicate structurally equal to p.
func (m *Model) RemoveFilter(p FilterPredicate) {
	for i, existing := range m.filters {
		if existing.equal(p) {
			m.filters = append(m.filters[:i], m.filters[i+1:]...)
			return
		}
	}
}

// Validate re-checks every invariant on the whole model and returns all
// violations at once. A model that only ever mutated through AddField and
// AddFilter passes unless it is empty, but models restored from storage or
// built by hand are fully re-verified here.
func (m *Model) Validate() error {
	var errs *multierror.Error

	if len(m.fields) == 0 {
		errs = multierror.Append(errs, invalidf("at least one field must be selected"))
	}

	seen := map[string]Aggregation{}
	for _, sf := range m.fields {
		if sf.Field.DataSource != m.ds.LUID {
			errs = multierror.Append(errs, invalidf("field %q belongs to data source %s, not %s", sf.Field.Name, sf.Field.DataSource, m.ds.LUID))
		}
		switch sf.Field.Role {
		case RoleDimension:
			if sf.Aggregation != "" {
				errs = multierror.Append(errs, invalidf("dimension %q carries aggregation %s", sf.Field.Name, sf.Aggregation))
			}
		case RoleMeasure:
			if sf.Aggregation == "" {
				errs = multierror.Append(errs, invalidf("measure %q has no aggregation", sf.Field.Name))
			}
		default:
			errs = multierror.Append(errs, invalidf("field %q has unknown role %q", sf.Field.Name, sf.Field.Role))
		}
		if prev, ok := seen[sf.Field.Name]; ok && prev != sf.Aggregation {
			errs = multierror.Append(errs, invalidf("field %q selected with conflicting aggregations %q and %q", sf.Field.Name, prev, sf.Aggregation))
		}
		seen[sf.Field.Name] = sf.Aggregation
	}

	for _, p := range m.filters {
		if p.Field.DataSource != m.ds.LUID {
			errs = multierror.Append(errs, invalidf("filter field %q belongs to data source %s, not %s", p.Field.Name, p.Field.DataSource, m.ds.LUID))
		}
		if !p.Op.ValidFor(p.Field.Type) {
			errs = multierror.Append(errs, invalidf("operator %q is not valid for %s field %q", p.Op, p.Field.Type, p.Field.Name))
		}
		if err := p.checkOperands(); err != nil {
			errs = multierror.Append(errs, invalidf("filter on %q: %v", p.Field.Name, err))
		}
	}

	return errs.ErrorOrNil()
}

// modelJSON is the persisted shape of a Model. The encoding round-trips a
// model exactly: same fields in order, same aggregations, same filter
// operand values and types.
type modelJSON struct {
	DataSource DataSource        `json:"datasource"`
	Fields     []SelectedField   `json:"fields"`
	Filters    []FilterPredicate `json:"filters,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelJSON{
		DataSource: m.ds,
		Fields:     m.fields,
		Filters:    m.filters,
	})
}

// UnmarshalJSON implements json.Unmarshaler. The decoded model is not
// validated here; callers run Validate before compiling it.
func (m *Model) UnmarshalJSON(data []byte) error {
	var raw modelJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.ds = raw.DataSource
	m.fields = raw.Fields
	m.filters = raw.Filters
	return nil
}

// Equal reports whether two models are structurally identical.
func (m *Model) Equal(other *Model) bool {
	if m.ds != other.ds || len(m.fields) != len(other.fields) || len(m.filters) != len(other.filters) {
		return false
	}
	for i := range m.fields {
		if m.fields[i] != other.fields[i] {
			return false
		}
	}
	for i := range m.filters {
		if !m.filters[i].equal(other.filters[i]) {
			return false
		}
	}
	return true
}
