package cli

import (
	"context"
	"fmt"
	"time"

	"vizquery/internal/query"
	"vizquery/internal/storage"
	"vizquery/internal/vizql"
)

// Execute implements the go-flags Commander interface for SaveCommand.
func (c *SaveCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for save command")
	}
	if c.Source == "" {
		return fmt.Errorf("--source is required for save command")
	}
	if len(c.Field) == 0 {
		return fmt.Errorf("at least one --field is required for save command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, newLogger(cfg, c.globals.Verbose))
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWith(client, store)
}

// executeWith runs the save logic against provided dependencies (for testing).
func (c *SaveCommand) executeWith(client *vizql.Client, store storage.Store) error {
	ctx := context.Background()

	ds, err := resolveDataSource(ctx, client, c.Source)
	if err != nil {
		return err
	}

	m, err := buildModel(ctx, client, ds, c.Field, c.Filter)
	if err != nil {
		return err
	}
	if err := m.Validate(); err != nil {
		return err
	}

	if err := store.SaveQuery(ctx, c.Name, m); err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]interface{}{
			"name":       c.Name,
			"datasource": ds,
			"fields":     m.ColumnLabels(),
			"filters":    len(m.Filters()),
			"saved_at":   time.Now().UTC().Format(time.RFC3339),
		})
	}

	fmt.Printf("Saved query %q against %s\n", c.Name, ds.Name)
	for _, label := range m.ColumnLabels() {
		fmt.Printf("  field:  %s\n", label)
	}
	for _, p := range m.Filters() {
		fmt.Printf("  filter: %s %s\n", p.Field.Name, describeFilter(p))
	}
	return nil
}

// describeFilter renders a predicate for human output.
func describeFilter(p query.FilterPredicate) string {
	switch p.Op {
	case query.OpEquals:
		return fmt.Sprintf("= %s", p.Values[0])
	case query.OpIn:
		return fmt.Sprintf("in %v", p.Values)
	case query.OpMatches:
		return fmt.Sprintf("contains %q", p.Values[0])
	case query.OpRange:
		if p.Field.Type == query.TypeDate {
			return fmt.Sprintf("between %s and %s", p.MinDate, p.MaxDate)
		}
		return fmt.Sprintf("between %g and %g", *p.Min, *p.Max)
	case query.OpGreaterThan:
		if p.Field.Type == query.TypeDate {
			return fmt.Sprintf(">= %s", p.MinDate)
		}
		return fmt.Sprintf(">= %g", *p.Min)
	case query.OpLessThan:
		if p.Field.Type == query.TypeDate {
			return fmt.Sprintf("<= %s", p.MaxDate)
		}
		return fmt.Sprintf("<= %g", *p.Max)
	case query.OpNotNull:
		return "is not null"
	case query.OpOnlyNull:
		return "is null"
	case query.OpRelativeDate:
		if p.RangeN > 0 {
			return fmt.Sprintf("%s %d %s", p.RangeType, p.RangeN, p.Period)
		}
		return fmt.Sprintf("%s %s", p.RangeType, p.Period)
	default:
		return string(p.Op)
	}
}
