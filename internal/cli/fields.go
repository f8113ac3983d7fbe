package cli

import (
	"context"
	"fmt"

	"vizquery/internal/query"
	"vizquery/internal/vizql"
)

// Execute implements the go-flags Commander interface for FieldsCommand.
func (c *FieldsCommand) Execute(args []string) error {
	if c.Source == "" {
		return fmt.Errorf("--source is required for fields command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	client, err := newClient(cfg, newLogger(cfg, c.globals.Verbose))
	if err != nil {
		return err
	}
	return c.executeWithClient(client)
}

// executeWithClient runs the catalog lookup against a provided client (for testing).
func (c *FieldsCommand) executeWithClient(client *vizql.Client) error {
	ctx := context.Background()

	ds, err := resolveDataSource(ctx, client, c.Source)
	if err != nil {
		return err
	}

	if c.Values != "" {
		values, err := client.ListFieldValues(ctx, ds.LUID, c.Values)
		if err != nil {
			return fmt.Errorf("list values of %q: %w", c.Values, err)
		}
		if c.globals != nil && c.globals.JSON {
			return printJSON(values)
		}
		for _, v := range values {
			fmt.Println(v)
		}
		return nil
	}

	var fields []query.Field
	if c.Refresh {
		fields, err = client.RefreshFields(ctx, ds.LUID)
	} else {
		fields, err = client.ListFields(ctx, ds.LUID)
	}
	if err != nil {
		return fmt.Errorf("fetch field catalog: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(fields)
	}

	fmt.Printf("Fields of %s:\n", ds.Name)
	fmt.Printf("%-30s %-10s %s\n", "NAME", "ROLE", "TYPE")
	for _, f := range fields {
		fmt.Printf("%-30s %-10s %s\n", f.Name, f.Role, f.Type)
	}
	return nil
}
