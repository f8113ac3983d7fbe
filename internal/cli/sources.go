package cli

import (
	"context"
	"fmt"

	"vizquery/internal/vizql"
)

// Execute implements the go-flags Commander interface for SourcesCommand.
func (c *SourcesCommand) Execute(args []string) error {
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

// executeWithClient runs the listing against a provided client (for testing).
func (c *SourcesCommand) executeWithClient(client *vizql.Client) error {
	sources, err := client.ListDataSources(context.Background())
	if err != nil {
		return fmt.Errorf("list data sources: %w", err)
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(sources)
	}

	if len(sources) == 0 {
		fmt.Println("No data sources visible on this site.")
		return nil
	}
	fmt.Printf("%-38s %s\n", "LUID", "NAME")
	for _, ds := range sources {
		fmt.Printf("%-38s %s\n", ds.LUID, ds.Name)
	}
	return nil
}
