package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"vizquery/internal/storage"
)

// Execute implements the go-flags Commander interface for QueriesCommand.
func (c *QueriesCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore runs the listing against a provided store (for testing).
func (c *QueriesCommand) executeWithStore(store storage.Store) error {
	names, err := store.ListQueries(context.Background())
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(names)
	}

	if len(names) == 0 {
		fmt.Println("No saved queries.")
		return nil
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// Execute implements the go-flags Commander interface for ShowCommand.
func (c *ShowCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for show command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore runs show against a provided store (for testing).
func (c *ShowCommand) executeWithStore(store storage.Store) error {
	sq, err := store.LoadQuery(context.Background(), c.Name)
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(sq.Model)
	}

	fmt.Printf("Query:       %s\n", sq.Name)
	fmt.Printf("Data source: %s (%s)\n", sq.DataSource.Name, sq.DataSource.LUID)
	fmt.Printf("Created:     %s\n", sq.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Updated:     %s\n", sq.UpdatedAt.Local().Format("2006-01-02 15:04"))
	for _, label := range sq.Model.ColumnLabels() {
		fmt.Printf("  field:  %s\n", label)
	}
	for _, p := range sq.Model.Filters() {
		raw, _ := json.Marshal(p)
		fmt.Printf("  filter: %s\n", raw)
	}
	return nil
}

// Execute implements the go-flags Commander interface for DeleteCommand.
func (c *DeleteCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for delete command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWithStore(store)
}

// executeWithStore runs delete against a provided store (for testing).
func (c *DeleteCommand) executeWithStore(store storage.Store) error {
	if err := store.DeleteQuery(context.Background(), c.Name); err != nil {
		return err
	}
	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]string{"deleted": c.Name})
	}
	fmt.Printf("Deleted query %q\n", c.Name)
	return nil
}
