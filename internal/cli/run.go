package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"vizquery/internal/engine"
	"vizquery/internal/query"
	"vizquery/internal/sink"
	"vizquery/internal/storage"
)

// Execute implements the go-flags Commander interface for RunCommand.
func (c *RunCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for run command")
	}

	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	log := newLogger(cfg, c.globals.Verbose)
	client, err := newClient(cfg, log)
	if err != nil {
		return err
	}
	store, db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWith(engine.New(client, log), store)
}

// executeWith runs the query against provided dependencies (for testing).
func (c *RunCommand) executeWith(eng *engine.Engine, store storage.Store) error {
	ctx := context.Background()

	sq, err := store.LoadQuery(ctx, c.Name)
	if err != nil {
		return err
	}

	record := &storage.RunRecord{
		ID:        uuid.NewString(),
		QueryName: c.Name,
		StartedAt: time.Now(),
	}

	table, err := eng.Run(ctx, sq.Model)
	record.FinishedAt = time.Now()
	if err != nil {
		record.Error = err.Error()
		_ = store.RecordRun(ctx, record)
		return err
	}
	record.RowCount = table.RowCount()

	if c.Output != "" {
		dir, file := filepath.Split(c.Output)
		if dir == "" {
			dir = "."
		}
		fs := sink.NewFileSink(dir, file)
		path, err := fs.Write(ctx, c.Name, table)
		if err != nil {
			// The execution itself succeeded; the history still gets a
			// record, same as the scheduler path.
			record.Error = fmt.Sprintf("write output: %v", err)
			_ = store.RecordRun(ctx, record)
			return err
		}
		record.OutputPath = path
		if recErr := store.RecordRun(ctx, record); recErr != nil {
			return recErr
		}
		fmt.Printf("Wrote %d rows to %s\n", table.RowCount(), path)
		return nil
	}

	if recErr := store.RecordRun(ctx, record); recErr != nil {
		return recErr
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(table)
	}
	printTable(table)
	return nil
}

// printTable renders a result table as aligned columns.
func printTable(table *query.ResultTable) {
	widths := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		widths[i] = len(col)
	}
	rendered := make([][]string, len(table.Rows))
	for r, row := range table.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			s := ""
			if cell != nil {
				s = fmt.Sprintf("%v", cell)
			}
			cells[i] = s
			if i < len(widths) && len(s) > widths[i] {
				widths[i] = len(s)
			}
		}
		rendered[r] = cells
	}

	for i, col := range table.Columns {
		fmt.Printf("%-*s  ", widths[i], col)
	}
	fmt.Println()
	for _, cells := range rendered {
		for i, s := range cells {
			fmt.Printf("%-*s  ", widths[i], s)
		}
		fmt.Println()
	}
	fmt.Printf("(%d rows)\n", table.RowCount())
}
