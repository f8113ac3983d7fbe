package cli

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"vizquery/internal/config"
	"vizquery/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string    `json:"version"`
	DatabasePath      string    `json:"database_path"`
	DatabaseSizeBytes int64     `json:"database_size_bytes"`
	ServerURL         string    `json:"server_url"`
	Site              string    `json:"site,omitempty"`
	TotalQueries      int64     `json:"total_queries"`
	TotalSchedules    int64     `json:"total_schedules"`
	TotalRuns         int64     `json:"total_runs"`
	FailedRuns        int64     `json:"failed_runs"`
	LastRunAt         string    `json:"last_run_at,omitempty"`
	RecentRuns        []runJSON `json:"recent_runs"`
}

type runJSON struct {
	ID        string `json:"id"`
	QueryName string `json:"query"`
	StartedAt string `json:"started_at"`
	RowCount  int    `json:"row_count"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
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

	return c.executeWith(cfg, store, db)
}

// executeWith runs status against provided dependencies (for testing).
func (c *StatusCommand) executeWith(cfg *config.Config, store storage.Store, db *sql.DB) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	runs, err := store.RecentRuns(ctx, c.Runs)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	dbPath, err := cfg.DBPath()
	if err != nil {
		return err
	}
	dbSize := getDatabaseSize(db, dbPath)

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(cfg, stats, runs, dbPath, dbSize)
	}
	return c.printStatusHuman(cfg, stats, runs, dbPath, dbSize)
}

func (c *StatusCommand) printStatusHuman(cfg *config.Config, stats *storage.Stats, runs []storage.RunRecord, dbPath string, dbSize int64) error {
	fmt.Println("vizquery Status")
	fmt.Println("===============")
	fmt.Printf("Version:    %s\n", c.version)
	fmt.Printf("Server:     %s\n", cfg.Server.URL)
	if cfg.Server.Site != "" {
		fmt.Printf("Site:       %s\n", cfg.Server.Site)
	}
	fmt.Printf("Database:   %s (%s)\n", dbPath, formatBytes(dbSize))
	fmt.Printf("Queries:    %d\n", stats.TotalQueries)
	fmt.Printf("Schedules:  %d\n", stats.TotalSchedules)
	if stats.FailedRuns > 0 {
		fmt.Printf("Runs:       %d (%d failed)\n", stats.TotalRuns, stats.FailedRuns)
	} else {
		fmt.Printf("Runs:       %d\n", stats.TotalRuns)
	}
	if !stats.LastRunAt.IsZero() {
		fmt.Printf("Last run:   %s\n", stats.LastRunAt.Local().Format("2006-01-02 15:04"))
	}

	if len(runs) > 0 {
		fmt.Println()
		fmt.Println("Recent runs:")
		for _, r := range runs {
			outcome := fmt.Sprintf("%d rows", r.RowCount)
			if r.Error != "" {
				outcome = "FAILED: " + r.Error
			}
			fmt.Printf("  %s  %-24s %s\n",
				r.StartedAt.Local().Format("2006-01-02 15:04"), r.QueryName, outcome)
		}
	}
	return nil
}

func (c *StatusCommand) printStatusJSON(cfg *config.Config, stats *storage.Stats, runs []storage.RunRecord, dbPath string, dbSize int64) error {
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: dbSize,
		ServerURL:         cfg.Server.URL,
		Site:              cfg.Server.Site,
		TotalQueries:      stats.TotalQueries,
		TotalSchedules:    stats.TotalSchedules,
		TotalRuns:         stats.TotalRuns,
		FailedRuns:        stats.FailedRuns,
		RecentRuns:        make([]runJSON, len(runs)),
	}
	if !stats.LastRunAt.IsZero() {
		out.LastRunAt = stats.LastRunAt.UTC().Format(time.RFC3339)
	}
	for i, r := range runs {
		out.RecentRuns[i] = runJSON{
			ID:        r.ID,
			QueryName: r.QueryName,
			StartedAt: r.StartedAt.UTC().Format(time.RFC3339),
			RowCount:  r.RowCount,
			Output:    r.OutputPath,
			Error:     r.Error,
		}
	}
	return printJSON(out)
}

// getDatabaseSize returns the database file size in bytes.
// For on-disk databases, it uses os.Stat. For in-memory databases,
// it queries page_count * page_size.
func getDatabaseSize(db *sql.DB, dbPath string) int64 {
	if info, err := os.Stat(dbPath); err == nil {
		return info.Size()
	}

	var pageCount, pageSize int64
	if err := db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
