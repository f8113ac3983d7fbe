package storage

import (
	"time"

	"vizquery/internal/query"
)

// SavedQuery is a named, persisted query definition. Loaded instances are
// independent copies; mutating the model does not touch the stored record
// until it is saved again.
type SavedQuery struct {
	Name       string
	DataSource query.DataSource
	Model      *query.Model
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ScheduleEntry binds a saved query's name to a cron cadence and an output
// destination.
type ScheduleEntry struct {
	QueryName     string
	CronSpec      string
	OutputDir     string
	OutputPattern string
	CreatedAt     time.Time
}

// RunRecord captures the outcome of one scheduled or interactive
// execution.
type RunRecord struct {
	ID         string
	QueryName  string
	StartedAt  time.Time
	FinishedAt time.Time
	RowCount   int
	OutputPath string
	Error      string // empty on success
}

// Stats holds aggregate statistics about the store.
type Stats struct {
	TotalQueries   int64
	TotalSchedules int64
	TotalRuns      int64
	FailedRuns     int64
	LastRunAt      time.Time
}
