package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vizquery/internal/query"
)

// ErrNotFound reports a lookup for a name the store does not hold.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations for query definitions,
// schedules and run history.
type Store interface {
	SaveQuery(ctx context.Context, name string, m *query.Model) error
	LoadQuery(ctx context.Context, name string) (*SavedQuery, error)
	ListQueries(ctx context.Context) ([]string, error)
	DeleteQuery(ctx context.Context, name string) error

	SaveSchedule(ctx context.Context, entry ScheduleEntry) error
	ListSchedules(ctx context.Context) ([]ScheduleEntry, error)
	DeleteSchedule(ctx context.Context, queryName string) error

	RecordRun(ctx context.Context, run *RunRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)

	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	upsertQuery    *sql.Stmt
	getQuery       *sql.Stmt
	deleteQuery    *sql.Stmt
	upsertSchedule *sql.Stmt
	deleteSchedule *sql.Stmt
	insertRun      *sql.Stmt
}

// NewSQLiteStore creates a store from an already-opened and migrated
// database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsertQuery, err = s.db.Prepare(`
		INSERT INTO saved_queries (name, datasource_luid, datasource_name, definition, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			datasource_luid = excluded.datasource_luid,
			datasource_name = excluded.datasource_name,
			definition      = excluded.definition,
			updated_at      = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.getQuery, err = s.db.Prepare(`
		SELECT name, definition, created_at, updated_at
		FROM saved_queries WHERE name = ?
	`)
	if err != nil {
		return err
	}

	s.deleteQuery, err = s.db.Prepare(`DELETE FROM saved_queries WHERE name = ?`)
	if err != nil {
		return err
	}

	s.upsertSchedule, err = s.db.Prepare(`
		INSERT INTO schedules (query_name, cron_spec, output_dir, output_pattern, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(query_name) DO UPDATE SET
			cron_spec      = excluded.cron_spec,
			output_dir     = excluded.output_dir,
			output_pattern = excluded.output_pattern
	`)
	if err != nil {
		return err
	}

	s.deleteSchedule, err = s.db.Prepare(`DELETE FROM schedules WHERE query_name = ?`)
	if err != nil {
		return err
	}

	s.insertRun, err = s.db.Prepare(`
		INSERT INTO run_history (id, query_name, started_at, finished_at, row_count, output_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	return err
}

// SaveQuery persists a query model under name. Saving under an existing
// name overwrites the previous definition in a single atomic statement; a
// concurrent load sees either the old or the new record, never a mix.
func (s *SQLiteStore) SaveQuery(ctx context.Context, name string, m *query.Model) error {
	if name == "" {
		return fmt.Errorf("query name must not be empty")
	}

	definition, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode query definition: %w", err)
	}

	ds := m.DataSource()
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.upsertQuery.ExecContext(ctx, name, ds.LUID, ds.Name, string(definition), now, now)
	if err != nil {
		return fmt.Errorf("save query %q: %w", name, err)
	}
	return nil
}

// LoadQuery retrieves a saved query by name. The returned model is an
// independent copy of the stored definition.
func (s *SQLiteStore) LoadQuery(ctx context.Context, name string) (*SavedQuery, error) {
	var (
		definition         string
		createdAt, updated string
	)
	sq := &SavedQuery{}

	err := s.getQuery.QueryRowContext(ctx, name).Scan(&sq.Name, &definition, &createdAt, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("load query %q: %w", name, err)
	}

	m := &query.Model{}
	if err := json.Unmarshal([]byte(definition), m); err != nil {
		return nil, fmt.Errorf("decode query %q: %w", name, err)
	}
	sq.Model = m
	sq.DataSource = m.DataSource()
	sq.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	sq.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
	return sq, nil
}

// ListQueries returns all saved query names in lexical order.
func (s *SQLiteStore) ListQueries(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM saved_queries ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan query name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DeleteQuery removes a saved query. Any schedule bound to it cascades
// away with it.
func (s *SQLiteStore) DeleteQuery(ctx context.Context, name string) error {
	res, err := s.deleteQuery.ExecContext(ctx, name)
	if err != nil {
		return fmt.Errorf("delete query %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("query %q: %w", name, ErrNotFound)
	}
	return nil
}

// SaveSchedule persists a schedule entry, overwriting any existing entry
// for the same query name. The referenced query must exist.
func (s *SQLiteStore) SaveSchedule(ctx context.Context, entry ScheduleEntry) error {
	if _, err := s.LoadQuery(ctx, entry.QueryName); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.upsertSchedule.ExecContext(ctx,
		entry.QueryName, entry.CronSpec, entry.OutputDir, entry.OutputPattern, now)
	if err != nil {
		return fmt.Errorf("save schedule for %q: %w", entry.QueryName, err)
	}
	return nil
}

// ListSchedules returns all persisted schedule entries.
func (s *SQLiteStore) ListSchedules(ctx context.Context) ([]ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT query_name, cron_spec, output_dir, output_pattern, created_at
		FROM schedules ORDER BY query_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	entries := []ScheduleEntry{}
	for rows.Next() {
		var e ScheduleEntry
		var createdAt string
		if err := rows.Scan(&e.QueryName, &e.CronSpec, &e.OutputDir, &e.OutputPattern, &createdAt); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteSchedule removes the schedule bound to a query name.
func (s *SQLiteStore) DeleteSchedule(ctx context.Context, queryName string) error {
	res, err := s.deleteSchedule.ExecContext(ctx, queryName)
	if err != nil {
		return fmt.Errorf("delete schedule for %q: %w", queryName, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("schedule for %q: %w", queryName, ErrNotFound)
	}
	return nil
}

// RecordRun appends one execution outcome to the run history. A missing ID
// is generated.
func (s *SQLiteStore) RecordRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.insertRun.ExecContext(ctx,
		run.ID, run.QueryName,
		run.StartedAt.UTC().Format(time.RFC3339),
		run.FinishedAt.UTC().Format(time.RFC3339),
		run.RowCount, run.OutputPath, run.Error,
	)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent run records, newest first.
func (s *SQLiteStore) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query_name, started_at, finished_at, row_count, output_path, error
		FROM run_history ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &r.QueryName, &started, &finished, &r.RowCount, &r.OutputPath, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetStats returns aggregate statistics about the store.
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM saved_queries").Scan(&stats.TotalQueries); err != nil {
		return nil, fmt.Errorf("count queries: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schedules").Scan(&stats.TotalSchedules); err != nil {
		return nil, fmt.Errorf("count schedules: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history").Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM run_history WHERE error != ''").Scan(&stats.FailedRuns); err != nil {
		return nil, fmt.Errorf("count failed runs: %w", err)
	}

	if stats.TotalRuns > 0 {
		var last string
		if err := s.db.QueryRowContext(ctx, "SELECT MAX(started_at) FROM run_history").Scan(&last); err != nil {
			return nil, fmt.Errorf("last run: %w", err)
		}
		stats.LastRunAt, _ = time.Parse(time.RFC3339, last)
	}

	return stats, nil
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{
		s.upsertQuery, s.getQuery, s.deleteQuery,
		s.upsertSchedule, s.deleteSchedule, s.insertRun,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
