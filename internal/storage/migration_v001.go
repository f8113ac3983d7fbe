package storage

import "database/sql"

// migrateV001 creates the initial schema: saved query definitions, their
// schedules, and the run history. Every statement uses IF NOT EXISTS for
// idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS saved_queries (
			name            TEXT PRIMARY KEY,
			datasource_luid TEXT NOT NULL,
			datasource_name TEXT NOT NULL DEFAULT '',
			definition      TEXT NOT NULL,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS schedules (
			query_name     TEXT PRIMARY KEY REFERENCES saved_queries(name) ON DELETE CASCADE,
			cron_spec      TEXT NOT NULL,
			output_dir     TEXT NOT NULL,
			output_pattern TEXT NOT NULL DEFAULT '{name}_{date}_{time}',
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS run_history (
			id          TEXT PRIMARY KEY,
			query_name  TEXT NOT NULL,
			started_at  DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			row_count   INTEGER NOT NULL DEFAULT 0,
			output_path TEXT NOT NULL DEFAULT '',
			error       TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE INDEX IF NOT EXISTS idx_saved_queries_luid ON saved_queries(datasource_luid)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_query  ON run_history(query_name)`,
		`CREATE INDEX IF NOT EXISTS idx_run_history_start  ON run_history(started_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
