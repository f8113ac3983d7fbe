package cli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"vizquery/internal/config"
	"vizquery/internal/query"
	"vizquery/internal/storage"
	"vizquery/internal/vizql"
)

// loadConfig resolves the config file: the --config flag if set, otherwise
// the default path (created with defaults on first use).
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		return config.Load(globals.Config)
	}
	return config.LoadOrCreate()
}

// openStore opens the configured SQLite database, runs migrations, and
// returns a ready-to-use store and the underlying *sql.DB.
func openStore(cfg *config.Config) (*storage.SQLiteStore, *sql.DB, error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	runner := storage.NewMigrationRunner(db)
	if err := runner.Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := storage.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}

	return store, db, nil
}

// newLogger builds a logrus logger at the configured level; --verbose
// forces debug.
func newLogger(cfg *config.Config, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)
	return log
}

// newClient builds the upstream client from configuration.
func newClient(cfg *config.Config, log *logrus.Logger) (*vizql.Client, error) {
	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("server.url is not configured")
	}
	if cfg.Server.TokenName == "" || cfg.Server.TokenSecret == "" {
		return nil, fmt.Errorf("server credential is not configured (token_name/token_secret)")
	}

	return vizql.NewClient(vizql.Config{
		ServerURL:   strings.TrimRight(cfg.Server.URL, "/"),
		APIVersion:  cfg.Server.APIVersion,
		Site:        cfg.Server.Site,
		TokenName:   cfg.Server.TokenName,
		TokenSecret: cfg.Server.TokenSecret,
		MaxAttempts: cfg.Execution.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Execution.RetryDelaySeconds) * time.Second,
		SessionTTL:  time.Duration(cfg.Execution.SessionTTLMinutes) * time.Minute,
		Timeout:     time.Duration(cfg.Execution.TimeoutSeconds) * time.Second,
	}, log), nil
}

// resolveDataSource matches a user-supplied reference (LUID or exact name,
// case-insensitive) against the site's published data sources.
func resolveDataSource(ctx context.Context, client *vizql.Client, ref string) (query.DataSource, error) {
	sources, err := client.ListDataSources(ctx)
	if err != nil {
		return query.DataSource{}, fmt.Errorf("list data sources: %w", err)
	}

	for _, ds := range sources {
		if ds.LUID == ref {
			return ds, nil
		}
	}
	for _, ds := range sources {
		if strings.EqualFold(ds.Name, ref) {
			return ds, nil
		}
	}
	return query.DataSource{}, fmt.Errorf("no data source matches %q", ref)
}

// parseFieldSpec splits a field selection like "Region" or "SUM(Sales)"
// into the field name and its aggregation.
func parseFieldSpec(spec string) (string, query.Aggregation, error) {
	spec = strings.TrimSpace(spec)
	open := strings.Index(spec, "(")
	if open > 0 && strings.HasSuffix(spec, ")") {
		agg, err := query.ParseAggregation(spec[:open])
		if err != nil {
			return "", "", fmt.Errorf("field spec %q: %w", spec, err)
		}
		name := strings.TrimSpace(spec[open+1 : len(spec)-1])
		if name == "" {
			return "", "", fmt.Errorf("field spec %q names no field", spec)
		}
		return name, agg, nil
	}
	if spec == "" {
		return "", "", fmt.Errorf("empty field spec")
	}
	return spec, "", nil
}

// filterSpec is the JSON shape accepted by --filter. Field is referenced
// by name and resolved against the data source's catalog.
type filterSpec struct {
	Field     string        `json:"field"`
	Op        string        `json:"op"`
	Values    []string      `json:"values,omitempty"`
	Min       *float64      `json:"min,omitempty"`
	Max       *float64      `json:"max,omitempty"`
	MinDate   *query.Date   `json:"minDate,omitempty"`
	MaxDate   *query.Date   `json:"maxDate,omitempty"`
	Period    string        `json:"period,omitempty"`
	RangeType string        `json:"rangeType,omitempty"`
	RangeN    int           `json:"rangeN,omitempty"`
}

// parseFilterSpec decodes a --filter argument and resolves its field.
func parseFilterSpec(raw string, catalog map[string]query.Field) (query.FilterPredicate, error) {
	var spec filterSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return query.FilterPredicate{}, fmt.Errorf("filter %q: %w", raw, err)
	}

	f, ok := catalog[spec.Field]
	if !ok {
		return query.FilterPredicate{}, fmt.Errorf("filter %q: unknown field %q", raw, spec.Field)
	}
	op, err := query.ParseOperator(spec.Op)
	if err != nil {
		return query.FilterPredicate{}, fmt.Errorf("filter %q: %w", raw, err)
	}

	return query.FilterPredicate{
		Field:     f,
		Op:        op,
		Values:    spec.Values,
		Min:       spec.Min,
		Max:       spec.Max,
		MinDate:   spec.MinDate,
		MaxDate:   spec.MaxDate,
		Period:    spec.Period,
		RangeType: spec.RangeType,
		RangeN:    spec.RangeN,
	}, nil
}

// buildModel assembles a query model from field and filter specs, resolving
// names against the data source's field catalog.
func buildModel(ctx context.Context, client *vizql.Client, ds query.DataSource, fieldSpecs, filterSpecs []string) (*query.Model, error) {
	fields, err := client.ListFields(ctx, ds.LUID)
	if err != nil {
		return nil, fmt.Errorf("fetch field catalog: %w", err)
	}
	catalog := make(map[string]query.Field, len(fields))
	for _, f := range fields {
		catalog[f.Name] = f
	}

	m := query.New(ds)
	for _, spec := range fieldSpecs {
		name, agg, err := parseFieldSpec(spec)
		if err != nil {
			return nil, err
		}
		f, ok := catalog[name]
		if !ok {
			return nil, fmt.Errorf("field %q not in data source %q", name, ds.Name)
		}
		if err := m.AddField(f, agg); err != nil {
			return nil, err
		}
	}
	for _, raw := range filterSpecs {
		p, err := parseFilterSpec(raw, catalog)
		if err != nil {
			return nil, err
		}
		if err := m.AddFilter(p); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
