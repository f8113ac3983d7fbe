// Package sched runs stored query definitions unattended on cron
// cadences. The hosting process must stay alive for ticks to fire; missed
// ticks are not replayed after a restart.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"vizquery/internal/query"
	"vizquery/internal/sink"
	"vizquery/internal/storage"
)

// Runner executes a query model end to end. *engine.Engine satisfies it.
type Runner interface {
	Run(ctx context.Context, m *query.Model) (*query.ResultTable, error)
}

// Scheduler owns the in-process timer loop. It is the sole mutator of its
// schedule entries; each tick is independent and a failed run never
// unschedules the entry or stops the loop.
type Scheduler struct {
	cron   *cron.Cron
	store  storage.Store
	runner Runner
	log    logrus.FieldLogger

	// sinkFor builds the output destination for an entry; swappable in
	// tests.
	sinkFor func(storage.ScheduleEntry) sink.Sink

	mu      sync.Mutex
	entries map[string]cron.EntryID
	active  map[string]storage.ScheduleEntry
}

// New creates a scheduler over a store and a runner.
func New(store storage.Store, runner Runner, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:   cron.New(),
		store:  store,
		runner: runner,
		log:    log,
		sinkFor: func(e storage.ScheduleEntry) sink.Sink {
			return sink.NewFileSink(e.OutputDir, e.OutputPattern)
		},
		entries: make(map[string]cron.EntryID),
		active:  make(map[string]storage.ScheduleEntry),
	}
}

// Start loads persisted schedule entries and starts the timer loop.
func (s *Scheduler) Start(ctx context.Context) error {
	persisted, err := s.store.ListSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}
	for _, entry := range persisted {
		if err := s.add(entry); err != nil {
			s.log.WithFields(logrus.Fields{
				"query": entry.QueryName, "cron": entry.CronSpec, "error": err,
			}).Warn("skipping persisted schedule with invalid cadence")
		}
	}
	s.cron.Start()
	s.log.WithField("entries", len(s.entries)).Info("scheduler started")
	return nil
}

// Stop halts the timer loop and waits for any in-flight run to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// Schedule persists an entry and activates its cadence, replacing any
// previous entry for the same query name.
func (s *Scheduler) Schedule(ctx context.Context, entry storage.ScheduleEntry) error {
	// Reject bad cadences before persisting anything.
	if _, err := cron.ParseStandard(entry.CronSpec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", entry.CronSpec, err)
	}
	if err := s.store.SaveSchedule(ctx, entry); err != nil {
		return err
	}
	return s.add(entry)
}

// add registers the cron entry. Replaces an existing one for the same name.
func (s *Scheduler) add(entry storage.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[entry.QueryName]; ok {
		s.cron.Remove(old)
	}

	name := entry.QueryName
	e := entry
	id, err := s.cron.AddFunc(entry.CronSpec, func() {
		if err := s.RunOnce(context.Background(), e); err != nil {
			s.log.WithFields(logrus.Fields{
				"query": name, "error": err,
			}).Error("scheduled run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("add cron entry for %q: %w", name, err)
	}

	s.entries[name] = id
	s.active[name] = entry
	s.log.WithFields(logrus.Fields{
		"query": name, "cron": entry.CronSpec,
	}).Info("schedule active")
	return nil
}

// Unschedule deactivates and deletes the entry bound to a query name.
func (s *Scheduler) Unschedule(ctx context.Context, queryName string) error {
	s.mu.Lock()
	if id, ok := s.entries[queryName]; ok {
		s.cron.Remove(id)
		delete(s.entries, queryName)
		delete(s.active, queryName)
	}
	s.mu.Unlock()

	return s.store.DeleteSchedule(ctx, queryName)
}

// ListActive returns the currently scheduled entries.
func (s *Scheduler) ListActive() []storage.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.ScheduleEntry, 0, len(s.active))
	for _, e := range s.active {
		out = append(out, e)
	}
	return out
}

// RunOnce performs a single tick for an entry: load the saved query, run
// it, hand the table to the output sink, and record the outcome. Each tick
// stands alone; no state carries over between runs.
func (s *Scheduler) RunOnce(ctx context.Context, entry storage.ScheduleEntry) error {
	started := time.Now()
	record := &storage.RunRecord{
		QueryName: entry.QueryName,
		StartedAt: started,
	}

	err := func() error {
		sq, err := s.store.LoadQuery(ctx, entry.QueryName)
		if err != nil {
			return err
		}

		table, err := s.runner.Run(ctx, sq.Model)
		if err != nil {
			return err
		}

		path, err := s.sinkFor(entry).Write(ctx, entry.QueryName, table)
		if err != nil {
			return fmt.Errorf("write output: %w", err)
		}

		record.RowCount = table.RowCount()
		record.OutputPath = path
		s.log.WithFields(logrus.Fields{
			"query": entry.QueryName, "rows": record.RowCount, "output": path,
		}).Info("scheduled run completed")
		return nil
	}()

	record.FinishedAt = time.Now()
	if err != nil {
		record.Error = err.Error()
	}
	if recErr := s.store.RecordRun(ctx, record); recErr != nil {
		s.log.WithField("error", recErr).Warn("failed to record run history")
	}
	return err
}
