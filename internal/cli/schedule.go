package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"vizquery/internal/config"
	"vizquery/internal/engine"
	"vizquery/internal/sched"
	"vizquery/internal/storage"
)

// Execute implements the go-flags Commander interface for ScheduleAddCommand.
func (c *ScheduleAddCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for schedule add")
	}
	if c.Cron == "" {
		return fmt.Errorf("--cron is required for schedule add")
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

	return c.executeWith(cfg, store)
}

// executeWith persists the schedule against a provided store (for testing).
func (c *ScheduleAddCommand) executeWith(cfg *config.Config, store storage.Store) error {
	if _, err := cron.ParseStandard(c.Cron); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", c.Cron, err)
	}

	dir := c.Dir
	if dir == "" {
		expanded, err := config.ExpandPath(cfg.Output.Dir)
		if err != nil {
			return err
		}
		dir = expanded
	}
	pattern := c.Pattern
	if pattern == "" {
		pattern = cfg.Output.Pattern
	}

	entry := storage.ScheduleEntry{
		QueryName:     c.Name,
		CronSpec:      c.Cron,
		OutputDir:     dir,
		OutputPattern: pattern,
	}
	if err := store.SaveSchedule(context.Background(), entry); err != nil {
		return err
	}

	fmt.Printf("Scheduled %q at %q, output to %s\n", c.Name, c.Cron, dir)
	fmt.Println("Run `vizquery schedule serve` to keep the cadence firing.")
	return nil
}

// Execute implements the go-flags Commander interface for ScheduleRemoveCommand.
func (c *ScheduleRemoveCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for schedule remove")
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

func (c *ScheduleRemoveCommand) executeWithStore(store storage.Store) error {
	if err := store.DeleteSchedule(context.Background(), c.Name); err != nil {
		return err
	}
	fmt.Printf("Removed schedule for %q\n", c.Name)
	return nil
}

// Execute implements the go-flags Commander interface for ScheduleListCommand.
func (c *ScheduleListCommand) Execute(args []string) error {
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

func (c *ScheduleListCommand) executeWithStore(store storage.Store) error {
	entries, err := store.ListSchedules(context.Background())
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No schedules.")
		return nil
	}
	fmt.Printf("%-24s %-16s %s\n", "QUERY", "CRON", "OUTPUT")
	for _, e := range entries {
		fmt.Printf("%-24s %-16s %s\n", e.QueryName, e.CronSpec, e.OutputDir)
	}
	return nil
}

// Execute implements the go-flags Commander interface for ScheduleRunCommand.
func (c *ScheduleRunCommand) Execute(args []string) error {
	if c.Name == "" {
		return fmt.Errorf("--name is required for schedule run")
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

	scheduler := sched.New(store, engine.New(client, log), log)
	return c.executeWith(scheduler, store)
}

// executeWith fires one tick through a provided scheduler (for testing).
func (c *ScheduleRunCommand) executeWith(scheduler *sched.Scheduler, store storage.Store) error {
	ctx := context.Background()

	entries, err := store.ListSchedules(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.QueryName == c.Name {
			if err := scheduler.RunOnce(ctx, e); err != nil {
				return err
			}
			fmt.Printf("Ran schedule for %q\n", c.Name)
			return nil
		}
	}
	return fmt.Errorf("schedule for %q: %w", c.Name, storage.ErrNotFound)
}

// Execute implements the go-flags Commander interface for ScheduleServeCommand.
func (c *ScheduleServeCommand) Execute(args []string) error {
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

	scheduler := sched.New(store, engine.New(client, log), log)
	if err := scheduler.Start(context.Background()); err != nil {
		return err
	}

	fmt.Printf("Scheduler running (%d schedules); Ctrl-C to stop.\n", len(scheduler.ListActive()))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	fmt.Println("Stopping scheduler...")
	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		fmt.Println("Timed out waiting for in-flight runs.")
	}
	return nil
}
