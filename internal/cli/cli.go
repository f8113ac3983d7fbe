// Package cli wires the vizquery command-line surface: catalog browsing,
// query definition, execution, and scheduling.
package cli

import (
	"fmt"
	"os"

	goflags "github.com/jessevdk/go-flags"
)

// commands holds references to all subcommand structs for inspection/testing.
type commands struct {
	Sources *SourcesCommand
	Fields  *FieldsCommand
	Save    *SaveCommand
	Queries *QueriesCommand
	Show    *ShowCommand
	Delete  *DeleteCommand
	Run     *RunCommand
	Status  *StatusCommand

	ScheduleAdd    *ScheduleAddCommand
	ScheduleRemove *ScheduleRemoveCommand
	ScheduleList   *ScheduleListCommand
	ScheduleRun    *ScheduleRunCommand
	ScheduleServe  *ScheduleServeCommand
}

// buildParser constructs the go-flags parser with all subcommands registered.
func buildParser(version string) (*goflags.Parser, *GlobalFlags, *commands) {
	var globals GlobalFlags

	parser := goflags.NewParser(&globals, goflags.Default)
	parser.Name = "vizquery"
	parser.LongDescription = "Define, save, run and schedule aggregation queries against published data sources."

	cmds := &commands{
		Sources: &SourcesCommand{globals: &globals, version: version},
		Fields:  &FieldsCommand{globals: &globals, version: version},
		Save:    &SaveCommand{globals: &globals, version: version},
		Queries: &QueriesCommand{globals: &globals, version: version},
		Show:    &ShowCommand{globals: &globals, version: version},
		Delete:  &DeleteCommand{globals: &globals, version: version},
		Run:     &RunCommand{globals: &globals, version: version},
		Status:  &StatusCommand{globals: &globals, version: version},

		ScheduleAdd:    &ScheduleAddCommand{globals: &globals, version: version},
		ScheduleRemove: &ScheduleRemoveCommand{globals: &globals, version: version},
		ScheduleList:   &ScheduleListCommand{globals: &globals, version: version},
		ScheduleRun:    &ScheduleRunCommand{globals: &globals, version: version},
		ScheduleServe:  &ScheduleServeCommand{globals: &globals, version: version},
	}

	parser.AddCommand("sources", "List published data sources", "List the published data sources visible on the configured site.", cmds.Sources)
	parser.AddCommand("fields", "Show a data source's field catalog", "Show the typed field catalog of a data source, or distinct values of one dimension.", cmds.Fields)
	parser.AddCommand("save", "Define and save a query", "Define a query (fields, aggregations, filters) and persist it under a name.", cmds.Save)
	parser.AddCommand("queries", "List saved queries", "List all saved query names.", cmds.Queries)
	parser.AddCommand("show", "Print a saved query definition", "Print the full definition of a saved query.", cmds.Show)
	parser.AddCommand("delete", "Delete a saved query", "Delete a saved query and any schedule bound to it.", cmds.Delete)
	parser.AddCommand("run", "Execute a saved query", "Execute a saved query and print the result table or write it to a CSV file.", cmds.Run)
	parser.AddCommand("status", "Show store statistics and run history", "Show store statistics, schedules, and recent run history.", cmds.Status)

	sched, _ := parser.AddCommand("schedule", "Manage scheduled runs", "Bind saved queries to cron cadences and manage the scheduler.", &ScheduleCommand{})
	if sched != nil {
		sched.AddCommand("add", "Schedule a saved query", "Bind a saved query to a cron cadence with an output destination.", cmds.ScheduleAdd)
		sched.AddCommand("remove", "Remove a schedule", "Drop the schedule bound to a saved query.", cmds.ScheduleRemove)
		sched.AddCommand("list", "List schedules", "List all persisted schedules.", cmds.ScheduleList)
		sched.AddCommand("run", "Run one tick now", "Run a single schedule tick immediately, outside the cadence.", cmds.ScheduleRun)
		sched.AddCommand("serve", "Run the scheduler loop", "Run the scheduler loop in the foreground until interrupted.", cmds.ScheduleServe)
	}

	return parser, &globals, cmds
}

// Run is the main entry point for the vizquery CLI using os.Args.
func Run(version string) error {
	return RunWithArgs(version, nil)
}

// RunWithArgs parses the given args (or os.Args if nil) and executes the matched subcommand.
func RunWithArgs(version string, args []string) error {
	// Handle --version before parser (go-flags requires a subcommand, but
	// --version is valid without one).
	checkArgs := args
	if checkArgs == nil {
		checkArgs = os.Args[1:]
	}
	for _, arg := range checkArgs {
		if arg == "--version" {
			fmt.Printf("vizquery %s\n", version)
			return nil
		}
		if arg == "--" {
			break
		}
	}

	parser, _, _ := buildParser(version)

	var err error
	if args != nil {
		_, err = parser.ParseArgs(args)
	} else {
		_, err = parser.Parse()
	}

	if err != nil {
		if flagsErr, ok := err.(*goflags.Error); ok {
			if flagsErr.Type == goflags.ErrHelp {
				return nil
			}
		}
		return err
	}

	return nil
}
