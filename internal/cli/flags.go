package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// SourcesCommand — list published data sources on the configured site.
type SourcesCommand struct {
	globals *GlobalFlags
	version string
}

// FieldsCommand — show the typed field catalog of a data source.
type FieldsCommand struct {
	Source  string `long:"source" description:"Data source LUID or name (required)"`
	Refresh bool   `long:"refresh" description:"Bypass the cached catalog and re-fetch"`
	Values  string `long:"values" description:"List distinct values of the named dimension instead"`

	globals *GlobalFlags
	version string
}

// SaveCommand — define a query and persist it under a name.
type SaveCommand struct {
	Name   string   `long:"name" description:"Name to save the query under (required)"`
	Source string   `long:"source" description:"Data source LUID or name (required)"`
	Field  []string `long:"field" description:"Field to select: a dimension name or AGG(Measure), repeatable"`
	Filter []string `long:"filter" description:"Filter predicate as JSON, repeatable"`

	globals *GlobalFlags
	version string
}

// QueriesCommand — list saved query names.
type QueriesCommand struct {
	globals *GlobalFlags
	version string
}

// ShowCommand — print a saved query definition.
type ShowCommand struct {
	Name string `long:"name" description:"Saved query name (required)"`

	globals *GlobalFlags
	version string
}

// DeleteCommand — delete a saved query and any schedule bound to it.
type DeleteCommand struct {
	Name string `long:"name" description:"Saved query name (required)"`

	globals *GlobalFlags
	version string
}

// RunCommand — execute a saved query and print or write its result table.
type RunCommand struct {
	Name   string `long:"name" description:"Saved query name (required)"`
	Output string `long:"output" short:"o" description:"Write results to this CSV file instead of stdout"`

	globals *GlobalFlags
	version string
}

// ScheduleCommand groups the schedule subcommands.
type ScheduleCommand struct{}

// ScheduleAddCommand — bind a saved query to a cron cadence.
type ScheduleAddCommand struct {
	Name    string `long:"name" description:"Saved query name (required)"`
	Cron    string `long:"cron" description:"Standard 5-field cron spec (required)"`
	Dir     string `long:"dir" description:"Output directory (default from config)"`
	Pattern string `long:"pattern" description:"Output filename pattern ({name}, {date}, {time})"`

	globals *GlobalFlags
	version string
}

// ScheduleRemoveCommand — drop the schedule bound to a query.
type ScheduleRemoveCommand struct {
	Name string `long:"name" description:"Saved query name (required)"`

	globals *GlobalFlags
	version string
}

// ScheduleListCommand — list persisted schedules.
type ScheduleListCommand struct {
	globals *GlobalFlags
	version string
}

// ScheduleRunCommand — run one schedule tick immediately.
type ScheduleRunCommand struct {
	Name string `long:"name" description:"Saved query name (required)"`

	globals *GlobalFlags
	version string
}

// ScheduleServeCommand — run the scheduler loop in the foreground.
type ScheduleServeCommand struct {
	globals *GlobalFlags
	version string
}

// StatusCommand — show store statistics and recent run history.
type StatusCommand struct {
	Runs int `long:"runs" description:"How many recent runs to show" default:"10"`

	globals *GlobalFlags
	version string
}
