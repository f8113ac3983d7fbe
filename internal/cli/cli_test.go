package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParser_RegistersCommands(t *testing.T) {
	parser, globals, cmds := buildParser("1.2.3")
	require.NotNil(t, parser)
	require.NotNil(t, globals)

	for _, name := range []string{"sources", "fields", "save", "queries", "show", "delete", "run", "schedule", "status"} {
		assert.NotNil(t, parser.Find(name), "command %q should be registered", name)
	}

	sched := parser.Find("schedule")
	require.NotNil(t, sched)
	for _, name := range []string{"add", "remove", "list", "run", "serve"} {
		assert.NotNil(t, sched.Find(name), "schedule subcommand %q should be registered", name)
	}

	assert.Equal(t, "1.2.3", cmds.Status.version)
}

func TestRunWithArgs_Version(t *testing.T) {
	err := RunWithArgs("1.2.3", []string{"--version"})
	assert.NoError(t, err)
}

func TestRunWithArgs_UnknownCommand(t *testing.T) {
	err := RunWithArgs("1.2.3", []string{"frobnicate"})
	assert.Error(t, err)
}
