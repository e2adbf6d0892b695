package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"reports", "geocode", "dashboard", "serve"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "floodwatch", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)

	flag := rootCmd.PersistentFlags().Lookup("output")
	require.NotNil(t, flag)
	assert.Equal(t, "o", flag.Shorthand)
	assert.Equal(t, "table", flag.DefValue)
}

func TestReportsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range reportsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "create", "edit", "resolve", "delete", "export"} {
		assert.True(t, names[name], "reports should have subcommand %q", name)
	}
}

func TestCreateCommand_Flags(t *testing.T) {
	for _, name := range []string{"description", "water-level", "location", "lat", "lng", "image"} {
		assert.NotNil(t, reportsCreateCmd.Flags().Lookup(name), "create should have --%s", name)
	}
	assert.Nil(t, reportsCreateCmd.Flags().Lookup("status"), "status is only editable")

	required := reportsCreateCmd.Flags().Lookup("description").Annotations
	assert.Contains(t, required, "cobra_annotation_bash_completion_one_required_flag")
}

func TestEditCommand_Flags(t *testing.T) {
	assert.NotNil(t, reportsEditCmd.Flags().Lookup("status"))
	assert.NotNil(t, reportsEditCmd.Flags().Lookup("water-level"))
}

func TestResolveCommand_Flags(t *testing.T) {
	flag := reportsResolveCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "4", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, serveCmd.Flags().Lookup("seed"))
}

func TestDashboardCommand_Flags(t *testing.T) {
	flag := dashboardCmd.Flags().Lookup("hotspots")
	require.NotNil(t, flag)
	assert.Equal(t, "3", flag.DefValue)
}
