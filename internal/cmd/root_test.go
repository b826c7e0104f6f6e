package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	SetVersionInfo("1.2.3", "abc123", "2026-08-27")

	assert.Equal(t, "1.2.3", versionInfo.Version)
	assert.Equal(t, "abc123", versionInfo.Commit)
	assert.Equal(t, "2026-08-27", versionInfo.BuildDate)
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"serve", "poll", "analyze", "version"} {
		assert.True(t, names[want], "expected %q subcommand", want)
	}
}

func TestAnalyzeSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range analyzeCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["blocks"])
	assert.True(t, names["precompiles"])
}

func TestAnalyzeBlocksFlagDefaults(t *testing.T) {
	flags := analyzeBlocksCmd.Flags()

	pages, err := flags.GetInt("pages")
	require.NoError(t, err)
	assert.Equal(t, 1, pages)

	size, err := flags.GetInt("size")
	require.NoError(t, err)
	assert.Equal(t, 100, size)

	machine, err := flags.GetString("machine-type")
	require.NoError(t, err)
	assert.Equal(t, "multi", machine)

	metric, err := flags.GetString("metric")
	require.NoError(t, err)
	assert.Equal(t, "all", metric)
}

func TestAnalyzePrecompilesFlagDefaults(t *testing.T) {
	flags := analyzePrecompilesCmd.Flags()

	rpc, err := flags.GetString("rpc")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", rpc)

	topK, err := flags.GetInt("top-k")
	require.NoError(t, err)
	assert.Equal(t, 5, topK)
}
