package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistration(t *testing.T) {
	want := []string{
		"migrate", "import", "cluster", "deconflict",
		"promote", "consolidate", "pipeline", "rollup",
		"status", "runs",
	}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, registered[name], "command %q not registered", name)
	}
}

func TestClusterCommandFlags(t *testing.T) {
	for _, flag := range []string{"country", "date", "dry-run"} {
		require.NotNil(t, clusterCmd.Flags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestRollupCommandPeriodDefault(t *testing.T) {
	f := rollupCmd.Flags().Lookup("period")
	require.NotNil(t, f)
	assert.Equal(t, "daily", f.DefValue)
}
