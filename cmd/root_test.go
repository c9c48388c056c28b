package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/gto/internal/registry/collector"
)

func TestCommandsAreRegistered(t *testing.T) {
	want := []string{
		"show", "history", "latest", "which", "describe", "stages",
		"check-ref", "parse-tag", "register", "deregister", "assign",
		"unassign", "deprecate", "annotate", "remove",
	}

	have := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		require.True(t, have[name], "command %q should be registered", name)
	}
}

func TestScopeFromFlags(t *testing.T) {
	require.Equal(t, collector.ScopeHead, scopeFromFlags(false, false).Kind)
	require.Equal(t, collector.ScopeBranches, scopeFromFlags(true, false).Kind)
	require.Equal(t, collector.ScopeAll, scopeFromFlags(false, true).Kind)
	require.Equal(t, collector.ScopeAll, scopeFromFlags(true, true).Kind, "all-commits wins")
}

func TestSetVersion(t *testing.T) {
	SetVersion("1.2.3 (commit: abc, built: today)")
	require.Equal(t, "1.2.3 (commit: abc, built: today)", rootCmd.Version)
}
