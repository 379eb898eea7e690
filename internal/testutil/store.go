// Package testutil provides helpers for tests that need a real registry
// backed by a temporary directory, plus a fluent builder for seeding it.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowstate/internal/config"
	"github.com/zjrosen/flowstate/internal/registry"
)

// TestConfig returns a configuration suitable for tests: temp directory,
// short lock timeout, no watcher, no tracing.
func TestConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.BaseDir = t.TempDir()
	cfg.LockTimeout = 2 * time.Second
	cfg.WatchEnabled = false
	cfg.Changelog.Enabled = false
	cfg.Changelog.SQLiteEnabled = false
	cfg.Tracing.Enabled = false
	return cfg
}

// NewTestRegistry opens a registry over a fresh temp directory and closes it
// when the test ends.
func NewTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	return NewTestRegistryWithConfig(t, TestConfig(t))
}

// NewTestRegistryWithConfig opens a registry over the given configuration
// and closes it when the test ends.
func NewTestRegistryWithConfig(t *testing.T, cfg config.Config) *registry.Registry {
	t.Helper()
	reg, report, err := registry.Open(cfg)
	require.NoError(t, err)
	require.Nil(t, report.Corrupt)
	t.Cleanup(func() { _ = reg.Close() })
	return reg
}
