package cmd

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowstate/internal/codec"
	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/registry"
)

// run executes the CLI with the given args, capturing stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	rootCmd.SetArgs(args)
	execErr := Execute()

	require.NoError(t, w.Close())
	os.Stdout = old
	out, err := io.ReadAll(r)
	_ = r.Close()
	require.NoError(t, err)
	return string(out), execErr
}

func TestCLI_FlowLifecycle(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := run(t, "flow", "create", "demo flow")
	require.NoError(t, err)

	var flow domain.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flow))
	require.Equal(t, "demo flow", flow.Name)

	// The write landed through the atomic store on close.
	data, readErr := os.ReadFile(filepath.Join(".flowstate", "flowstate.json"))
	require.NoError(t, readErr)
	snap, migrated, decodeErr := codec.Decode(data)
	require.NoError(t, decodeErr)
	require.False(t, migrated)
	require.Len(t, snap.Flows, 1)

	out, err = run(t, "flow", "list")
	require.NoError(t, err)
	var flows []domain.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flows))
	require.Len(t, flows, 1)
	require.Equal(t, flow.ID, flows[0].ID)
}

func TestCLI_TaskStatusFlow(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := run(t, "flow", "create", "f")
	require.NoError(t, err)
	var flow domain.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flow))

	out, err = run(t, "plan", "create", string(flow.ID), "p")
	require.NoError(t, err)
	var plan domain.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))

	out, err = run(t, "task", "add", string(plan.ID), "first task")
	require.NoError(t, err)
	var task domain.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	require.Equal(t, domain.StatusPending, task.Status)

	out, err = run(t, "task", "status", string(task.ID), "active")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	require.Equal(t, domain.StatusActive, task.Status)

	// Illegal transition surfaces the registry error.
	_, err = run(t, "task", "status", string(task.ID), "pending")
	require.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestCLI_StatsAndFind(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "flow", "create", "needle")
	require.NoError(t, err)

	out, err := run(t, "stats")
	require.NoError(t, err)
	var stats registry.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Equal(t, 1, stats.Flows)

	out, err = run(t, "find", "needle")
	require.NoError(t, err)
	var matches []registry.NameMatch
	require.NoError(t, json.Unmarshal([]byte(out), &matches))
	require.Len(t, matches, 1)
	require.Equal(t, "flow", matches[0].Kind)
}

func TestCLI_WritesDefaultConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := run(t, "flow", "list")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(".flowstate", "config.yaml"))
	require.NoError(t, err)
	require.Contains(t, string(data), "# flowstate configuration")
}
