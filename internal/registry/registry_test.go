package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowstate/internal/changelog"
	"github.com/zjrosen/flowstate/internal/codec"
	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/registry"
	"github.com/zjrosen/flowstate/internal/storage"
	"github.com/zjrosen/flowstate/internal/testutil"
)

func TestOpen_FreshStore(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg, report, err := registry.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()

	require.True(t, report.Fresh)
	require.False(t, report.Migrated)
	require.Nil(t, report.Corrupt)
	require.Empty(t, reg.ListFlows())
}

func TestOpen_FailedSinkLeavesDirReusable(t *testing.T) {
	cfg := testutil.TestConfig(t)
	cfg.Changelog.Enabled = true
	cfg.Changelog.SQLiteEnabled = true
	// Occupy the database path with a directory so the sink cannot open.
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.BaseDir, changelog.DBFileName), 0o755))

	_, _, err := registry.Open(cfg)
	require.Error(t, err)

	// The failed open released the file sink, so the directory stays usable.
	cfg.Changelog.SQLiteEnabled = false
	reg, report, err := registry.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()
	require.True(t, report.Fresh)
}

func TestCreateAndGetFlow(t *testing.T) {
	reg := testutil.NewTestRegistry(t)

	flow, err := reg.CreateFlow("refactor auth")
	require.NoError(t, err)
	require.Regexp(t, `^flow-`, string(flow.ID))
	require.Equal(t, "refactor auth", flow.Name)
	require.False(t, flow.CreatedAt.IsZero())

	got, err := reg.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, flow.ID, got.ID)
	require.Equal(t, flow.Name, got.Name)
}

func TestGetFlow_NotFound(t *testing.T) {
	reg := testutil.NewTestRegistry(t)

	_, err := reg.GetFlow("flow-missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "flow", nf.Kind)
	require.Equal(t, "flow-missing", nf.ID)
}

func TestReturnedSnapshotsAreCopies(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	flow, err := reg.CreateFlow("original")
	require.NoError(t, err)

	flow.Name = "mutated by caller"

	got, err := reg.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, "original", got.Name)

	// Mutating the second snapshot must not leak into a third.
	got.Name = "also mutated"
	again, err := reg.GetFlow(flow.ID)
	require.NoError(t, err)
	require.Equal(t, "original", again.Name)
}

func TestPlanAndTaskOrderPreserved(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	flow, err := reg.CreateFlow("f")
	require.NoError(t, err)

	names := []string{"alpha", "beta", "gamma"}
	for _, n := range names {
		_, err := reg.CreatePlan(flow.ID, n, "")
		require.NoError(t, err)
	}
	plans, err := reg.ListPlans(flow.ID)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	for i, p := range plans {
		require.Equal(t, names[i], p.Name)
	}

	titles := []string{"one", "two", "three", "four"}
	for _, title := range titles {
		_, err := reg.AddTask(plans[0].ID, title, "", nil)
		require.NoError(t, err)
	}
	tasks, err := reg.ListTasks(plans[0].ID)
	require.NoError(t, err)
	require.Len(t, tasks, 4)
	for i, task := range tasks {
		require.Equal(t, titles[i], task.Title)
		require.Equal(t, domain.StatusPending, task.Status)
	}
}

func TestSetTaskStatus_DependencyGate(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.PipelineFixture(t, reg)

	// "ship" depends on "test", which is only ACTIVE.
	_, err := reg.SetTaskStatus(fx.Tasks["ship"], domain.StatusActive)
	require.ErrorIs(t, err, domain.ErrDependencyNotDone)

	// Cancelling is always allowed out of PENDING.
	_, err = reg.SetTaskStatus(fx.Tasks["ship"], domain.StatusCancelled)
	require.NoError(t, err)
}

func TestSetTaskStatus_IllegalTransition(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	_, err := reg.SetTaskStatus(fx.Tasks["one"], domain.StatusDone)
	require.ErrorIs(t, err, domain.ErrIllegalTransition)

	// The failed transition left no trace.
	task, err := reg.GetTask(fx.Tasks["one"])
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, task.Status)
}

func TestUpdateTask_DependencyCycleRejected(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.PipelineFixture(t, reg)

	// build <- test <- ship already; pointing build at ship closes the loop.
	deps := []domain.TaskID{fx.Tasks["ship"]}
	_, err := reg.UpdateTask(fx.Tasks["build"], registry.TaskUpdate{DependsOn: &deps})
	require.ErrorIs(t, err, domain.ErrDependencyCycle)
}

func TestUpdateTask_SelfDependencyRejected(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	deps := []domain.TaskID{fx.Tasks["one"]}
	_, err := reg.UpdateTask(fx.Tasks["one"], registry.TaskUpdate{DependsOn: &deps})
	require.ErrorIs(t, err, domain.ErrDependencyCycle)
}

func TestAddTask_UnknownDependency(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	_, err := reg.AddTask(fx.Plans["setup"], "dangling", "", []domain.TaskID{"task-nope"})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteTask_StrippedFromDependents(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.PipelineFixture(t, reg)

	require.NoError(t, reg.DeleteTask(fx.Tasks["test"]))

	ship, err := reg.GetTask(fx.Tasks["ship"])
	require.NoError(t, err)
	require.Empty(t, ship.DependsOn)

	tasks, err := reg.ListTasks(fx.Plans["release"])
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestDeleteFlow_Cascades(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	require.NoError(t, reg.DeleteFlow(fx.Flows["main"]))

	_, err := reg.GetPlan(fx.Plans["setup"])
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = reg.GetTask(fx.Tasks["one"])
	require.ErrorIs(t, err, domain.ErrNotFound)

	// Cascaded entities also left the name index.
	require.Empty(t, reg.FindByName("setup"))
	require.Empty(t, reg.FindByName("one"))

	// The deleted flow was selected; the selection is gone.
	_, ok := reg.CurrentFlow()
	require.False(t, ok)
}

func TestFindByName(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	matches := reg.FindByName("one")
	require.Len(t, matches, 1)
	require.Equal(t, "task", matches[0].Kind)
	require.Equal(t, string(fx.Tasks["one"]), matches[0].ID)

	// Names are not unique across kinds.
	_, err := reg.CreatePlan(fx.Flows["main"], "one", "")
	require.NoError(t, err)
	require.Len(t, reg.FindByName("one"), 2)

	require.Empty(t, reg.FindByName("no such name"))
}

func TestRename_UpdatesNameIndex(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	_, err := reg.UpdateFlowName(fx.Flows["main"], "renamed")
	require.NoError(t, err)

	require.Empty(t, reg.FindByName("main"))
	matches := reg.FindByName("renamed")
	require.Len(t, matches, 1)
	require.Equal(t, "flow", matches[0].Kind)
}

func TestSelections(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	flow, ok := reg.CurrentFlow()
	require.True(t, ok)
	require.Equal(t, fx.Flows["main"], flow.ID)

	require.NoError(t, reg.SelectTask(fx.Tasks["two"]))
	task, ok := reg.CurrentTask()
	require.True(t, ok)
	require.Equal(t, fx.Tasks["two"], task.ID)

	// Deleting the selected task clears the marker.
	require.NoError(t, reg.DeleteTask(fx.Tasks["two"]))
	_, ok = reg.CurrentTask()
	require.False(t, ok)

	reg.ClearFlowSelection()
	_, ok = reg.CurrentFlow()
	require.False(t, ok)
}

func TestFlushAndReopen(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg := testutil.NewTestRegistryWithConfig(t, cfg)
	fx := testutil.PipelineFixture(t, reg)
	require.NoError(t, reg.SelectFlow(fx.Flows["pipeline"]))
	require.NoError(t, reg.SelectTask(fx.Tasks["ship"]))
	require.NoError(t, reg.Close())

	reopened, report, err := registry.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	require.False(t, report.Fresh)

	flows := reopened.ListFlows()
	require.Len(t, flows, 1)
	require.Equal(t, "pipeline", flows[0].Name)

	build, err := reopened.GetTask(fx.Tasks["build"])
	require.NoError(t, err)
	require.Equal(t, domain.StatusDone, build.Status)

	// Flow selection is persisted; task selection is process-local.
	flow, ok := reopened.CurrentFlow()
	require.True(t, ok)
	require.Equal(t, fx.Flows["pipeline"], flow.ID)
	_, ok = reopened.CurrentTask()
	require.False(t, ok)
}

func TestFlush_NoopWhenClean(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg := testutil.NewTestRegistryWithConfig(t, cfg)
	_, err := reg.CreateFlow("f")
	require.NoError(t, err)
	require.NoError(t, reg.Flush())
	require.False(t, reg.Dirty())

	storePath := filepath.Join(cfg.BaseDir, storage.StoreFileName)
	before, err := os.ReadFile(storePath)
	require.NoError(t, err)

	require.NoError(t, reg.Flush())

	after, err := os.ReadFile(storePath)
	require.NoError(t, err)
	require.Equal(t, string(before), string(after), "clean flush must not rewrite the file")
}

func TestFlush_RevisionMonotonic(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg := testutil.NewTestRegistryWithConfig(t, cfg)

	_, err := reg.CreateFlow("a")
	require.NoError(t, err)
	require.NoError(t, reg.Flush())
	rev1 := reg.GetStatistics().Revision

	_, err = reg.CreateFlow("b")
	require.NoError(t, err)
	require.NoError(t, reg.Flush())
	rev2 := reg.GetStatistics().Revision

	require.Greater(t, rev2, rev1)
}

func TestOpen_CorruptStoreQuarantined(t *testing.T) {
	cfg := testutil.TestConfig(t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.BaseDir, storage.StoreFileName), []byte("{{{"), 0644))

	reg, report, err := registry.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = reg.Close() }()

	require.NotNil(t, report.Corrupt)
	require.ErrorIs(t, report.Corrupt, domain.ErrCorruptStore)
	require.NotEmpty(t, report.Corrupt.QuarantinePath)
	require.Empty(t, reg.ListFlows())

	// The bad bytes are preserved for inspection.
	data, err := os.ReadFile(report.Corrupt.QuarantinePath)
	require.NoError(t, err)
	require.Equal(t, "{{{", string(data))
}

func TestOpen_MigratesLegacyStoreOnce(t *testing.T) {
	cfg := testutil.TestConfig(t)
	legacy := `{
  "version": 1,
  "flows": [
    {"id": "flow-a", "name": "legacy", "plans": [
      {"id": "plan-a", "name": "p", "tasks": [
        {"id": "task-a", "title": "t", "status": "in_progress"}
      ]}
    ]}
  ]
}`
	storePath := filepath.Join(cfg.BaseDir, storage.StoreFileName)
	require.NoError(t, os.WriteFile(storePath, []byte(legacy), 0644))

	reg, report, err := registry.Open(cfg)
	require.NoError(t, err)
	require.True(t, report.Migrated)

	task, err := reg.GetTask("task-a")
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, task.Status)
	require.NoError(t, reg.Close())

	// The upgraded form is already on disk: the second open sees v2.
	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	_, migrated, err := codec.Decode(data)
	require.NoError(t, err)
	require.False(t, migrated)

	again, report2, err := registry.Open(cfg)
	require.NoError(t, err)
	defer func() { _ = again.Close() }()
	require.False(t, report2.Migrated)
}

func TestSync_PicksUpExternalWrite(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg := testutil.NewTestRegistryWithConfig(t, cfg)
	_, err := reg.CreateFlow("mine")
	require.NoError(t, err)
	require.NoError(t, reg.Flush())

	// Simulate another process: open a second registry over the same
	// directory, add a flow, and flush it.
	other, _, err := registry.Open(cfg)
	require.NoError(t, err)
	_, err = other.CreateFlow("theirs")
	require.NoError(t, err)
	require.NoError(t, other.Close())

	require.NoError(t, reg.Sync())
	flows := reg.ListFlows()
	require.Len(t, flows, 2)
}

func TestSync_FlushesDirtyStateFirst(t *testing.T) {
	cfg := testutil.TestConfig(t)
	reg := testutil.NewTestRegistryWithConfig(t, cfg)
	_, err := reg.CreateFlow("pending changes")
	require.NoError(t, err)
	require.True(t, reg.Dirty())

	require.NoError(t, reg.Sync())
	require.False(t, reg.Dirty())

	data, err := os.ReadFile(filepath.Join(cfg.BaseDir, storage.StoreFileName))
	require.NoError(t, err)
	require.Contains(t, string(data), "pending changes")
}

func TestStatistics_CacheServesRepeatedGets(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	_, err := reg.GetTask(fx.Tasks["one"])
	require.NoError(t, err)
	lookupsAfterFirst := reg.GetStatistics().MapLookups

	for i := 0; i < 5; i++ {
		_, err := reg.GetTask(fx.Tasks["one"])
		require.NoError(t, err)
	}
	stats := reg.GetStatistics()
	require.Equal(t, lookupsAfterFirst, stats.MapLookups,
		"repeated gets of the same entity must be served by the cache")
	require.GreaterOrEqual(t, stats.HotCacheHits, uint64(5))
	require.Equal(t, 1, stats.Flows)
	require.Equal(t, 1, stats.Plans)
	require.Equal(t, 3, stats.Tasks)
}

func TestMutationInvalidatesCachedSnapshot(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)
	id := fx.Tasks["one"]

	// Prime the hot slot and the snapshot cache.
	for i := 0; i < 3; i++ {
		_, err := reg.GetTask(id)
		require.NoError(t, err)
	}
	lookupsBefore := reg.GetStatistics().MapLookups

	_, err := reg.SetTaskStatus(id, domain.StatusActive)
	require.NoError(t, err)

	task, err := reg.GetTask(id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusActive, task.Status,
		"a get after a mutation must not serve the stale snapshot")
	require.Equal(t, lookupsBefore+1, reg.GetStatistics().MapLookups,
		"the mutated entity must be re-read from the map, not the cache")
}

func TestCompletePlan_ManualFlag(t *testing.T) {
	reg := testutil.NewTestRegistry(t)
	fx := testutil.SimpleFixture(t, reg)

	plan, err := reg.CompletePlan(fx.Plans["setup"])
	require.NoError(t, err)
	require.True(t, plan.Completed)

	// Completing the plan does not touch its tasks.
	tasks, err := reg.ListTasks(fx.Plans["setup"])
	require.NoError(t, err)
	for _, task := range tasks {
		require.Equal(t, domain.StatusPending, task.Status)
	}
}
