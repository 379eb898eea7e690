package codec

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/flowstate/internal/domain"
)

func sampleSnapshot() *Snapshot {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	snap := NewSnapshot()
	snap.Revision = 7

	flowID := domain.FlowID("flow-aaaa1111")
	planID := domain.PlanID("plan-bbbb2222")
	taskA := domain.TaskID("task-cccc3333")
	taskB := domain.TaskID("task-dddd4444")

	snap.Flows[flowID] = &domain.Flow{
		ID: flowID, Name: "release", PlanOrder: []domain.PlanID{planID},
		CreatedAt: now, UpdatedAt: now,
	}
	snap.Plans[planID] = &domain.Plan{
		ID: planID, FlowID: flowID, Name: "ship", Description: "cut the release",
		TaskOrder: []domain.TaskID{taskA, taskB},
	}
	snap.Tasks[taskA] = &domain.Task{
		ID: taskA, PlanID: planID, Title: "tag", Status: domain.StatusDone,
		CreatedAt: now, UpdatedAt: now,
	}
	snap.Tasks[taskB] = &domain.Task{
		ID: taskB, PlanID: planID, Title: "announce", Status: domain.StatusPending,
		DependsOn: []domain.TaskID{taskA},
		Metadata:  map[string]string{"channel": "releases"},
		CreatedAt: now, UpdatedAt: now,
	}
	snap.CurrentFlow = &flowID
	return snap
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Encode(snap)
	require.NoError(t, err)

	got, migrated, err := Decode(data)
	require.NoError(t, err)
	require.False(t, migrated)

	require.Equal(t, snap.Revision, got.Revision)
	require.Equal(t, snap.CurrentFlow, got.CurrentFlow)
	require.Equal(t, snap.Flows, got.Flows)
	require.Equal(t, snap.Plans, got.Plans)
	require.Equal(t, snap.Tasks, got.Tasks)
}

func TestEncode_DanglingPlanReference(t *testing.T) {
	snap := sampleSnapshot()
	flow := snap.Flows["flow-aaaa1111"]
	flow.PlanOrder = append(flow.PlanOrder, "plan-missing")

	_, err := Encode(snap)
	require.ErrorContains(t, err, "missing plan")
}

func TestDecode_NewerVersionRejected(t *testing.T) {
	_, _, err := Decode([]byte(`{"version": 3, "flows": {}}`))
	require.ErrorContains(t, err, "newer than supported")
}

func TestDecode_Garbage(t *testing.T) {
	_, _, err := Decode([]byte(`{"version": 2, "flows": [1,2`))
	require.Error(t, err)
}

func TestDecode_DanglingTaskOrder(t *testing.T) {
	doc := `{
  "version": 2,
  "revision": 1,
  "flows": {
    "flow-a": {
      "name": "f",
      "plan_order": ["plan-a"],
      "plans": {"plan-a": {"name": "p", "task_order": ["task-ghost"]}},
      "tasks": {}
    }
  }
}`
	_, _, err := Decode([]byte(doc))
	require.ErrorContains(t, err, "missing task")
}

func TestDecode_DanglingCurrentFlowCleared(t *testing.T) {
	doc := `{
  "version": 2,
  "revision": 1,
  "current_flow_id": "flow-gone",
  "flows": {}
}`
	snap, migrated, err := Decode([]byte(doc))
	require.NoError(t, err)
	require.False(t, migrated)
	require.Nil(t, snap.CurrentFlow)
}

func TestDecode_DuplicateIDsRejected(t *testing.T) {
	// Two flows claiming plan-a (and its task) can only come from a
	// hand-edited file; it must not load with one silently winning.
	doc := `{
  "version": 2,
  "revision": 1,
  "flows": {
    "flow-a": {
      "name": "f1",
      "plan_order": ["plan-a"],
      "plans": {"plan-a": {"name": "p", "task_order": []}},
      "tasks": {}
    },
    "flow-b": {
      "name": "f2",
      "plan_order": ["plan-a"],
      "plans": {"plan-a": {"name": "p", "task_order": []}},
      "tasks": {}
    }
  }
}`
	_, _, err := Decode([]byte(doc))
	require.ErrorIs(t, err, domain.ErrDuplicateID)

	doc = `{
  "version": 2,
  "revision": 1,
  "flows": {
    "flow-a": {
      "name": "f",
      "plan_order": ["plan-a"],
      "plans": {"plan-a": {"name": "p", "task_order": ["task-a", "task-a"]}},
      "tasks": {"task-a": {"plan_id": "plan-a", "title": "t", "status": "PENDING"}}
    }
  }
}`
	_, _, err = Decode([]byte(doc))
	require.ErrorIs(t, err, domain.ErrDuplicateID)
}

func TestDecode_InvalidStatusRejected(t *testing.T) {
	doc := `{
  "version": 2,
  "revision": 1,
  "flows": {
    "flow-a": {
      "name": "f",
      "plan_order": ["plan-a"],
      "plans": {"plan-a": {"name": "p", "task_order": ["task-a"]}},
      "tasks": {"task-a": {"plan_id": "plan-a", "title": "t", "status": "halfway"}}
    }
  }
}`
	_, _, err := Decode([]byte(doc))
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

// Round-trip holds for arbitrary well-formed snapshots, not just the sample.
func TestEncodeDecode_RoundTripProperty(t *testing.T) {
	rapid.Check(t, func(r *rapid.T) {
		snap := NewSnapshot()
		snap.Revision = rapid.Int64Range(0, 1<<40).Draw(r, "revision")

		numFlows := rapid.IntRange(0, 3).Draw(r, "numFlows")
		for f := 0; f < numFlows; f++ {
			flowID := domain.FlowID(fmt.Sprintf("flow-%08d", f))
			flow := &domain.Flow{
				ID:   flowID,
				Name: rapid.StringMatching(`[a-z ]{1,12}`).Draw(r, "flowName"),
			}
			numPlans := rapid.IntRange(0, 3).Draw(r, "numPlans")
			for p := 0; p < numPlans; p++ {
				planID := domain.PlanID(fmt.Sprintf("plan-%d-%08d", f, p))
				plan := &domain.Plan{
					ID: planID, FlowID: flowID,
					Name:      rapid.StringMatching(`[a-z ]{1,12}`).Draw(r, "planName"),
					Completed: rapid.Bool().Draw(r, "completed"),
				}
				numTasks := rapid.IntRange(0, 4).Draw(r, "numTasks")
				for k := 0; k < numTasks; k++ {
					taskID := domain.TaskID(fmt.Sprintf("task-%d-%d-%08d", f, p, k))
					task := &domain.Task{
						ID: taskID, PlanID: planID,
						Title:  rapid.StringMatching(`[a-z ]{1,12}`).Draw(r, "title"),
						Status: rapid.SampledFrom(domain.AllStatuses()).Draw(r, "status"),
					}
					// Depend on an earlier task in the same plan, sometimes.
					if k > 0 && rapid.Bool().Draw(r, "hasDep") {
						dep := domain.TaskID(fmt.Sprintf("task-%d-%d-%08d", f, p, k-1))
						task.DependsOn = []domain.TaskID{dep}
					}
					plan.TaskOrder = append(plan.TaskOrder, taskID)
					snap.Tasks[taskID] = task
				}
				flow.PlanOrder = append(flow.PlanOrder, planID)
				snap.Plans[planID] = plan
			}
			snap.Flows[flowID] = flow
		}

		data, err := Encode(snap)
		if err != nil {
			r.Fatalf("encode: %v", err)
		}
		got, migrated, err := Decode(data)
		if err != nil {
			r.Fatalf("decode: %v", err)
		}
		if migrated {
			r.Fatalf("current-version document reported as migrated")
		}
		require.Equal(r, snap.Flows, got.Flows)
		require.Equal(r, snap.Plans, got.Plans)
		require.Equal(r, snap.Tasks, got.Tasks)
		require.Equal(r, snap.Revision, got.Revision)
	})
}
