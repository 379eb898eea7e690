package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"PENDING", StatusPending, false},
		{"pending", StatusPending, false},
		{"Active", StatusActive, false},
		{"IN_REVIEW", StatusInReview, false},
		{"done", StatusDone, false},
		{"BLOCKED", StatusBlocked, false},
		{"cancelled", StatusCancelled, false},
		{"open", "", true},
		{"", "", true},
		{"DONEISH", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidStatus)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusActive, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusDone, false},
		{StatusPending, StatusInReview, false},
		{StatusActive, StatusInReview, true},
		{StatusActive, StatusDone, true},
		{StatusActive, StatusBlocked, true},
		{StatusActive, StatusCancelled, true},
		{StatusActive, StatusPending, false},
		{StatusInReview, StatusActive, true},
		{StatusInReview, StatusDone, true},
		{StatusInReview, StatusBlocked, false},
		{StatusBlocked, StatusActive, true},
		{StatusBlocked, StatusDone, false},
		{StatusDone, StatusActive, false},
		{StatusCancelled, StatusPending, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			require.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, from := range AllStatuses() {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range AllStatuses() {
			require.False(t, CanTransition(from, to), "%s -> %s should be rejected", from, to)
		}
	}
}

func TestValidateTransition_DependencyGate(t *testing.T) {
	depStatus := map[TaskID]Status{
		"task-aaa": StatusDone,
		"task-bbb": StatusActive,
	}
	lookup := func(id TaskID) (Status, bool) {
		s, ok := depStatus[id]
		return s, ok
	}

	t.Run("all deps done", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusPending, DependsOn: []TaskID{"task-aaa"}}
		require.NoError(t, ValidateTransition(task, StatusActive, lookup))
	})

	t.Run("unmet dependency blocks leaving pending", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusPending, DependsOn: []TaskID{"task-aaa", "task-bbb"}}
		err := ValidateTransition(task, StatusActive, lookup)
		require.ErrorIs(t, err, ErrDependencyNotDone)

		var depErr *DependencyError
		require.ErrorAs(t, err, &depErr)
		require.Equal(t, TaskID("task-bbb"), depErr.Blocker)
	})

	t.Run("cancel escapes unmet dependencies", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusPending, DependsOn: []TaskID{"task-bbb"}}
		require.NoError(t, ValidateTransition(task, StatusCancelled, lookup))
	})

	t.Run("missing dependency counts as unmet", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusPending, DependsOn: []TaskID{"task-gone"}}
		err := ValidateTransition(task, StatusActive, lookup)
		require.ErrorIs(t, err, ErrDependencyNotDone)
	})

	t.Run("illegal transition reported before dependencies", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusPending, DependsOn: []TaskID{"task-bbb"}}
		err := ValidateTransition(task, StatusDone, lookup)
		require.ErrorIs(t, err, ErrIllegalTransition)
	})

	t.Run("deps not rechecked after pending", func(t *testing.T) {
		task := &Task{ID: "task-x", Status: StatusActive, DependsOn: []TaskID{"task-bbb"}}
		require.NoError(t, ValidateTransition(task, StatusDone, lookup))
	})
}

func TestNewIDs(t *testing.T) {
	require.Regexp(t, `^flow-[0-9a-f]{8}$`, string(NewFlowID()))
	require.Regexp(t, `^plan-[0-9a-f]{8}$`, string(NewPlanID()))
	require.Regexp(t, `^task-[0-9a-f]{8}$`, string(NewTaskID()))
	require.NotEqual(t, NewTaskID(), NewTaskID())
}

func TestTaskClone_Independent(t *testing.T) {
	task := &Task{
		ID:        "task-1",
		Title:     "original",
		DependsOn: []TaskID{"task-2"},
		Metadata:  map[string]string{"k": "v"},
	}
	clone := task.Clone()
	clone.Title = "changed"
	clone.DependsOn[0] = "task-3"
	clone.Metadata["k"] = "changed"

	require.Equal(t, "original", task.Title)
	require.Equal(t, TaskID("task-2"), task.DependsOn[0])
	require.Equal(t, "v", task.Metadata["k"])
}
