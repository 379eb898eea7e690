// Package domain defines the entities tracked by flowstate: flows, plans,
// tasks, and the task status state machine. Entities returned to callers are
// snapshots; all mutation happens through registry operations.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// FlowID identifies a top-level flow.
type FlowID string

// PlanID identifies a plan within a flow.
type PlanID string

// TaskID identifies a task within a plan.
type TaskID string

// Flow is the top-level container of tracked work. PlanOrder preserves the
// order plans were created in (or reordered to); it is the only ordering
// source of truth.
type Flow struct {
	ID        FlowID    `json:"id"`
	Name      string    `json:"name"`
	PlanOrder []PlanID  `json:"plan_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Plan is an ordered group of tasks inside a flow. Completed is a manual
// flag, independent of the status of the plan's tasks.
type Plan struct {
	ID          PlanID   `json:"id"`
	FlowID      FlowID   `json:"flow_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Completed   bool     `json:"completed"`
	TaskOrder   []TaskID `json:"task_order"`
}

// Task is the smallest unit of tracked work.
type Task struct {
	ID          TaskID            `json:"id"`
	PlanID      PlanID            `json:"plan_id"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	DependsOn   []TaskID          `json:"depends_on,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewFlowID generates a new flow identifier.
func NewFlowID() FlowID { return FlowID("flow-" + shortUUID()) }

// NewPlanID generates a new plan identifier.
func NewPlanID() PlanID { return PlanID("plan-" + shortUUID()) }

// NewTaskID generates a new task identifier.
func NewTaskID() TaskID { return TaskID("task-" + shortUUID()) }

// shortUUID returns the first segment of a v4 UUID. Eight hex characters is
// plenty for a single store; collisions are rejected at create time anyway.
func shortUUID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := *f
	out.PlanOrder = append([]PlanID(nil), f.PlanOrder...)
	return &out
}

// Clone returns a deep copy of the plan.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	out := *p
	out.TaskOrder = append([]TaskID(nil), p.TaskOrder...)
	return &out
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	out := *t
	out.DependsOn = append([]TaskID(nil), t.DependsOn...)
	if t.Metadata != nil {
		out.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}
