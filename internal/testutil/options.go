package testutil

import "github.com/zjrosen/flowstate/internal/domain"

// FlowOption configures a flow added via WithFlow.
type FlowOption func(*flowData)

// Selected marks the flow as the current one after creation.
func Selected() FlowOption {
	return func(f *flowData) { f.selected = true }
}

type planConfig struct {
	description string
	completed   bool
}

// PlanOption configures a plan added via WithPlan.
type PlanOption func(*planConfig)

// PlanDescription sets the plan description.
func PlanDescription(d string) PlanOption {
	return func(p *planConfig) { p.description = d }
}

// PlanCompleted marks the plan completed after creation.
func PlanCompleted() PlanOption {
	return func(p *planConfig) { p.completed = true }
}

type taskConfig struct {
	description string
	status      domain.Status
	dependsOn   []string
	metadata    map[string]string
}

// TaskOption configures a task added via WithTask.
type TaskOption func(*taskConfig)

// TaskDescription sets the task description.
func TaskDescription(d string) TaskOption {
	return func(t *taskConfig) { t.description = d }
}

// TaskStatus drives the task to the given status after creation. The
// builder walks the state machine, so dependencies must already be DONE for
// anything past PENDING (except CANCELLED).
func TaskStatus(s domain.Status) TaskOption {
	return func(t *taskConfig) { t.status = s }
}

// TaskDependsOn declares dependencies by the titles of earlier tasks.
func TaskDependsOn(titles ...string) TaskOption {
	return func(t *taskConfig) { t.dependsOn = append(t.dependsOn, titles...) }
}

// TaskMetadata sets the task's metadata map.
func TaskMetadata(md map[string]string) TaskOption {
	return func(t *taskConfig) { t.metadata = md }
}
