package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/registry"
)

// Builder accumulates entities keyed by their (test-unique) names and
// creates them in declaration order, so dependencies and status transitions
// can refer to earlier entries.
type Builder struct {
	t     *testing.T
	reg   *registry.Registry
	flows []flowData
	plans []planData
	tasks []taskData
}

type flowData struct {
	name     string
	selected bool
}

type planData struct {
	flowName string
	name     string
	plan     planConfig
}

type taskData struct {
	planName string
	title    string
	task     taskConfig
}

// Fixture maps the builder's names back to the generated IDs.
type Fixture struct {
	Flows map[string]domain.FlowID
	Plans map[string]domain.PlanID
	Tasks map[string]domain.TaskID
}

// NewBuilder creates a builder for the given registry.
func NewBuilder(t *testing.T, reg *registry.Registry) *Builder {
	t.Helper()
	return &Builder{t: t, reg: reg}
}

// WithFlow adds a flow.
func (b *Builder) WithFlow(name string, opts ...FlowOption) *Builder {
	f := flowData{name: name}
	for _, opt := range opts {
		opt(&f)
	}
	b.flows = append(b.flows, f)
	return b
}

// WithPlan adds a plan under the named flow.
func (b *Builder) WithPlan(flowName, name string, opts ...PlanOption) *Builder {
	p := planData{flowName: flowName, name: name}
	for _, opt := range opts {
		opt(&p.plan)
	}
	b.plans = append(b.plans, p)
	return b
}

// WithTask adds a task under the named plan. Dependencies name earlier
// tasks by title.
func (b *Builder) WithTask(planName, title string, opts ...TaskOption) *Builder {
	td := taskData{planName: planName, title: title, task: taskConfig{status: domain.StatusPending}}
	for _, opt := range opts {
		opt(&td.task)
	}
	b.tasks = append(b.tasks, td)
	return b
}

// Build creates everything in order: flows, then plans, then tasks, then
// status transitions. Any registry error fails the test.
func (b *Builder) Build() *Fixture {
	b.t.Helper()
	fx := &Fixture{
		Flows: make(map[string]domain.FlowID),
		Plans: make(map[string]domain.PlanID),
		Tasks: make(map[string]domain.TaskID),
	}

	for _, f := range b.flows {
		flow, err := b.reg.CreateFlow(f.name)
		require.NoError(b.t, err)
		fx.Flows[f.name] = flow.ID
		if f.selected {
			require.NoError(b.t, b.reg.SelectFlow(flow.ID))
		}
	}
	for _, p := range b.plans {
		flowID, ok := fx.Flows[p.flowName]
		require.True(b.t, ok, "plan %q references unknown flow %q", p.name, p.flowName)
		plan, err := b.reg.CreatePlan(flowID, p.name, p.plan.description)
		require.NoError(b.t, err)
		fx.Plans[p.name] = plan.ID
		if p.plan.completed {
			_, err := b.reg.CompletePlan(plan.ID)
			require.NoError(b.t, err)
		}
	}
	for _, td := range b.tasks {
		planID, ok := fx.Plans[td.planName]
		require.True(b.t, ok, "task %q references unknown plan %q", td.title, td.planName)
		deps := make([]domain.TaskID, 0, len(td.task.dependsOn))
		for _, depTitle := range td.task.dependsOn {
			depID, ok := fx.Tasks[depTitle]
			require.True(b.t, ok, "task %q depends on unknown task %q", td.title, depTitle)
			deps = append(deps, depID)
		}
		task, err := b.reg.AddTask(planID, td.title, td.task.description, deps)
		require.NoError(b.t, err)
		fx.Tasks[td.title] = task.ID
		if td.task.metadata != nil {
			_, err := b.reg.UpdateTask(task.ID, registry.TaskUpdate{Metadata: td.task.metadata})
			require.NoError(b.t, err)
		}
		b.driveStatus(task.ID, td.task.status)
	}
	return fx
}

// driveStatus walks the task from PENDING to the target status along the
// shortest allowed path.
func (b *Builder) driveStatus(id domain.TaskID, target domain.Status) {
	b.t.Helper()
	var path []domain.Status
	switch target {
	case domain.StatusPending:
		return
	case domain.StatusActive:
		path = []domain.Status{domain.StatusActive}
	case domain.StatusInReview:
		path = []domain.Status{domain.StatusActive, domain.StatusInReview}
	case domain.StatusDone:
		path = []domain.Status{domain.StatusActive, domain.StatusDone}
	case domain.StatusBlocked:
		path = []domain.Status{domain.StatusActive, domain.StatusBlocked}
	case domain.StatusCancelled:
		path = []domain.Status{domain.StatusCancelled}
	default:
		b.t.Fatalf("unknown target status %q", target)
	}
	for _, s := range path {
		_, err := b.reg.SetTaskStatus(id, s)
		require.NoError(b.t, err)
	}
}
