package registry

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/flowstate/internal/changelog"
	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/log"
)

// PlanUpdate carries the mutable plan fields. Nil pointers leave the field
// as-is.
type PlanUpdate struct {
	Name        *string
	Description *string
	Completed   *bool
}

// TaskUpdate carries the mutable task fields. Nil pointers leave the field
// as-is; a non-nil DependsOn replaces the whole dependency list.
type TaskUpdate struct {
	Title       *string
	Description *string
	Metadata    map[string]string
	DependsOn   *[]domain.TaskID
}

// --- flows ---

// CreateFlow adds a new flow and returns its snapshot.
func (r *Registry) CreateFlow(name string) (*domain.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var id domain.FlowID
	for {
		id = domain.NewFlowID()
		if _, taken := r.snap.Flows[id]; !taken {
			break
		}
	}
	now := time.Now().UTC()
	flow := &domain.Flow{
		ID:        id,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.snap.Flows[id] = flow
	r.indexName(name, string(id), "flow")
	r.markDirty()

	r.record(changelog.Change{Op: changelog.OpCreate, Kind: "flow", ID: string(id), After: name})
	log.Debug(log.CatRegistry, "flow created", "id", id, "name", name)
	return flow.Clone(), nil
}

// GetFlow returns a snapshot of the flow with the given ID.
func (r *Registry) GetFlow(id domain.FlowID) (*domain.Flow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.cacheGet(string(id)); ok {
		if f, ok := v.(*domain.Flow); ok {
			return f.Clone(), nil
		}
	}
	atomic.AddUint64(&r.mapLookups, 1)
	flow, ok := r.snap.Flows[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "flow", ID: string(id)}
	}
	clone := flow.Clone()
	r.cachePut(string(id), clone)
	return clone.Clone(), nil
}

// ListFlows returns every flow, oldest first.
func (r *Registry) ListFlows() []*domain.Flow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flows := make([]*domain.Flow, 0, len(r.snap.Flows))
	for _, f := range r.snap.Flows {
		flows = append(flows, f.Clone())
	}
	sort.Slice(flows, func(i, j int) bool {
		if !flows[i].CreatedAt.Equal(flows[j].CreatedAt) {
			return flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}
		return flows[i].ID < flows[j].ID
	})
	return flows
}

// UpdateFlowName renames a flow.
func (r *Registry) UpdateFlowName(id domain.FlowID, name string) (*domain.Flow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.snap.Flows[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "flow", ID: string(id)}
	}
	if flow.Name == name {
		return flow.Clone(), nil
	}
	old := flow.Name
	r.unindexName(old, string(id))
	flow.Name = name
	flow.UpdatedAt = time.Now().UTC()
	r.indexName(name, string(id), "flow")
	r.invalidate(string(id))
	r.markDirty()

	r.record(changelog.Change{
		Op: changelog.OpUpdate, Kind: "flow", ID: string(id),
		Before: old, After: name, Detail: changelog.DiffSummary(old, name),
	})
	return flow.Clone(), nil
}

// DeleteFlow removes a flow and cascades to its plans and their tasks.
func (r *Registry) DeleteFlow(id domain.FlowID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.snap.Flows[id]
	if !ok {
		return &domain.NotFoundError{Kind: "flow", ID: string(id)}
	}
	for _, planID := range flow.PlanOrder {
		if plan, ok := r.snap.Plans[planID]; ok {
			r.deletePlanLocked(plan)
		}
	}
	r.unindexName(flow.Name, string(id))
	delete(r.snap.Flows, id)
	r.invalidate(string(id))
	if r.snap.CurrentFlow != nil && *r.snap.CurrentFlow == id {
		r.snap.CurrentFlow = nil
	}
	r.markDirty()

	r.record(changelog.Change{Op: changelog.OpDelete, Kind: "flow", ID: string(id), Before: flow.Name})
	log.Debug(log.CatRegistry, "flow deleted", "id", id, "plans", len(flow.PlanOrder))
	return nil
}

// SelectFlow marks a flow as the current one. The selection is persisted.
func (r *Registry) SelectFlow(id domain.FlowID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snap.Flows[id]; !ok {
		return &domain.NotFoundError{Kind: "flow", ID: string(id)}
	}
	if r.snap.CurrentFlow != nil && *r.snap.CurrentFlow == id {
		return nil
	}
	r.snap.CurrentFlow = &id
	r.markDirty()
	r.record(changelog.Change{Op: changelog.OpSelect, Kind: "flow", ID: string(id)})
	return nil
}

// ClearFlowSelection drops the current-flow marker.
func (r *Registry) ClearFlowSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snap.CurrentFlow == nil {
		return
	}
	r.snap.CurrentFlow = nil
	r.markDirty()
	r.record(changelog.Change{Op: changelog.OpSelect, Kind: "flow", ID: ""})
}

// CurrentFlow returns the selected flow, if any.
func (r *Registry) CurrentFlow() (*domain.Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.snap.CurrentFlow == nil {
		return nil, false
	}
	flow, ok := r.snap.Flows[*r.snap.CurrentFlow]
	if !ok {
		return nil, false
	}
	return flow.Clone(), true
}

// --- plans ---

// CreatePlan adds a plan to the end of a flow's plan order.
func (r *Registry) CreatePlan(flowID domain.FlowID, name, description string) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	flow, ok := r.snap.Flows[flowID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "flow", ID: string(flowID)}
	}
	var id domain.PlanID
	for {
		id = domain.NewPlanID()
		if _, taken := r.snap.Plans[id]; !taken {
			break
		}
	}
	plan := &domain.Plan{
		ID:          id,
		FlowID:      flowID,
		Name:        name,
		Description: description,
	}
	r.snap.Plans[id] = plan
	flow.PlanOrder = append(flow.PlanOrder, id)
	flow.UpdatedAt = time.Now().UTC()
	r.indexName(name, string(id), "plan")
	r.invalidate(string(flowID))
	r.markDirty()

	r.record(changelog.Change{Op: changelog.OpCreate, Kind: "plan", ID: string(id), After: name})
	return plan.Clone(), nil
}

// GetPlan returns a snapshot of the plan with the given ID.
func (r *Registry) GetPlan(id domain.PlanID) (*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.cacheGet(string(id)); ok {
		if p, ok := v.(*domain.Plan); ok {
			return p.Clone(), nil
		}
	}
	atomic.AddUint64(&r.mapLookups, 1)
	plan, ok := r.snap.Plans[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "plan", ID: string(id)}
	}
	clone := plan.Clone()
	r.cachePut(string(id), clone)
	return clone.Clone(), nil
}

// ListPlans returns the flow's plans in their stored order.
func (r *Registry) ListPlans(flowID domain.FlowID) ([]*domain.Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, ok := r.snap.Flows[flowID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "flow", ID: string(flowID)}
	}
	plans := make([]*domain.Plan, 0, len(flow.PlanOrder))
	for _, id := range flow.PlanOrder {
		if plan, ok := r.snap.Plans[id]; ok {
			plans = append(plans, plan.Clone())
		}
	}
	return plans, nil
}

// UpdatePlan applies the non-nil fields of upd to the plan.
func (r *Registry) UpdatePlan(id domain.PlanID, upd PlanUpdate) (*domain.Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, ok := r.snap.Plans[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "plan", ID: string(id)}
	}
	before := summarizePlan(plan)
	if upd.Name != nil && *upd.Name != plan.Name {
		r.unindexName(plan.Name, string(id))
		plan.Name = *upd.Name
		r.indexName(plan.Name, string(id), "plan")
	}
	if upd.Description != nil {
		plan.Description = *upd.Description
	}
	if upd.Completed != nil {
		plan.Completed = *upd.Completed
	}
	after := summarizePlan(plan)
	if before == after {
		return plan.Clone(), nil
	}
	r.touchFlow(plan.FlowID)
	r.invalidate(string(id))
	r.markDirty()

	r.record(changelog.Change{
		Op: changelog.OpUpdate, Kind: "plan", ID: string(id),
		Before: before, After: after, Detail: changelog.DiffSummary(before, after),
	})
	return plan.Clone(), nil
}

// CompletePlan marks a plan completed. The flag is manual; the plan's tasks
// are left untouched.
func (r *Registry) CompletePlan(id domain.PlanID) (*domain.Plan, error) {
	completed := true
	return r.UpdatePlan(id, PlanUpdate{Completed: &completed})
}

// DeletePlan removes a plan and its tasks, and drops it from the parent
// flow's order.
func (r *Registry) DeletePlan(id domain.PlanID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	plan, ok := r.snap.Plans[id]
	if !ok {
		return &domain.NotFoundError{Kind: "plan", ID: string(id)}
	}
	r.deletePlanLocked(plan)
	if flow, ok := r.snap.Flows[plan.FlowID]; ok {
		flow.PlanOrder = removePlanID(flow.PlanOrder, id)
		flow.UpdatedAt = time.Now().UTC()
		r.invalidate(string(flow.ID))
	}
	r.markDirty()

	r.record(changelog.Change{Op: changelog.OpDelete, Kind: "plan", ID: string(id), Before: plan.Name})
	return nil
}

// deletePlanLocked removes a plan and its tasks from the snapshot, index and
// caches. It does not touch the parent flow's PlanOrder.
func (r *Registry) deletePlanLocked(plan *domain.Plan) {
	for _, taskID := range plan.TaskOrder {
		if task, ok := r.snap.Tasks[taskID]; ok {
			r.deleteTaskLocked(task)
		}
	}
	r.unindexName(plan.Name, string(plan.ID))
	delete(r.snap.Plans, plan.ID)
	r.invalidate(string(plan.ID))
}

// --- tasks ---

// AddTask appends a task to a plan. Every dependency must already exist.
func (r *Registry) AddTask(planID domain.PlanID, title, description string, dependsOn []domain.TaskID) (*domain.Task, error) {
	_, span := r.tracer.Start(context.Background(), "registry.add_task")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	plan, ok := r.snap.Plans[planID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "plan", ID: string(planID)}
	}
	for _, dep := range dependsOn {
		if _, ok := r.snap.Tasks[dep]; !ok {
			return nil, &domain.NotFoundError{Kind: "task", ID: string(dep)}
		}
	}
	var id domain.TaskID
	for {
		id = domain.NewTaskID()
		if _, taken := r.snap.Tasks[id]; !taken {
			break
		}
	}
	now := time.Now().UTC()
	task := &domain.Task{
		ID:          id,
		PlanID:      planID,
		Title:       title,
		Description: description,
		Status:      domain.StatusPending,
		DependsOn:   append([]domain.TaskID(nil), dependsOn...),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.snap.Tasks[id] = task
	plan.TaskOrder = append(plan.TaskOrder, id)
	r.indexName(title, string(id), "task")
	r.invalidate(string(planID))
	r.markDirty()

	span.SetAttributes(attribute.String("task.id", string(id)))
	r.record(changelog.Change{Op: changelog.OpCreate, Kind: "task", ID: string(id), After: summarizeTask(task)})
	return task.Clone(), nil
}

// GetTask returns a snapshot of the task with the given ID.
func (r *Registry) GetTask(id domain.TaskID) (*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.cacheGet(string(id)); ok {
		if t, ok := v.(*domain.Task); ok {
			return t.Clone(), nil
		}
	}
	atomic.AddUint64(&r.mapLookups, 1)
	task, ok := r.snap.Tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	clone := task.Clone()
	r.cachePut(string(id), clone)
	return clone.Clone(), nil
}

// ListTasks returns the plan's tasks in their stored order.
func (r *Registry) ListTasks(planID domain.PlanID) ([]*domain.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	plan, ok := r.snap.Plans[planID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "plan", ID: string(planID)}
	}
	tasks := make([]*domain.Task, 0, len(plan.TaskOrder))
	for _, id := range plan.TaskOrder {
		if task, ok := r.snap.Tasks[id]; ok {
			tasks = append(tasks, task.Clone())
		}
	}
	return tasks, nil
}

// SetTaskStatus moves a task through the state machine. Leaving PENDING for
// anything but CANCELLED requires every dependency to be DONE.
func (r *Registry) SetTaskStatus(id domain.TaskID, to domain.Status) (*domain.Task, error) {
	_, span := r.tracer.Start(context.Background(), "registry.set_task_status")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.snap.Tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	err := domain.ValidateTransition(task, to, func(dep domain.TaskID) (domain.Status, bool) {
		t, ok := r.snap.Tasks[dep]
		if !ok {
			return "", false
		}
		return t.Status, true
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	from := task.Status
	task.Status = to
	task.UpdatedAt = time.Now().UTC()
	r.invalidate(string(id))
	r.markDirty()

	span.SetAttributes(
		attribute.String("task.id", string(id)),
		attribute.String("status.from", string(from)),
		attribute.String("status.to", string(to)),
	)
	r.record(changelog.Change{
		Op: changelog.OpStatus, Kind: "task", ID: string(id),
		Before: string(from), After: string(to),
	})
	log.Debug(log.CatRegistry, "task status changed", "id", id, "from", from, "to", to)
	return task.Clone(), nil
}

// UpdateTask applies the non-nil fields of upd to the task. Replacing the
// dependency list re-validates existence and acyclicity.
func (r *Registry) UpdateTask(id domain.TaskID, upd TaskUpdate) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.snap.Tasks[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	if upd.DependsOn != nil {
		for _, dep := range *upd.DependsOn {
			if _, ok := r.snap.Tasks[dep]; !ok {
				return nil, &domain.NotFoundError{Kind: "task", ID: string(dep)}
			}
		}
		if err := r.checkDependencyCycle(id, *upd.DependsOn); err != nil {
			return nil, err
		}
	}
	before := summarizeTask(task)
	if upd.Title != nil && *upd.Title != task.Title {
		r.unindexName(task.Title, string(id))
		task.Title = *upd.Title
		r.indexName(task.Title, string(id), "task")
	}
	if upd.Description != nil {
		task.Description = *upd.Description
	}
	if upd.Metadata != nil {
		task.Metadata = make(map[string]string, len(upd.Metadata))
		for k, v := range upd.Metadata {
			task.Metadata[k] = v
		}
	}
	if upd.DependsOn != nil {
		task.DependsOn = append([]domain.TaskID(nil), *upd.DependsOn...)
	}
	task.UpdatedAt = time.Now().UTC()
	r.invalidate(string(id))
	r.markDirty()

	after := summarizeTask(task)
	r.record(changelog.Change{
		Op: changelog.OpUpdate, Kind: "task", ID: string(id),
		Before: before, After: after, Detail: changelog.DiffSummary(before, after),
	})
	return task.Clone(), nil
}

// DeleteTask removes a task, drops it from the plan's order and strips it
// from any other task's dependency list.
func (r *Registry) DeleteTask(id domain.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.snap.Tasks[id]
	if !ok {
		return &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	r.deleteTaskLocked(task)
	if plan, ok := r.snap.Plans[task.PlanID]; ok {
		plan.TaskOrder = removeTaskID(plan.TaskOrder, id)
		r.invalidate(string(plan.ID))
	}
	r.markDirty()

	r.record(changelog.Change{Op: changelog.OpDelete, Kind: "task", ID: string(id), Before: summarizeTask(task)})
	return nil
}

// deleteTaskLocked removes a task from the snapshot, index, caches, the
// current-task marker and every dependency list. The plan's TaskOrder is the
// caller's job.
func (r *Registry) deleteTaskLocked(task *domain.Task) {
	r.unindexName(task.Title, string(task.ID))
	delete(r.snap.Tasks, task.ID)
	r.invalidate(string(task.ID))
	if r.currentTask != nil && *r.currentTask == task.ID {
		r.currentTask = nil
	}
	for _, other := range r.snap.Tasks {
		if containsTaskID(other.DependsOn, task.ID) {
			other.DependsOn = removeTaskID(other.DependsOn, task.ID)
			r.invalidate(string(other.ID))
		}
	}
}

// SelectTask marks a task as the current one. Unlike the flow selection this
// marker is process-local and never persisted.
func (r *Registry) SelectTask(id domain.TaskID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.snap.Tasks[id]; !ok {
		return &domain.NotFoundError{Kind: "task", ID: string(id)}
	}
	r.currentTask = &id
	r.record(changelog.Change{Op: changelog.OpSelect, Kind: "task", ID: string(id)})
	return nil
}

// ClearTaskSelection drops the current-task marker.
func (r *Registry) ClearTaskSelection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.currentTask = nil
}

// CurrentTask returns the selected task, if any.
func (r *Registry) CurrentTask() (*domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentTask == nil {
		return nil, false
	}
	task, ok := r.snap.Tasks[*r.currentTask]
	if !ok {
		return nil, false
	}
	return task.Clone(), true
}

// checkDependencyCycle walks the proposed dependency edges of taskID and
// fails if any path leads back to it.
func (r *Registry) checkDependencyCycle(taskID domain.TaskID, deps []domain.TaskID) error {
	seen := make(map[domain.TaskID]bool)
	var visit func(id domain.TaskID) error
	visit = func(id domain.TaskID) error {
		if id == taskID {
			return fmt.Errorf("task %s: %w", taskID, domain.ErrDependencyCycle)
		}
		if seen[id] {
			return nil
		}
		seen[id] = true
		if t, ok := r.snap.Tasks[id]; ok {
			for _, next := range t.DependsOn {
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		return nil
	}
	for _, dep := range deps {
		if err := visit(dep); err != nil {
			return err
		}
	}
	return nil
}

// --- helpers ---

func (r *Registry) touchFlow(id domain.FlowID) {
	if flow, ok := r.snap.Flows[id]; ok {
		flow.UpdatedAt = time.Now().UTC()
		r.invalidate(string(id))
	}
}

func (r *Registry) record(change changelog.Change) {
	r.recorder.Record(change)
}

func summarizePlan(p *domain.Plan) string {
	state := "open"
	if p.Completed {
		state = "completed"
	}
	return fmt.Sprintf("%s (%s)", p.Name, state)
}

func summarizeTask(t *domain.Task) string {
	return fmt.Sprintf("%s (%s)", t.Title, t.Status)
}

func removePlanID(ids []domain.PlanID, id domain.PlanID) []domain.PlanID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func removeTaskID(ids []domain.TaskID, id domain.TaskID) []domain.TaskID {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func containsTaskID(ids []domain.TaskID, id domain.TaskID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
