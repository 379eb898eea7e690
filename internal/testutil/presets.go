package testutil

import (
	"testing"

	"github.com/zjrosen/flowstate/internal/domain"
	"github.com/zjrosen/flowstate/internal/registry"
)

// SimpleFixture seeds one flow ("main") with one plan ("setup") holding
// three pending tasks ("one", "two", "three").
func SimpleFixture(t *testing.T, reg *registry.Registry) *Fixture {
	t.Helper()
	return NewBuilder(t, reg).
		WithFlow("main", Selected()).
		WithPlan("main", "setup").
		WithTask("setup", "one").
		WithTask("setup", "two").
		WithTask("setup", "three").
		Build()
}

// PipelineFixture seeds a flow with a dependency chain: "build" is DONE,
// "test" depends on it and is ACTIVE, "ship" depends on "test" and is still
// PENDING.
func PipelineFixture(t *testing.T, reg *registry.Registry) *Fixture {
	t.Helper()
	return NewBuilder(t, reg).
		WithFlow("pipeline").
		WithPlan("pipeline", "release").
		WithTask("release", "build", TaskStatus(domain.StatusDone)).
		WithTask("release", "test", TaskDependsOn("build"), TaskStatus(domain.StatusActive)).
		WithTask("release", "ship", TaskDependsOn("test")).
		Build()
}
