package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors form the error taxonomy of the store. Typed errors below
// wrap these so callers can match with errors.Is while still extracting IDs.
var (
	// ErrNotFound is returned when an identifier does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateID is returned when a persisted document assigns one
	// identifier to more than one entity.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrInvalidStatus is returned for a status string outside the closed enum.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrIllegalTransition is returned for an edge absent from the transition table.
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrDependencyNotDone is returned when a task tries to leave PENDING
	// while a dependency has not reached DONE.
	ErrDependencyNotDone = errors.New("dependency not satisfied")

	// ErrDependencyCycle is returned when adding a dependency would create a cycle.
	ErrDependencyCycle = errors.New("dependency cycle")

	// ErrCorruptStore is returned (as a warning) when the persisted file
	// could not be parsed and was quarantined.
	ErrCorruptStore = errors.New("corrupt store file")

	// ErrLockTimeout is returned when the inter-process lock could not be
	// acquired within the configured timeout.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// NotFoundError reports a lookup miss for a specific entity.
type NotFoundError struct {
	Kind string // "flow", "plan", "task"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// TransitionError names the illegal edge that was requested.
type TransitionError struct {
	TaskID TaskID
	From   Status
	To     Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s: illegal transition %s -> %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// DependencyError names the dependency blocking a task from leaving PENDING.
type DependencyError struct {
	TaskID  TaskID
	Blocker TaskID
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("task %s: dependency %s is not DONE", e.TaskID, e.Blocker)
}

func (e *DependencyError) Unwrap() error { return ErrDependencyNotDone }

// LockTimeoutError reports how long acquisition waited before giving up.
type LockTimeoutError struct {
	Path    string
	Timeout string
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("could not acquire %s within %s", e.Path, e.Timeout)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// CorruptStoreError reports a quarantined store file. It is surfaced as a
// warning; the store recovers by starting empty.
type CorruptStoreError struct {
	Path           string
	QuarantinePath string
	Cause          error
}

func (e *CorruptStoreError) Error() string {
	return fmt.Sprintf("store file %s is unreadable (moved to %s): %v",
		e.Path, e.QuarantinePath, e.Cause)
}

func (e *CorruptStoreError) Unwrap() error { return ErrCorruptStore }
