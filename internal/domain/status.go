package domain

import (
	"fmt"
	"strings"
)

// Status is the closed set of task states. The transition table below is the
// single source of truth for which edges exist; helpers never guess a
// "close enough" state for an unknown input.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusInReview  Status = "IN_REVIEW"
	StatusDone      Status = "DONE"
	StatusBlocked   Status = "BLOCKED"
	StatusCancelled Status = "CANCELLED"
)

// allowedTransitions enumerates, per current status, the statuses reachable
// in one step. DONE and CANCELLED are terminal.
var allowedTransitions = map[Status]map[Status]struct{}{
	StatusPending: {
		StatusActive:    {},
		StatusCancelled: {},
	},
	StatusActive: {
		StatusInReview:  {},
		StatusDone:      {},
		StatusBlocked:   {},
		StatusCancelled: {},
	},
	StatusInReview: {
		StatusActive:    {},
		StatusDone:      {},
		StatusCancelled: {},
	},
	StatusBlocked: {
		StatusActive:    {},
		StatusCancelled: {},
	},
	StatusDone:      {},
	StatusCancelled: {},
}

// AllStatuses lists every valid status, in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusPending, StatusActive, StatusInReview,
		StatusDone, StatusBlocked, StatusCancelled,
	}
}

// ParseStatus validates a raw status string. Case does not matter.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(s))
	if _, ok := allowedTransitions[status]; !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// IsTerminal reports whether no transitions leave this status.
func (s Status) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// CanTransition reports whether the edge from -> to exists in the table.
func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// ValidateTransition checks the edge from -> to. Leaving PENDING additionally
// requires every dependency to be DONE; depsDone answers whether a given
// dependency has reached DONE. Returns *TransitionError for an illegal edge
// and *DependencyError for an unsatisfied dependency set, so callers can tell
// the two failures apart.
func ValidateTransition(task *Task, to Status, depStatus func(TaskID) (Status, bool)) error {
	if !CanTransition(task.Status, to) {
		return &TransitionError{TaskID: task.ID, From: task.Status, To: to}
	}
	if task.Status == StatusPending && to != StatusCancelled {
		for _, dep := range task.DependsOn {
			status, ok := depStatus(dep)
			if !ok || status != StatusDone {
				return &DependencyError{TaskID: task.ID, Blocker: dep}
			}
		}
	}
	return nil
}
