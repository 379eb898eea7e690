// Package changelog records every successful mutation to an append-only log.
// The log is an observability aid, not part of the consistency contract:
// sink failures are logged and never fail the triggering mutation.
package changelog

import (
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Op is the kind of mutation recorded.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpStatus Op = "status"
	OpSelect Op = "select"
)

// Change is one append-only log record: what happened, to which entity, and
// a summarized before/after.
type Change struct {
	Timestamp time.Time `json:"timestamp"`
	Op        Op        `json:"op"`
	Kind      string    `json:"kind"` // "flow", "plan", "task"
	ID        string    `json:"id"`
	Before    string    `json:"before,omitempty"`
	After     string    `json:"after,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Sink receives change records. Implementations must tolerate being called
// from the registry's mutation path, so Append should be quick.
type Sink interface {
	Append(change Change) error
	Close() error
}

// DiffSummary renders a compact single-line diff between two textual
// summaries, e.g. `-"old title" +"new title"`. Equal inputs yield "".
func DiffSummary(before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var b strings.Builder
	for _, d := range diffs {
		text := d.Text
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("-[")
			b.WriteString(text)
			b.WriteString("]")
		case diffmatchpatch.DiffInsert:
			b.WriteString("+[")
			b.WriteString(text)
			b.WriteString("]")
		case diffmatchpatch.DiffEqual:
			b.WriteString(text)
		}
	}
	return b.String()
}
