// Package task defines the unit of work scheduled by the mesh: its
// identity, dependency edges, handler binding, and lifecycle status.
package task

import (
	"context"
	"sync/atomic"
	"time"
)

// Status is the lifecycle state of a task.
//
// Valid transitions are Pending -> Assigned -> Running -> Completed or
// Failed, plus Pending -> Blocked. Every transition is one-way; a task
// never re-enters Pending.
type Status int32

const (
	// Pending is the initial state of every registered task.
	Pending Status = iota
	// Assigned marks a task handed to the dispatcher but not yet running.
	// It exists to prevent double-dispatch within a wave.
	Assigned
	// Running means the task's handler invocation is in flight.
	Running
	// Completed means the handler returned normally.
	Completed
	// Failed means the handler returned an error or panicked.
	Failed
	// Blocked means a direct or transitive dependency failed; the task
	// was never attempted. Reachable only from Pending.
	Blocked
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case Assigned:
		return "assigned"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is an end state for a run.
func (s Status) Terminal() bool {
	return s == Completed || s == Failed || s == Blocked
}

// Invocation carries everything a handler may consult about the task it
// is executing. Upstream exposes the recorded results of completed
// dependencies; by the time a handler runs, all of its dependencies have
// reached Completed.
type Invocation struct {
	TaskID   string
	Name     string
	Phase    string
	Params   map[string]any
	Upstream func(id string) (any, bool)
}

// Handler performs the actual work of a task kind. The returned value is
// recorded as the task's result; a non-nil error marks the task Failed.
// Errors never escape the invocation boundary.
type Handler func(ctx context.Context, inv *Invocation) (any, error)

// Task is a single named unit of work with dependency edges. Identity
// fields are immutable once registered; run state is written exclusively
// by the execution engine.
type Task struct {
	ID        string
	Name      string
	Kind      string
	Phase     string
	DependsOn []string
	Params    map[string]any

	// Handler is bound from the kind table at registration time.
	Handler Handler

	// status is managed atomically so snapshots may observe it while a
	// run is in flight.
	status atomic.Int32

	// Result and Failure are mutually exclusive outcome payloads, each
	// written exactly once on the terminal transition.
	Result  any
	Failure error

	StartedAt   time.Time
	CompletedAt time.Time
}

// Status atomically reads the task's current lifecycle state.
func (t *Task) Status() Status {
	return Status(t.status.Load())
}

// SetStatus atomically stores the task's lifecycle state.
func (t *Task) SetStatus(s Status) {
	t.status.Store(int32(s))
}

// Duration returns the wall-clock time between start and completion, or
// zero if the task never ran to a terminal state.
func (t *Task) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.CompletedAt.IsZero() {
		return 0
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
