// Package event defines the lifecycle notification surface of the mesh.
// Delivery is fire-and-forget: notifiers observe task starts and
// outcomes but have no feedback path into scheduling decisions.
package event

import (
	"context"
	"time"

	"github.com/vk/taskmesh/internal/ctxlog"
)

// Kind identifies a lifecycle event.
type Kind string

const (
	TaskStarted   Kind = "task.started"
	TaskCompleted Kind = "task.completed"
	TaskFailed    Kind = "task.failed"
)

// Event carries the details of one task lifecycle transition.
type Event struct {
	Kind   Kind
	RunID  string
	TaskID string
	Name   string
	Phase  string
	At     time.Time

	// Duration and outcome payloads are set for completion and failure
	// events only.
	Duration time.Duration
	Result   any
	Err      string
}

// Notifier receives lifecycle events. Implementations must not block
// indefinitely; any error handling is the notifier's own concern.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// Emit delivers an event to a notifier, isolating the run from notifier
// panics. A nil notifier is a no-op.
func Emit(ctx context.Context, n Notifier, ev Event) {
	if n == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Warn("Notifier panicked; event dropped.",
				"kind", ev.Kind, "task_id", ev.TaskID, "panic", r)
		}
	}()
	n.Notify(ctx, ev)
}
