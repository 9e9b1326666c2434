package event

import (
	"context"

	"github.com/vk/taskmesh/internal/ctxlog"
)

// Nop is a Notifier that discards all events.
type Nop struct{}

func (Nop) Notify(context.Context, Event) {}

// Log emits each lifecycle event as a structured log line through the
// context logger.
type Log struct{}

func (Log) Notify(ctx context.Context, ev Event) {
	logger := ctxlog.FromContext(ctx).With(
		"run_id", ev.RunID, "task_id", ev.TaskID, "phase", ev.Phase)
	switch ev.Kind {
	case TaskStarted:
		logger.Info("▶️ Task started", "name", ev.Name)
	case TaskCompleted:
		logger.Info("✅ Task completed", "name", ev.Name, "duration", ev.Duration)
	case TaskFailed:
		logger.Error("✗ Task failed", "name", ev.Name, "duration", ev.Duration, "error", ev.Err)
	}
}

// Multi fans one event out to several notifiers in order. Each delivery
// is panic-isolated, so one broken sink cannot starve the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		Emit(ctx, n, ev)
	}
}
