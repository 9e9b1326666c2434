// Package delay provides the 'delay' handler kind: it sleeps for the
// configured duration, respecting context cancellation. Useful as a
// placeholder workload and in mesh smoke tests.
package delay

import (
	"context"
	"time"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// defaultDuration applies when the mesh does not set a 'duration' param.
const defaultDuration = 100 * time.Millisecond

// Run is the handler for the 'delay' kind.
func Run(ctx context.Context, inv *task.Invocation) (any, error) {
	d := inv.DurationParam("duration", defaultDuration)
	ctxlog.FromContext(ctx).Debug("Delaying.", "task_id", inv.TaskID, "duration", d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return map[string]any{"slept": d.String()}, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("delay", Run)
}
