// Package print provides the 'print' handler kind: it writes the task's
// params to stdout, mostly useful for smoke-testing a mesh.
package print

import (
	"context"
	"fmt"
	"sort"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'print' kind.
func Run(ctx context.Context, inv *task.Invocation) (any, error) {
	ctxlog.FromContext(ctx).Info("Printing params", "task_id", inv.TaskID)

	if len(inv.Params) == 0 {
		fmt.Println("      (no params)")
		return nil, nil
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(inv.Params))
	for k := range inv.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("      %s = %v\n", k, inv.Params[k])
	}

	return nil, nil
}

// Register registers the handler with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterHandler("print", Run)
}
