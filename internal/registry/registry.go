// Package registry provides the central "glue" between declared tasks
// and the compiled Go handlers that execute them.
//
// The Registry stores two things: the mapping from handler kind names
// used in mesh manifests (e.g. "http_check") to Go functions, and the
// set of registered tasks in insertion order. Insertion order is the
// tie-break used by resolution and dispatch, so the registry preserves
// it explicitly rather than relying on map iteration.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/vk/taskmesh/internal/task"
)

// Module is the interface built-in handler packages implement to be
// plugged into a registry at startup.
type Module interface {
	Register(r *Registry)
}

// Registry holds the handler kind table, the declared phase sequence,
// and all registered tasks for a single scheduling run.
type Registry struct {
	handlers map[string]task.Handler
	tasks    map[string]*task.Task
	order    []string
	phases   []string
}

// New creates and initializes a new, empty Registry instance.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]task.Handler),
		tasks:    make(map[string]*task.Task),
	}
}

// RegisterHandler binds a handler kind name to its Go function. Handler
// registration happens at startup from compiled-in modules, so a
// duplicate name is a programming error and panics.
func (r *Registry) RegisterHandler(kind string, h task.Handler) {
	if h == nil {
		panic(fmt.Sprintf("nil handler registered for kind '%s'", kind))
	}
	if _, exists := r.handlers[kind]; exists {
		panic(fmt.Sprintf("handler with kind '%s' already registered", kind))
	}
	slog.Debug("Registering task handler.", "kind", kind)
	r.handlers[kind] = h
}

// Handler returns the handler registered for a kind, if any.
func (r *Registry) Handler(kind string) (task.Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// SetPhases declares the ordered phase sequence for the mesh. Phases
// execute strictly in this order.
func (r *Registry) SetPhases(names []string) error {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("phase '%s' declared more than once", name)
		}
		seen[name] = struct{}{}
	}
	r.phases = append([]string(nil), names...)
	return nil
}

// Phases returns the declared phase sequence.
func (r *Registry) Phases() []string {
	return append([]string(nil), r.phases...)
}

// AddTask registers a task. The task's handler kind is resolved against
// the handler table once, here, rather than per invocation. Dependencies
// may reference tasks registered later; they are checked by Validate
// before resolution runs.
func (r *Registry) AddTask(t *task.Task) error {
	if t.ID == "" {
		return fmt.Errorf("task with empty id")
	}
	if _, exists := r.tasks[t.ID]; exists {
		return &DuplicateTaskError{ID: t.ID}
	}
	if t.Handler == nil {
		h, ok := r.handlers[t.Kind]
		if !ok {
			return &UnknownKindError{TaskID: t.ID, Kind: t.Kind}
		}
		t.Handler = h
	}
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	slog.Debug("Registered task.", "id", t.ID, "kind", t.Kind, "phase", t.Phase)
	return nil
}

// Task returns the registered task with the given id, if any.
func (r *Registry) Task(id string) (*task.Task, bool) {
	t, ok := r.tasks[id]
	return t, ok
}

// Tasks returns all registered tasks in insertion order.
func (r *Registry) Tasks() []*task.Task {
	out := make([]*task.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// Len returns the number of registered tasks.
func (r *Registry) Len() int {
	return len(r.order)
}

// Validate checks structural integrity before resolution: every
// dependency must reference a registered task and every task must belong
// to a declared phase. The mesh must not be run if Validate fails.
func (r *Registry) Validate() error {
	declared := make(map[string]struct{}, len(r.phases))
	for _, p := range r.phases {
		declared[p] = struct{}{}
	}
	for _, id := range r.order {
		t := r.tasks[id]
		if _, ok := declared[t.Phase]; !ok {
			return fmt.Errorf("task '%s' references undeclared phase '%s'", t.ID, t.Phase)
		}
		for _, dep := range t.DependsOn {
			if _, ok := r.tasks[dep]; !ok {
				return &UnknownDependencyError{TaskID: t.ID, DependencyID: dep}
			}
		}
	}
	return nil
}
