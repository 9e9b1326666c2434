package registry

import "fmt"

// DuplicateTaskError is returned when a task id is registered twice.
type DuplicateTaskError struct {
	ID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task '%s' already registered", e.ID)
}

// UnknownDependencyError is returned by Validate when a task depends on
// an id that is not present in the registry.
type UnknownDependencyError struct {
	TaskID       string
	DependencyID string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("task '%s' depends on unknown task '%s'", e.TaskID, e.DependencyID)
}

// UnknownKindError is returned when a task names a handler kind with no
// registered handler.
type UnknownKindError struct {
	TaskID string
	Kind   string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("task '%s' uses unregistered handler kind '%s'", e.TaskID, e.Kind)
}
