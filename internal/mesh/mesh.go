// Package mesh loads declarative task mesh definitions from HCL files
// and translates them into registry entries.
//
// A mesh file declares an ordered set of phases, the tasks belonging to
// them, and optional run settings:
//
//	settings {
//	  max_parallel      = 4
//	  cancel_on_failure = false
//	}
//
//	phase "foundation" {}
//	phase "core" {}
//
//	task "print" "announce" {
//	  phase      = "foundation"
//	  depends_on = ["fetch_config"]
//	  params {
//	    message = "hello"
//	  }
//	}
//
// The first task label is the handler kind, the second the unique task
// name (its id). Phase blocks declare execution order by their position.
package mesh

import (
	"fmt"

	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

// Settings holds run-level configuration parsed from the mesh.
type Settings struct {
	// MaxParallel is zero when the mesh does not set it; the engine
	// applies its own default in that case.
	MaxParallel     int
	CancelOnFailure bool
}

// Mesh is the parsed, format-agnostic model of one task mesh.
type Mesh struct {
	Settings Settings
	Phases   []string
	Tasks    []*task.Task
}

// Apply registers the mesh's phases and tasks into a registry. Handler
// kinds must already be registered; unknown kinds fail here, once, at
// registration time.
func (m *Mesh) Apply(reg *registry.Registry) error {
	if err := reg.SetPhases(m.Phases); err != nil {
		return err
	}
	for _, t := range m.Tasks {
		if err := reg.AddTask(t); err != nil {
			return fmt.Errorf("registering task '%s': %w", t.ID, err)
		}
	}
	return reg.Validate()
}
