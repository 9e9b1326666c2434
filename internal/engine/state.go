package engine

import (
	"time"

	"github.com/vk/taskmesh/internal/resolver"
	"github.com/vk/taskmesh/internal/task"
)

// meshState is the single mutable container for one scheduling run. It
// is created at run start, written only through the engine's recording
// methods, and retained read-only once the run ends.
type meshState struct {
	runID string
	tasks map[string]*task.Task
	order []string

	running   map[string]struct{}
	completed map[string]struct{}
	failed    map[string]struct{}
	blocked   map[string]struct{}

	plan       *resolver.Plan
	startedAt  time.Time
	finishedAt time.Time
}

func newMeshState(runID string, tasks []*task.Task, plan *resolver.Plan) *meshState {
	s := &meshState{
		runID:     runID,
		tasks:     make(map[string]*task.Task, len(tasks)),
		order:     make([]string, 0, len(tasks)),
		running:   make(map[string]struct{}),
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		blocked:   make(map[string]struct{}),
		plan:      plan,
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.order = append(s.order, t.ID)
	}
	return s
}

// TaskView is a read-only, point-in-time view of one task's status.
type TaskView struct {
	ID       string
	Name     string
	Kind     string
	Phase    string
	Status   task.Status
	Err      string
	Duration time.Duration
}

// PhaseProgress tallies task statuses within one phase.
type PhaseProgress struct {
	Total     int
	Completed int
	Failed    int
	Blocked   int
	Running   int
	Pending   int
}

// Snapshot is a read-only, point-in-time view of the whole mesh, usable
// mid-run for observability.
type Snapshot struct {
	RunID     string
	StartedAt time.Time
	Tasks     []TaskView
	Phases    map[string]PhaseProgress
	Completed int
	Failed    int
	Blocked   int
	Running   int
	Pending   int
}
