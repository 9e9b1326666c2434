// Package engine drives the task lifecycle state machine: it resolves
// the registered mesh into waves, dispatches each wave under a bounded
// concurrency ceiling, records outcomes, and computes blocking cascades
// after failures.
//
// The engine is the only component that writes task state. Workers
// invoke handlers concurrently, but every mutation funnels through the
// engine's recording methods under a single mutex, so result recording
// never races.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/event"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/report"
	"github.com/vk/taskmesh/internal/resolver"
	"github.com/vk/taskmesh/internal/task"
)

// DefaultMaxParallel is the concurrency ceiling used when none is
// configured.
const DefaultMaxParallel = 4

// Options configures an Engine.
type Options struct {
	// MaxParallel is the ceiling on simultaneously running tasks within
	// a wave. Zero selects DefaultMaxParallel; negative values are
	// rejected.
	MaxParallel int

	// Notifier receives lifecycle events. Nil disables notification.
	Notifier event.Notifier

	// CancelOnFailure stops dispatching further waves once any task has
	// failed. The failing task's wave siblings always run to completion;
	// only subsequent waves are withheld.
	CancelOnFailure bool
}

// Engine executes one scheduling run over a registry. An Engine owns its
// mesh state exclusively; create a new Engine for every run.
type Engine struct {
	reg             *registry.Registry
	governor        *Governor
	notifier        event.Notifier
	cancelOnFailure bool

	mu    sync.RWMutex
	state *meshState
}

// New creates an engine for the given registry.
func New(reg *registry.Registry, opts Options) (*Engine, error) {
	limit := opts.MaxParallel
	if limit == 0 {
		limit = DefaultMaxParallel
	}
	gov, err := NewGovernor(limit)
	if err != nil {
		return nil, err
	}
	return &Engine{
		reg:             reg,
		governor:        gov,
		notifier:        opts.Notifier,
		cancelOnFailure: opts.CancelOnFailure,
	}, nil
}

// Run validates the mesh, resolves the execution plan, and executes all
// waves. It returns an error only for registration or resolution
// problems; task-level failures are captured in the summary. For a
// valid, acyclic graph the run always terminates.
func (e *Engine) Run(ctx context.Context) (*report.Summary, error) {
	logger := ctxlog.FromContext(ctx)

	if err := e.reg.Validate(); err != nil {
		return nil, fmt.Errorf("validating task registry: %w", err)
	}
	plan, err := resolver.Resolve(e.reg)
	if err != nil {
		return nil, fmt.Errorf("resolving execution order: %w", err)
	}

	runID := uuid.NewString()
	tasks := e.reg.Tasks()

	e.mu.Lock()
	e.state = newMeshState(runID, tasks, plan)
	e.state.startedAt = time.Now()
	e.mu.Unlock()

	logger = logger.With("run_id", runID)
	logger.Info("Starting mesh run.",
		"total_tasks", len(tasks), "waves", len(plan.Waves), "max_parallel", e.governor.Limit())

	for i, wave := range plan.Waves {
		waveLogger := logger.With("wave", i+1, "phase", wave.Phase)

		if ctx.Err() != nil {
			waveLogger.Warn("Run context canceled; remaining waves withheld.", "error", ctx.Err())
			break
		}
		if e.cancelOnFailure && e.failureSeen() {
			waveLogger.Warn("Failure observed and cancel-on-failure set; remaining waves withheld.")
			break
		}

		ready := e.assignWave(wave)
		if len(ready) == 0 {
			waveLogger.Debug("No dispatchable members in wave; all blocked.")
			continue
		}
		waveLogger.Debug("Dispatching wave.", "ready", len(ready), "members", len(wave.TaskIDs))

		// Wave barrier: Dispatch returns only after every ready member
		// reaches a terminal state. A failure never cancels its wave
		// siblings.
		e.governor.Dispatch(ctxlog.WithLogger(ctx, waveLogger), ready, e.runTask)

		e.applyBlocking(ctx)
	}

	e.mu.Lock()
	e.state.finishedAt = time.Now()
	summary := report.Build(runID, tasks, e.reg.Phases(), e.state.startedAt, e.state.finishedAt)
	e.mu.Unlock()

	logger.Info("Mesh run finished.",
		"completed", summary.Completed, "failed", summary.Failed,
		"blocked", summary.Blocked, "pending", summary.Pending,
		"duration", summary.Duration)
	return summary, nil
}

// assignWave marks the wave's still-pending members Assigned and returns
// them in wave order. Members already blocked at the boundary are
// skipped; Assigned is a one-way gate against double dispatch.
func (e *Engine) assignWave(wave resolver.Wave) []*task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()

	var ready []*task.Task
	for _, id := range wave.TaskIDs {
		t := e.state.tasks[id]
		if t.Status() != task.Pending {
			continue
		}
		t.SetStatus(task.Assigned)
		ready = append(ready, t)
	}
	return ready
}

// runTask executes one task on a governor worker: record the start,
// invoke the handler behind a panic boundary, record the outcome.
func (e *Engine) runTask(ctx context.Context, t *task.Task) {
	e.recordStart(ctx, t)
	result, err := e.invokeHandler(ctx, t)
	e.recordOutcome(ctx, t, result, err)
}

// invokeHandler calls the task's handler, converting panics into task
// failures. Errors never unwind past this boundary.
func (e *Engine) invokeHandler(ctx context.Context, t *task.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	inv := &task.Invocation{
		TaskID:   t.ID,
		Name:     t.Name,
		Phase:    t.Phase,
		Params:   t.Params,
		Upstream: e.upstreamResult,
	}
	return t.Handler(ctx, inv)
}

// upstreamResult returns the recorded result of a completed task. It is
// the only task data a handler can observe across the concurrency
// boundary, and only after the dependency's terminal transition.
func (e *Engine) upstreamResult(id string) (any, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if _, ok := e.state.completed[id]; !ok {
		return nil, false
	}
	return e.state.tasks[id].Result, true
}

func (e *Engine) recordStart(ctx context.Context, t *task.Task) {
	now := time.Now()
	e.mu.Lock()
	t.SetStatus(task.Running)
	t.StartedAt = now
	e.state.running[t.ID] = struct{}{}
	runID := e.state.runID
	e.mu.Unlock()

	event.Emit(ctx, e.notifier, event.Event{
		Kind: event.TaskStarted, RunID: runID,
		TaskID: t.ID, Name: t.Name, Phase: t.Phase, At: now,
	})
}

func (e *Engine) recordOutcome(ctx context.Context, t *task.Task, result any, err error) {
	now := time.Now()
	e.mu.Lock()
	t.CompletedAt = now
	delete(e.state.running, t.ID)
	ev := event.Event{
		RunID: e.state.runID, TaskID: t.ID, Name: t.Name, Phase: t.Phase,
		At: now, Duration: now.Sub(t.StartedAt),
	}
	if err != nil {
		t.Failure = err
		t.SetStatus(task.Failed)
		e.state.failed[t.ID] = struct{}{}
		ev.Kind = event.TaskFailed
		ev.Err = err.Error()
	} else {
		t.Result = result
		t.SetStatus(task.Completed)
		e.state.completed[t.ID] = struct{}{}
		ev.Kind = event.TaskCompleted
		ev.Result = result
	}
	e.mu.Unlock()

	event.Emit(ctx, e.notifier, ev)
}

// applyBlocking runs the wave-boundary check: any still-pending task
// whose dependency set intersects the failed or blocked sets transitions
// to Blocked. The scan iterates to a fixpoint so that tasks depending on
// freshly blocked tasks are blocked in the same boundary pass.
func (e *Engine) applyBlocking(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.state.failed) == 0 {
		return
	}
	for changed := true; changed; {
		changed = false
		for _, id := range e.state.order {
			t := e.state.tasks[id]
			if t.Status() != task.Pending {
				continue
			}
			for _, dep := range t.DependsOn {
				_, depFailed := e.state.failed[dep]
				_, depBlocked := e.state.blocked[dep]
				if depFailed || depBlocked {
					logger.Warn("Blocking task due to upstream failure.",
						"task_id", t.ID, "dependency", dep)
					t.SetStatus(task.Blocked)
					e.state.blocked[t.ID] = struct{}{}
					changed = true
					break
				}
			}
		}
	}
}

func (e *Engine) failureSeen() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.state.failed) > 0
}

// Snapshot returns a read-only, point-in-time view of every task's
// status, with per-phase tallies. Safe to call mid-run.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := Snapshot{Phases: make(map[string]PhaseProgress)}
	if e.state == nil {
		return snap
	}
	snap.RunID = e.state.runID
	snap.StartedAt = e.state.startedAt

	for _, id := range e.state.order {
		t := e.state.tasks[id]
		view := TaskView{
			ID: t.ID, Name: t.Name, Kind: t.Kind, Phase: t.Phase,
			Status: t.Status(), Duration: t.Duration(),
		}
		if t.Failure != nil {
			view.Err = t.Failure.Error()
		}
		snap.Tasks = append(snap.Tasks, view)

		progress := snap.Phases[t.Phase]
		progress.Total++
		switch view.Status {
		case task.Completed:
			progress.Completed++
			snap.Completed++
		case task.Failed:
			progress.Failed++
			snap.Failed++
		case task.Blocked:
			progress.Blocked++
			snap.Blocked++
		case task.Running:
			progress.Running++
			snap.Running++
		default:
			progress.Pending++
			snap.Pending++
		}
		snap.Phases[t.Phase] = progress
	}
	return snap
}
