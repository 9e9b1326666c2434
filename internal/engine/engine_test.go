package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/taskmesh/internal/event"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/task"
)

func ok(context.Context, *task.Invocation) (any, error) { return nil, nil }

func failWith(err error) task.Handler {
	return func(context.Context, *task.Invocation) (any, error) { return nil, err }
}

func mkTask(id, phase string, deps []string, h task.Handler) *task.Task {
	return &task.Task{ID: id, Name: id, Kind: "test", Phase: phase, DependsOn: deps, Handler: h}
}

func buildRegistry(t *testing.T, phases []string, tasks ...*task.Task) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.SetPhases(phases))
	for _, tk := range tasks {
		require.NoError(t, reg.AddTask(tk))
	}
	return reg
}

// recordingNotifier captures every lifecycle event for later assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recordingNotifier) Notify(_ context.Context, ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingNotifier) byKind(kind event.Kind) []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []event.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestRun_LinearChainCompletes(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var executed []string
	record := func(_ context.Context, inv *task.Invocation) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		executed = append(executed, inv.TaskID)
		return nil, nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("A", "main", nil, record),
		mkTask("B", "main", []string{"A"}, record),
		mkTask("C", "main", []string{"B"}, record),
		mkTask("D", "main", []string{"C"}, record),
		mkTask("E", "main", []string{"D"}, record),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.TotalTasks)
	assert.Equal(t, 5, summary.Completed)
	assert.Zero(t, summary.Failed)
	assert.Zero(t, summary.Blocked)
	assert.Zero(t, summary.Pending)
	assert.True(t, summary.Succeeded())
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, []string{"main"}, summary.PhasesCompleted)
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, executed,
		"a chain of singleton waves executes strictly in order")
}

func TestRun_DiamondCompletesWithUpstreamResults(t *testing.T) {
	t.Parallel()
	produce := func(value string) task.Handler {
		return func(context.Context, *task.Invocation) (any, error) { return value, nil }
	}
	var got []any
	join := func(_ context.Context, inv *task.Invocation) (any, error) {
		for _, dep := range []string{"B", "C"} {
			v, ok := inv.Upstream(dep)
			if !ok {
				return nil, errors.New("upstream result missing for " + dep)
			}
			got = append(got, v)
		}
		return "joined", nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("A", "main", nil, produce("root")),
		mkTask("B", "main", []string{"A"}, produce("left")),
		mkTask("C", "main", []string{"A"}, produce("right")),
		mkTask("D", "main", []string{"B", "C"}, join),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Completed)
	assert.True(t, summary.Succeeded())
	assert.Equal(t, []any{"left", "right"}, got,
		"handlers see the recorded results of their completed dependencies")
}

func TestRun_FailureBlocksDownstreamChain(t *testing.T) {
	t.Parallel()
	var downstreamRan atomic.Int32
	mustNotRun := func(context.Context, *task.Invocation) (any, error) {
		downstreamRan.Add(1)
		return nil, nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("A", "main", nil, failWith(errors.New("boom"))),
		mkTask("B", "main", []string{"A"}, mustNotRun),
		mkTask("C", "main", []string{"B"}, mustNotRun),
		mkTask("D", "main", []string{"C"}, mustNotRun),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err, "task failures surface in the summary, not as run errors")

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Blocked)
	assert.Zero(t, summary.Completed)
	assert.Zero(t, summary.Pending)
	assert.False(t, summary.Succeeded())
	assert.Zero(t, downstreamRan.Load(), "blocked tasks must never be attempted")

	snap := eng.Snapshot()
	for _, view := range snap.Tasks {
		switch view.ID {
		case "A":
			assert.Equal(t, task.Failed, view.Status)
		default:
			assert.Equal(t, task.Blocked, view.Status, "task %s", view.ID)
		}
	}
}

func TestRun_WaveSiblingsFinishDespiteFailure(t *testing.T) {
	t.Parallel()
	var siblingsDone atomic.Int32
	slowOK := func(ctx context.Context, _ *task.Invocation) (any, error) {
		select {
		case <-time.After(30 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		siblingsDone.Add(1)
		return nil, nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("root", "main", nil, ok),
		mkTask("fast_fail", "main", []string{"root"}, failWith(errors.New("boom"))),
		mkTask("slow_one", "main", []string{"root"}, slowOK),
		mkTask("slow_two", "main", []string{"root"}, slowOK),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), siblingsDone.Load(),
		"a failing task never cancels its wave siblings")
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Pending)
}

func TestRun_BlockingCascadeCrossesPhases(t *testing.T) {
	t.Parallel()
	reg := buildRegistry(t, []string{"one", "two"},
		mkTask("a", "one", nil, failWith(errors.New("boom"))),
		mkTask("b", "one", nil, ok),
		mkTask("needs_a", "two", []string{"a"}, ok),
		mkTask("needs_b", "two", []string{"b"}, ok),
		mkTask("needs_both", "two", []string{"needs_a", "needs_b"}, ok),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed, "b and needs_b still run")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Blocked, "needs_a directly, needs_both transitively")
	assert.Zero(t, summary.Pending)
	assert.Empty(t, summary.PhasesCompleted)
}

func TestRun_CycleProducesNoExecution(t *testing.T) {
	t.Parallel()
	var ran atomic.Int32
	record := func(context.Context, *task.Invocation) (any, error) {
		ran.Add(1)
		return nil, nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("x", "main", []string{"y"}, record),
		mkTask("y", "main", []string{"x"}, record),
		mkTask("free", "main", nil, record),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "resolving execution order")
	assert.Nil(t, summary, "a cyclic mesh yields no summary")
	assert.Zero(t, ran.Load(), "no task may run when resolution fails")
}

func TestRun_TerminalStateConservation(t *testing.T) {
	t.Parallel()
	reg := buildRegistry(t, []string{"p1", "p2"},
		mkTask("a", "p1", nil, ok),
		mkTask("b", "p1", nil, failWith(errors.New("boom"))),
		mkTask("c", "p1", []string{"a"}, ok),
		mkTask("d", "p2", []string{"b"}, ok),
		mkTask("e", "p2", []string{"c"}, ok),
		mkTask("f", "p2", []string{"d", "e"}, ok),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, summary.TotalTasks, summary.Completed+summary.Failed+summary.Blocked,
		"every task ends in exactly one terminal state")
	assert.Zero(t, summary.Pending)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Blocked)
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	t.Parallel()
	const limit = 2
	var current, peak atomic.Int32
	gauge := func(ctx context.Context, _ *task.Invocation) (any, error) {
		c := current.Add(1)
		defer current.Add(-1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil, nil
	}

	tasks := []*task.Task{
		mkTask("t1", "main", nil, gauge),
		mkTask("t2", "main", nil, gauge),
		mkTask("t3", "main", nil, gauge),
		mkTask("t4", "main", nil, gauge),
		mkTask("t5", "main", nil, gauge),
		mkTask("t6", "main", nil, gauge),
	}
	reg := buildRegistry(t, []string{"main"}, tasks...)

	eng, err := New(reg, Options{MaxParallel: limit})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Completed)
	assert.LessOrEqual(t, peak.Load(), int32(limit),
		"observed concurrency must never exceed the ceiling")
}

func TestRun_NotifierReceivesLifecycleEvents(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	reg := buildRegistry(t, []string{"main"},
		mkTask("good", "main", nil, ok),
		mkTask("bad", "main", nil, failWith(errors.New("boom"))),
		mkTask("never", "main", []string{"bad"}, ok),
	)

	eng, err := New(reg, Options{Notifier: notifier})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	started := notifier.byKind(event.TaskStarted)
	completed := notifier.byKind(event.TaskCompleted)
	failed := notifier.byKind(event.TaskFailed)

	assert.Len(t, started, 2, "blocked tasks emit no start event")
	assert.Len(t, completed, 1)
	assert.Len(t, failed, 1)

	require.NotEmpty(t, completed)
	assert.Equal(t, "good", completed[0].TaskID)
	assert.Equal(t, summary.RunID, completed[0].RunID)

	require.NotEmpty(t, failed)
	assert.Equal(t, "bad", failed[0].TaskID)
	assert.Equal(t, "boom", failed[0].Err)
}

type panickyNotifier struct{}

func (panickyNotifier) Notify(context.Context, event.Event) { panic("notifier bug") }

func TestRun_PanickingNotifierDoesNotAbortRun(t *testing.T) {
	t.Parallel()
	reg := buildRegistry(t, []string{"main"},
		mkTask("a", "main", nil, ok),
		mkTask("b", "main", []string{"a"}, ok),
	)

	eng, err := New(reg, Options{Notifier: panickyNotifier{}})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Completed)
}

func TestRun_HandlerPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	reg := buildRegistry(t, []string{"main"},
		mkTask("explode", "main", nil, func(context.Context, *task.Invocation) (any, error) {
			panic("kaboom")
		}),
		mkTask("after", "main", []string{"explode"}, ok),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Blocked)

	snap := eng.Snapshot()
	for _, view := range snap.Tasks {
		if view.ID == "explode" {
			assert.Contains(t, view.Err, "handler panicked")
		}
	}
}

func TestRun_CancelOnFailureWithholdsLaterWaves(t *testing.T) {
	t.Parallel()
	var independentRan atomic.Int32
	reg := buildRegistry(t, []string{"one", "two"},
		mkTask("fails", "one", nil, failWith(errors.New("boom"))),
		mkTask("independent", "two", nil, func(context.Context, *task.Invocation) (any, error) {
			independentRan.Add(1)
			return nil, nil
		}),
	)

	eng, err := New(reg, Options{CancelOnFailure: true})
	require.NoError(t, err)
	summary, err := eng.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Pending,
		"undispatched tasks stay pending rather than blocked when their deps did not fail")
	assert.Zero(t, independentRan.Load())
}

func TestRun_ContextCancellationWithholdsRemainingWaves(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	reg := buildRegistry(t, []string{"main"},
		mkTask("first", "main", nil, func(context.Context, *task.Invocation) (any, error) {
			cancel()
			return nil, nil
		}),
		mkTask("second", "main", []string{"first"}, ok),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)
	summary, err := eng.Run(ctx)
	require.NoError(t, err, "external cancellation is not a registration or resolution error")

	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Pending)
	assert.Zero(t, summary.Blocked)
}

func TestSnapshot_MidRun(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	blockUntilReleased := func(context.Context, *task.Invocation) (any, error) {
		close(started)
		<-release
		return nil, nil
	}

	reg := buildRegistry(t, []string{"main"},
		mkTask("slow", "main", nil, blockUntilReleased),
		mkTask("after", "main", []string{"slow"}, ok),
	)

	eng, err := New(reg, Options{})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, runErr := eng.Run(context.Background())
		assert.NoError(t, runErr)
	}()

	<-started
	snap := eng.Snapshot()
	assert.Equal(t, 1, snap.Running)
	assert.Equal(t, 1, snap.Pending)
	assert.NotEmpty(t, snap.RunID)

	progress, ok := snap.Phases["main"]
	require.True(t, ok)
	assert.Equal(t, 2, progress.Total)
	assert.Equal(t, 1, progress.Running)

	close(release)
	<-done

	final := eng.Snapshot()
	assert.Equal(t, 2, final.Completed)
	assert.Zero(t, final.Running)
}

func TestSnapshot_BeforeRunIsEmpty(t *testing.T) {
	t.Parallel()
	reg := buildRegistry(t, []string{"main"}, mkTask("a", "main", nil, ok))
	eng, err := New(reg, Options{})
	require.NoError(t, err)

	snap := eng.Snapshot()
	assert.Empty(t, snap.RunID)
	assert.Empty(t, snap.Tasks)
}

func TestNew_RejectsNegativeMaxParallel(t *testing.T) {
	t.Parallel()
	reg := registry.New()
	_, err := New(reg, Options{MaxParallel: -1})
	assert.ErrorContains(t, err, "max parallel must be >= 1")
}
