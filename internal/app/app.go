// Package app wires the mesh loader, registry, engine, and reporter
// into a runnable application.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/engine"
	"github.com/vk/taskmesh/internal/event"
	"github.com/vk/taskmesh/internal/mesh"
	"github.com/vk/taskmesh/internal/registry"
	"github.com/vk/taskmesh/internal/report"
	"github.com/vk/taskmesh/internal/resolver"
)

// timeRounding keeps printed durations readable.
const timeRounding = time.Millisecond

// App runs one mesh from configuration to summary.
type App struct {
	out     io.Writer
	modules []registry.Module
}

// NewApp creates an application with the given built-in handler modules.
func NewApp(out io.Writer, modules ...registry.Module) *App {
	return &App{out: out, modules: modules}
}

// Run loads the mesh, resolves it, and either prints the plan (dry run)
// or executes it and reports the summary.
func (a *App) Run(ctx context.Context, cfg *Config) error {
	logger := newLogger(cfg)
	slog.SetDefault(logger)
	ctx = ctxlog.WithLogger(ctx, logger)

	reg := registry.New()
	for _, m := range a.modules {
		m.Register(reg)
	}

	m, err := mesh.Load(ctx, cfg.MeshPath)
	if err != nil {
		return err
	}
	if err := m.Apply(reg); err != nil {
		return err
	}

	if cfg.DryRun {
		plan, err := resolver.Resolve(reg)
		if err != nil {
			return err
		}
		a.printPlan(reg, plan)
		return nil
	}

	// CLI flags take precedence over mesh settings.
	maxParallel := m.Settings.MaxParallel
	if cfg.MaxParallel > 0 {
		maxParallel = cfg.MaxParallel
	}
	eng, err := engine.New(reg, engine.Options{
		MaxParallel:     maxParallel,
		Notifier:        event.Log{},
		CancelOnFailure: cfg.CancelOnFailure || m.Settings.CancelOnFailure,
	})
	if err != nil {
		return err
	}

	summary, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	a.printSummary(summary)
	if cfg.SummaryOut != "" {
		if err := summary.WriteJSON(cfg.SummaryOut); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Summary saved to: %s\n", cfg.SummaryOut)
	}

	if !summary.Succeeded() {
		return fmt.Errorf("run finished with %d failed and %d blocked tasks", summary.Failed, summary.Blocked)
	}
	return nil
}

// printPlan writes the resolved execution plan, one wave per group with
// dependency annotations, in the order the engine would dispatch.
func (a *App) printPlan(reg *registry.Registry, plan *resolver.Plan) {
	fmt.Fprintln(a.out, "EXECUTION PLAN:")
	for i, wave := range plan.Waves {
		fmt.Fprintf(a.out, "\nWave %d (phase %q, parallel):\n", i+1, wave.Phase)
		for _, id := range wave.TaskIDs {
			t, _ := reg.Task(id)
			if len(t.DependsOn) > 0 {
				fmt.Fprintf(a.out, "  - %s [deps: %v]\n", id, t.DependsOn)
			} else {
				fmt.Fprintf(a.out, "  - %s\n", id)
			}
		}
	}
	fmt.Fprintf(a.out, "\nTotal: %d tasks in %d waves\n", plan.TaskCount(), len(plan.Waves))
}

func (a *App) printSummary(s *report.Summary) {
	fmt.Fprintf(a.out, "\nRun %s finished in %s\n", s.RunID, s.Duration.Round(timeRounding))
	fmt.Fprintf(a.out, "  total: %d  completed: %d  failed: %d  blocked: %d\n",
		s.TotalTasks, s.Completed, s.Failed, s.Blocked)
	if len(s.PhasesCompleted) > 0 {
		fmt.Fprintf(a.out, "  phases completed: %v\n", s.PhasesCompleted)
	}
}

// newLogger builds the slog logger selected by the CLI flags.
func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
