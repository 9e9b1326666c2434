// Package resolver turns the registered dependency graph into an ordered
// list of parallel-execution waves.
//
// Resolution is phase-scoped: each declared phase is resolved
// independently with a Kahn-style in-degree reduction restricted to that
// phase's task ids, and the final plan is the concatenation of every
// phase's waves in declaration order. Cross-phase edges need no explicit
// handling because phases execute strictly in sequence.
package resolver

import (
	"fmt"
	"strings"

	"github.com/vk/taskmesh/internal/registry"
)

// Wave is a set of task ids with no unresolved dependency among
// themselves, eligible to start concurrently.
type Wave struct {
	Phase   string
	TaskIDs []string
}

// Plan is the complete resolved execution order for one run. Every
// registered task id appears in exactly one wave, and for every
// dependency edge the dependency's wave precedes the dependent's.
type Plan struct {
	Waves []Wave
}

// TaskCount returns the total number of task ids across all waves.
func (p *Plan) TaskCount() int {
	n := 0
	for _, w := range p.Waves {
		n += len(w.TaskIDs)
	}
	return n
}

// CycleError reports a dependency cycle within a single phase. Remaining
// lists the ids that could not be scheduled, in registry insertion order.
type CycleError struct {
	Phase     string
	Remaining []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle in phase '%s' involving: %s",
		e.Phase, strings.Join(e.Remaining, ", "))
}

// Resolve computes the execution plan for all registered tasks. The
// registry must already have passed Validate. No partial plan is
// returned on error.
func Resolve(reg *registry.Registry) (*Plan, error) {
	plan := &Plan{}
	for _, phase := range reg.Phases() {
		// Phase-scoped id list in insertion order; insertion order is
		// the deterministic tie-break within every wave.
		var phaseIDs []string
		member := make(map[string]struct{})
		for _, t := range reg.Tasks() {
			if t.Phase == phase {
				phaseIDs = append(phaseIDs, t.ID)
				member[t.ID] = struct{}{}
			}
		}
		if len(phaseIDs) == 0 {
			continue
		}

		waves, err := resolvePhase(reg, phase, phaseIDs, member)
		if err != nil {
			return nil, err
		}
		plan.Waves = append(plan.Waves, waves...)
	}
	return plan, nil
}

// resolvePhase runs the in-degree reduction for one phase. Dependencies
// pointing outside the phase are satisfied by phase ordering and do not
// contribute to in-degree.
func resolvePhase(reg *registry.Registry, phase string, phaseIDs []string, member map[string]struct{}) ([]Wave, error) {
	inDegree := make(map[string]int, len(phaseIDs))
	dependents := make(map[string][]string, len(phaseIDs))
	for _, id := range phaseIDs {
		t, _ := reg.Task(id)
		for _, dep := range t.DependsOn {
			if _, inPhase := member[dep]; inPhase {
				inDegree[id]++
				dependents[dep] = append(dependents[dep], id)
			}
		}
	}

	done := make(map[string]struct{}, len(phaseIDs))
	var waves []Wave
	for len(done) < len(phaseIDs) {
		var ready []string
		for _, id := range phaseIDs {
			if _, emitted := done[id]; !emitted && inDegree[id] == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var remaining []string
			for _, id := range phaseIDs {
				if _, emitted := done[id]; !emitted {
					remaining = append(remaining, id)
				}
			}
			return nil, &CycleError{Phase: phase, Remaining: remaining}
		}

		for _, id := range ready {
			done[id] = struct{}{}
			for _, dep := range dependents[id] {
				inDegree[dep]--
			}
		}
		waves = append(waves, Wave{Phase: phase, TaskIDs: ready})
	}
	return waves, nil
}
