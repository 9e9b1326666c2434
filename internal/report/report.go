// Package report aggregates the final state of a scheduling run into a
// reportable summary.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vk/taskmesh/internal/task"
)

// Summary is the aggregate result of one mesh run.
type Summary struct {
	RunID           string        `json:"run_id"`
	TotalTasks      int           `json:"total_tasks"`
	Completed       int           `json:"completed"`
	Failed          int           `json:"failed"`
	Blocked         int           `json:"blocked"`
	Pending         int           `json:"pending"`
	Duration        time.Duration `json:"duration_ns"`
	StartedAt       time.Time     `json:"started_at"`
	FinishedAt      time.Time     `json:"finished_at"`
	PhasesCompleted []string      `json:"phases_completed"`
}

// Succeeded reports whether every task completed.
func (s *Summary) Succeeded() bool {
	return s.Completed == s.TotalTasks
}

// Build computes the summary for a finished run. Phases are scanned in
// declaration order; a phase counts as completed only when every member
// task reached Completed.
func Build(runID string, tasks []*task.Task, phases []string, startedAt, finishedAt time.Time) *Summary {
	s := &Summary{
		RunID:           runID,
		TotalTasks:      len(tasks),
		StartedAt:       startedAt,
		FinishedAt:      finishedAt,
		Duration:        finishedAt.Sub(startedAt),
		PhasesCompleted: []string{},
	}
	for _, t := range tasks {
		switch t.Status() {
		case task.Completed:
			s.Completed++
		case task.Failed:
			s.Failed++
		case task.Blocked:
			s.Blocked++
		default:
			s.Pending++
		}
	}
	for _, phase := range phases {
		members, completed := 0, 0
		for _, t := range tasks {
			if t.Phase != phase {
				continue
			}
			members++
			if t.Status() == task.Completed {
				completed++
			}
		}
		if members > 0 && members == completed {
			s.PhasesCompleted = append(s.PhasesCompleted, phase)
		}
	}
	return s
}

// WriteJSON writes the summary to a file as indented JSON.
func (s *Summary) WriteJSON(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing summary file: %w", err)
	}
	return nil
}
