package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/taskmesh/internal/ctxlog"
	"github.com/vk/taskmesh/internal/task"
)

// Governor bounds how many tasks may run simultaneously within a wave.
// It guarantees only the ceiling: admission is FIFO in the order tasks
// are handed to Dispatch, and completion order is unconstrained.
type Governor struct {
	limit int
}

// NewGovernor creates a governor with the given concurrency ceiling.
func NewGovernor(limit int) (*Governor, error) {
	if limit < 1 {
		return nil, fmt.Errorf("max parallel must be >= 1, got %d", limit)
	}
	return &Governor{limit: limit}, nil
}

// Limit returns the configured concurrency ceiling.
func (g *Governor) Limit() int {
	return g.limit
}

// Dispatch runs fn for every task with at most limit concurrent
// invocations and returns once all of them have finished. The queue is
// populated in the given order, so workers admit tasks FIFO.
func (g *Governor) Dispatch(ctx context.Context, tasks []*task.Task, fn func(context.Context, *task.Task)) {
	if len(tasks) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)

	workers := g.limit
	if workers > len(tasks) {
		workers = len(tasks)
	}

	readyChan := make(chan *task.Task, len(tasks))
	for _, t := range tasks {
		readyChan <- t
	}
	close(readyChan)

	var wg sync.WaitGroup
	wg.Add(workers)
	logger.Debug("Starting wave worker pool.", "workers", workers, "wave_size", len(tasks))
	for i := 0; i < workers; i++ {
		go func(workerID int) {
			defer wg.Done()
			for t := range readyChan {
				logger.Debug("Worker picked up task.", "workerID", workerID, "task_id", t.ID)
				fn(ctx, t)
			}
		}(i)
	}
	wg.Wait()
}
