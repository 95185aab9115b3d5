// Package runner executes evaluation tasks with bounded concurrency. A batch
// of anamnesis reports fans out over a worker semaphore, each report running
// its own evaluation pipeline under its own session ID.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/sweetpotato0/blackwell/evaluator"
	"github.com/sweetpotato0/blackwell/pkg/logging"
)

const defaultConcurrency = 4

// Evaluator is the pipeline contract the runner drives.
type Evaluator interface {
	Evaluate(ctx context.Context, anamnesisReport, sessionID string) (*evaluator.Outcome, error)
}

// Task is one evaluation request. A missing SessionID gets a generated one.
type Task struct {
	SessionID       string
	AnamnesisReport string
}

// Result pairs a task with its outcome or failure.
type Result struct {
	SessionID string
	Outcome   *evaluator.Outcome
	Err       error
}

// Runner schedules evaluations over a shared concurrency budget.
type Runner struct {
	eval      Evaluator
	semaphore chan struct{}
	log       *slog.Logger
}

// New creates a runner. maxConcurrency bounds the evaluations in flight.
func New(eval Evaluator, maxConcurrency int) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultConcurrency
	}
	return &Runner{
		eval:      eval,
		semaphore: make(chan struct{}, maxConcurrency),
		log:       logging.WithComponent("runner"),
	}
}

// Run executes a single task, waiting for a free slot first.
func (r *Runner) Run(ctx context.Context, task Task) (*evaluator.Outcome, error) {
	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	sessionID := task.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	return r.eval.Evaluate(ctx, task.AnamnesisReport, sessionID)
}

// RunBatch executes tasks concurrently and returns results aligned with the
// input order. Individual failures are captured per result, never returned as
// a batch error; a panicking evaluation is converted into a failed result.
func (r *Runner) RunBatch(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		if task.SessionID == "" {
			task.SessionID = uuid.NewString()
		}
		results[i].SessionID = task.SessionID

		wg.Add(1)
		go func(index int, t Task) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.log.Error("evaluation panicked", "session", t.SessionID, "panic", rec)
					results[index].Err = fmt.Errorf("evaluation %s panicked: %v", t.SessionID, rec)
				}
			}()

			outcome, err := r.Run(ctx, t)
			results[index].Outcome = outcome
			results[index].Err = err
		}(i, task)
	}

	wg.Wait()
	return results
}
