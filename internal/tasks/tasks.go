// ABOUTME: Fixed-roster periodic task runner
// ABOUTME: One goroutine per task, ticker-driven, stopped via context
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Task is one periodic loop in the gateway's roster. Priority is an
// advisory label carried into logs; the Go scheduler does the actual
// arbitration.
type Task struct {
	Name     string
	Priority int
	Period   time.Duration
	Run      func()
}

// Runner drives a fixed set of tasks. The roster is set before Start and
// never changes at runtime.
type Runner struct {
	tasks []Task
	wg    sync.WaitGroup
	log   *logrus.Entry
}

// NewRunner creates a runner over the given roster.
func NewRunner(tasks []Task) *Runner {
	return &Runner{
		tasks: tasks,
		log:   logrus.WithField("component", "tasks"),
	}
}

// Start launches every task. Each runs on its own goroutine with its own
// ticker; a slow iteration delays only that task's next tick.
func (r *Runner) Start(ctx context.Context) {
	for _, t := range r.tasks {
		r.wg.Add(1)
		go r.loop(ctx, t)

		r.log.WithFields(logrus.Fields{
			"task":     t.Name,
			"period":   t.Period,
			"priority": t.Priority,
		}).Info("task started")
	}
}

// Wait blocks until every task has exited after context cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) loop(ctx context.Context, t Task) {
	defer r.wg.Done()

	ticker := time.NewTicker(t.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.WithField("task", t.Name).Info("task stopped")
			return
		case <-ticker.C:
			t.Run()
		}
	}
}
