// Package jobs runs periodic background work for the server.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cloo-solutions/unirank/internal/logging"
)

// maxBackoffFactor caps how far consecutive failures stretch the interval.
const maxBackoffFactor = 8

// Task is one unit of periodic work.
type Task interface {
	Tick(ctx context.Context) error
}

// Worker runs a Task once on start and then every interval. Each consecutive
// failure doubles the wait, up to maxBackoffFactor intervals.
type Worker struct {
	task     Task
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(task Task, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		task:     task,
		interval: interval,
		logger:   logging.OrDiscard(logger),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.done)

	failures := 0
	for {
		if err := w.task.Tick(ctx); err != nil {
			failures++
			w.logger.ErrorContext(ctx, "background task failed",
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()))
		} else {
			failures = 0
		}

		timer := time.NewTimer(w.nextWait(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("worker stopped: context cancelled")
			return
		case <-w.stop:
			timer.Stop()
			w.logger.Info("worker stopped")
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) nextWait(failures int) time.Duration {
	factor := 1
	for i := 1; i < failures && factor < maxBackoffFactor; i++ {
		factor *= 2
	}
	return w.interval * time.Duration(factor)
}

// Stop ends the loop and waits for an in-progress tick to return.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.done
}
