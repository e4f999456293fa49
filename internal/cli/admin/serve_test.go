package admin

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/unirank/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slowTask blocks each tick until its context is done, then takes a moment
// to wind down.
type slowTask struct {
	started  chan struct{}
	finished atomic.Bool
}

func (s *slowTask) Tick(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	s.finished.Store(true)
	return ctx.Err()
}

func TestBackgroundJobs_StopWaitsForRunningTick(t *testing.T) {
	task := &slowTask{started: make(chan struct{}, 1)}
	background := newBackgroundJobs(context.Background())
	background.start(jobs.NewWorker(task, time.Hour, nil))

	select {
	case <-task.started:
	case <-time.After(time.Second):
		require.FailNow(t, "tick did not start")
	}

	background.stop()
	assert.True(t, task.finished.Load())

	background.stop()
}

func TestBackgroundJobs_StopWithoutWorkers(t *testing.T) {
	background := newBackgroundJobs(context.Background())
	background.stop()
	assert.Error(t, background.ctx.Err())
}
