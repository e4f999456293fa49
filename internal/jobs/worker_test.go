package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTask struct {
	mock.Mock
}

func (m *MockTask) Tick(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockIngestionRunner struct {
	mock.Mock
}

func (m *MockIngestionRunner) Run(ctx context.Context, force bool) (*service.IngestionReport, error) {
	args := m.Called(ctx, force)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestionReport), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	task := new(MockTask)
	task.On("Tick", mock.Anything).Return(nil)

	worker := NewWorker(task, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	task.AssertCalled(t, "Tick", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	task := new(MockTask)
	task.On("Tick", mock.Anything).Return(nil)

	worker := NewWorker(task, 100*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	task.AssertCalled(t, "Tick", mock.Anything)
}

func TestWorker_KeepsPollingAfterErrors(t *testing.T) {
	task := new(MockTask)
	task.On("Tick", mock.Anything).Return(errors.New("bucket unreachable"))

	worker := NewWorker(task, 20*time.Millisecond, nil)
	go worker.Start(context.Background())

	time.Sleep(150 * time.Millisecond)
	worker.Stop()

	assert.GreaterOrEqual(t, len(task.Calls), 2)
}

func TestWorker_RunsImmediately(t *testing.T) {
	ticked := make(chan struct{}, 1)
	task := new(MockTask)
	task.On("Tick", mock.Anything).Run(func(mock.Arguments) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	}).Return(nil)

	worker := NewWorker(task, time.Hour, nil)
	go worker.Start(context.Background())

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("worker did not tick on start")
	}
	worker.Stop()
}

func TestWorker_NextWait(t *testing.T) {
	w := NewWorker(new(MockTask), time.Minute, nil)

	assert.Equal(t, time.Minute, w.nextWait(0))
	assert.Equal(t, time.Minute, w.nextWait(1))
	assert.Equal(t, 2*time.Minute, w.nextWait(2))
	assert.Equal(t, 4*time.Minute, w.nextWait(3))
	assert.Equal(t, 8*time.Minute, w.nextWait(4))
	assert.Equal(t, 8*time.Minute, w.nextWait(10))
}

func TestIngestionProcessor_Tick(t *testing.T) {
	t.Run("runs incremental ingestion", func(t *testing.T) {
		runner := new(MockIngestionRunner)
		report := &service.IngestionReport{Location: "testdata", Objects: []service.ObjectReport{{Key: "qs.json", Written: 3}}}
		runner.On("Run", mock.Anything, false).Return(report, nil).Once()

		err := NewIngestionProcessor(runner, nil).Tick(context.Background())

		require.NoError(t, err)
		runner.AssertExpectations(t)
	})

	t.Run("propagates failures", func(t *testing.T) {
		runner := new(MockIngestionRunner)
		runner.On("Run", mock.Anything, false).Return(&service.IngestionReport{}, errors.New("qs.json: invalid ranking file"))

		err := NewIngestionProcessor(runner, nil).Tick(context.Background())

		assert.Error(t, err)
	})

	t.Run("skips overlapping runs", func(t *testing.T) {
		release := make(chan struct{})
		started := make(chan struct{})
		runner := new(MockIngestionRunner)
		runner.On("Run", mock.Anything, false).Run(func(mock.Arguments) {
			close(started)
			<-release
		}).Return(&service.IngestionReport{}, nil).Once()

		p := NewIngestionProcessor(runner, nil)
		done := make(chan error, 1)
		go func() { done <- p.Tick(context.Background()) }()

		<-started
		require.NoError(t, p.Tick(context.Background()))
		close(release)
		require.NoError(t, <-done)

		runner.AssertNumberOfCalls(t, "Run", 1)
	})
}
