package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	q := NewQueue(1, log)

	pool := NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 0}, log)

	assert.Equal(t, 1, pool.workerCount, "invalid worker count should default to 1")
}

func TestWorkerPool_ProcessesJobs(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	q := NewQueue(10, log)
	pool := NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 3}, log)
	pool.Start()

	var wg sync.WaitGroup
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, q.Enqueue(newMockJob(func(ctx context.Context) error {
			defer wg.Done()
			count.Add(1)
			return nil
		})))
	}

	waitOrFail(t, &wg)
	pool.Stop()
	assert.Equal(t, int32(5), count.Load())
}

func TestWorkerPool_ErrorHandler(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	q := NewQueue(10, log)
	pool := NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 1}, log)

	boom := errors.New("boom")
	got := make(chan error, 2)
	pool.SetErrorHandler(func(job Job, err error) { got <- err })
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(newMockJob(func(ctx context.Context) error { return boom })))
	require.NoError(t, q.Enqueue(newMockJob(func(ctx context.Context) error { panic("kaboom") })))

	for i := 0; i < 2; i++ {
		select {
		case err := <-got:
			assert.Error(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("error handler not invoked")
		}
	}
}

func TestWorkerPool_JobTimeout(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	q := NewQueue(1, log)
	pool := NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 1, JobTimeout: 20 * time.Millisecond}, log)

	got := make(chan error, 1)
	pool.SetErrorHandler(func(job Job, err error) { got <- err })
	pool.Start()
	defer pool.Stop()

	require.NoError(t, q.Enqueue(newMockJob(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	select {
	case err := <-got:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("job was not cancelled by timeout")
	}
}

func TestWorkerPool_Drain(t *testing.T) {
	_, log := logger.NewTestLogger(t)
	q := NewQueue(5, log)
	pool := NewWorkerPool(q, WorkerPoolConfig{WorkerCount: 1}, log)
	pool.Start()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(newMockJob(func(ctx context.Context) error {
			count.Add(1)
			return nil
		})))
	}
	q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Drain(ctx)

	assert.Equal(t, int32(3), count.Load(), "buffered jobs should run before drain returns")
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for jobs")
	}
}
