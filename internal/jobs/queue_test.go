package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockJob is a Job whose Execute behaviour is supplied by the test.
type mockJob struct {
	id     uuid.UUID
	typ    string
	execFn func(ctx context.Context) error
}

func newMockJob(execFn func(ctx context.Context) error) *mockJob {
	return &mockJob{id: uuid.New(), typ: "mock", execFn: execFn}
}

func (m *mockJob) ID() uuid.UUID { return m.id }
func (m *mockJob) Type() string  { return m.typ }
func (m *mockJob) Execute(ctx context.Context) error {
	if m.execFn == nil {
		return nil
	}
	return m.execFn(ctx)
}

func TestQueue_Enqueue(t *testing.T) {
	_, log := logger.NewTestLogger(t)

	t.Run("accepts jobs until full", func(t *testing.T) {
		q := NewQueue(2, log)
		require.NoError(t, q.Enqueue(newMockJob(nil)))
		require.NoError(t, q.Enqueue(newMockJob(nil)))

		err := q.Enqueue(newMockJob(nil))
		assert.True(t, errors.Is(err, ErrQueueFull))
	})

	t.Run("rejects after close", func(t *testing.T) {
		q := NewQueue(2, log)
		q.Close()
		assert.ErrorIs(t, q.Enqueue(newMockJob(nil)), ErrQueueClosed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		q := NewQueue(1, log)
		q.Close()
		assert.NotPanics(t, q.Close)
	})

	t.Run("buffered jobs survive close", func(t *testing.T) {
		q := NewQueue(2, log)
		job := newMockJob(nil)
		require.NoError(t, q.Enqueue(job))
		q.Close()

		got, ok := <-q.Channel()
		require.True(t, ok)
		assert.Equal(t, job.ID(), got.ID())

		_, ok = <-q.Channel()
		assert.False(t, ok)
	})

	t.Run("concurrent enqueue and close never panics", func(t *testing.T) {
		q := NewQueue(100, log)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = q.Enqueue(newMockJob(nil))
			}()
		}
		q.Close()
		wg.Wait()
	})
}

func TestFuncJob(t *testing.T) {
	called := false
	job := NewFuncJob("notify", func(ctx context.Context) error {
		called = true
		return nil
	})

	assert.Equal(t, "notify", job.Type())
	assert.NotEqual(t, uuid.Nil, job.ID())
	require.NoError(t, job.Execute(context.Background()))
	assert.True(t, called)
}
