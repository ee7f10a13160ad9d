package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func newPendingTask(t *testing.T, deviceID uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(deviceID, nil, "photos/p.jpg", []domain.Garment{
		{ImageRef: "https://shop.example.com/g.jpg", Category: domain.GarmentDress},
	})
	require.NoError(t, err)
	return task
}

func TestTaskStore_TransitionCompareAndSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newPendingTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, task))

	updated, err := s.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: strPtr("job-1")})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, updated.Status)

	_, err = s.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusCancelled, domain.TransitionFields{})
	assert.ErrorIs(t, err, store.ErrStaleTransition)

	_, err = s.Transition(ctx, uuid.New(), domain.TaskStatusPending, domain.TaskStatusCancelled, domain.TransitionFields{})
	assert.ErrorIs(t, err, store.ErrTaskNotFound)

	byJob, err := s.GetByExternalJobID(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID, byJob.ID)
}

func TestTaskStore_ConcurrentTransitionsHaveOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newPendingTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, task))
	_, err := s.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: strPtr("job-race")})
	require.NoError(t, err)

	var wins, stale atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			switch i % 3 {
			case 0:
				_, err = s.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCompleted,
					domain.TransitionFields{ResultLocation: strPtr("https://cdn.example.com/r.png")})
			case 1:
				_, err = s.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusFailed,
					domain.TransitionFields{ErrorDetail: strPtr("timeout")})
			default:
				_, err = s.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCancelled,
					domain.TransitionFields{})
			}
			if err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, store.ErrStaleTransition) {
				stale.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(31), stale.Load())

	final, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, final.Status.IsTerminal())
	if final.Status == domain.TaskStatusCompleted {
		assert.NotNil(t, final.ResultLocation)
	} else {
		assert.Nil(t, final.ResultLocation)
	}
}

func TestTaskStore_RejectsIllegalEdges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newPendingTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, task))

	_, err := s.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusCompleted,
		domain.TransitionFields{ResultLocation: strPtr("x")})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
}

func TestTaskStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	task := newPendingTask(t, uuid.New())
	require.NoError(t, s.Create(ctx, task))

	got, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	got.Status = domain.TaskStatusCompleted
	got.Garments[0].ImageRef = "mutated"

	again, err := s.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusPending, again.Status)
	assert.NotEqual(t, "mutated", again.Garments[0].ImageRef)
}

func TestTaskStore_ListByDeviceAndStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewTaskStore()
	device := uuid.New()
	base := time.Now().Add(-time.Hour)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		task := newPendingTask(t, device)
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Create(ctx, task))
		ids = append(ids, task.ID)
	}
	require.NoError(t, s.Create(ctx, newPendingTask(t, uuid.New())))

	listed, err := s.ListByDevice(ctx, device, store.TaskFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, ids[2], listed[0].ID, "newest first")

	_, err = s.Transition(ctx, ids[0], domain.TaskStatusPending, domain.TaskStatusCancelled, domain.TransitionFields{})
	require.NoError(t, err)
	pending, err := s.ListByDevice(ctx, device, store.TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusPending}})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	stale, err := s.ListStale(ctx, domain.TaskStatusPending, base.Add(90*time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, ids[1], stale[0].ID)
}
