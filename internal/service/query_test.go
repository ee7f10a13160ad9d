package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/platform/memory"
	"github.com/phrazzld/tryon-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueryFixture(t *testing.T, urls URLResolver) (*QueryService, *memory.TaskStore) {
	t.Helper()
	tasks := memory.NewTaskStore()
	resolver := pairingResolverFunc(func(_ context.Context, token string) (*pairing.Resolution, error) {
		if token != "known" {
			return nil, pairing.ErrTokenNotFound
		}
		return &pairing.Resolution{Token: token, Status: domain.PairingStatusActive}, nil
	})
	q, err := NewQueryService(tasks, urls, resolver, nil)
	require.NoError(t, err)
	return q, tasks
}

func storeTask(t *testing.T, tasks *memory.TaskStore, deviceID uuid.UUID, result string) *domain.Task {
	t.Helper()
	ctx := context.Background()
	task, err := domain.NewTask(deviceID, nil, "photos/p.jpg",
		[]domain.Garment{{ImageRef: "g.jpg", Category: domain.GarmentDress}})
	require.NoError(t, err)
	require.NoError(t, tasks.Create(ctx, task))
	if result == "" {
		return task
	}
	job := uuid.NewString()
	_, err = tasks.Transition(ctx, task.ID, domain.TaskStatusPending, domain.TaskStatusProcessing,
		domain.TransitionFields{ExternalJobID: &job})
	require.NoError(t, err)
	done, err := tasks.Transition(ctx, task.ID, domain.TaskStatusProcessing, domain.TaskStatusCompleted,
		domain.TransitionFields{ResultLocation: &result})
	require.NoError(t, err)
	return done
}

func TestGetTaskStatus(t *testing.T) {
	ctx := context.Background()
	device := uuid.New()

	t.Run("completed task carries a fetchable result", func(t *testing.T) {
		q, tasks := newQueryFixture(t, fakeResolver{})
		task := storeTask(t, tasks, device, "renders/out.png")

		view, err := q.GetTaskStatus(ctx, task.ID, device)

		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusCompleted, view.Task.Status)
		assert.Equal(t, "https://cdn.test/renders/out.png", view.ResultURL)
	})

	t.Run("pending task has no result", func(t *testing.T) {
		q, tasks := newQueryFixture(t, fakeResolver{})
		task := storeTask(t, tasks, device, "")

		view, err := q.GetTaskStatus(ctx, task.ID, device)

		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusPending, view.Task.Status)
		assert.Empty(t, view.ResultURL)
	})

	t.Run("other device is forbidden", func(t *testing.T) {
		q, tasks := newQueryFixture(t, fakeResolver{})
		task := storeTask(t, tasks, device, "")

		_, err := q.GetTaskStatus(ctx, task.ID, uuid.New())

		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("unknown task", func(t *testing.T) {
		q, _ := newQueryFixture(t, fakeResolver{})

		_, err := q.GetTaskStatus(ctx, uuid.New(), device)

		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("unresolvable result is an error", func(t *testing.T) {
		q, tasks := newQueryFixture(t, fakeResolver{err: errStorageDown})
		task := storeTask(t, tasks, device, "renders/out.png")

		_, err := q.GetTaskStatus(ctx, task.ID, device)

		assert.ErrorIs(t, err, errStorageDown)
	})
}

func TestListTasks(t *testing.T) {
	ctx := context.Background()
	device := uuid.New()
	q, tasks := newQueryFixture(t, fakeResolver{})

	storeTask(t, tasks, device, "")
	time.Sleep(time.Millisecond)
	storeTask(t, tasks, device, "renders/done.png")
	storeTask(t, tasks, uuid.New(), "")

	all, err := q.ListTasks(ctx, device, store.TaskFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, domain.TaskStatusCompleted, all[0].Task.Status, "newest first")
	assert.Equal(t, "https://cdn.test/renders/done.png", all[0].ResultURL)

	pending, err := q.ListTasks(ctx, device, store.TaskFilter{Statuses: []domain.TaskStatus{domain.TaskStatusPending}})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.TaskStatusPending, pending[0].Task.Status)
}

func TestGetPairingStatus(t *testing.T) {
	q, _ := newQueryFixture(t, fakeResolver{})

	res, err := q.GetPairingStatus(context.Background(), "known")
	require.NoError(t, err)
	assert.Equal(t, domain.PairingStatusActive, res.Status)

	_, err = q.GetPairingStatus(context.Background(), "unknown")
	assert.ErrorIs(t, err, pairing.ErrTokenNotFound)
}
