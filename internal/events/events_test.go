package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskTransitioned(t *testing.T) {
	task, err := domain.NewTask(uuid.New(), nil, "photos/a.jpg", []domain.Garment{
		{ImageRef: "garments/dress.png", Category: domain.GarmentDress},
	})
	require.NoError(t, err)
	task.Status = domain.TaskStatusCancelled

	event := NewTaskTransitioned(domain.TaskStatusPending, task, "cancel")

	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.Equal(t, domain.TaskStatusPending, event.From)
	assert.Equal(t, domain.TaskStatusCancelled, event.To)
	assert.Same(t, task, event.Task)
	assert.Equal(t, "cancel", event.Source)
	assert.WithinDuration(t, time.Now(), event.OccurredAt, 2*time.Second)
}

func TestHandlerFunc(t *testing.T) {
	var got *TaskTransitioned
	h := HandlerFunc(func(ctx context.Context, e *TaskTransitioned) error {
		got = e
		return nil
	})

	event := &TaskTransitioned{ID: uuid.New(), Task: &domain.Task{}}
	require.NoError(t, h.HandleTaskTransitioned(context.Background(), event))
	assert.Same(t, event, got)
}
