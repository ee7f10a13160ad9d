package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/store"
)

// TaskStore implements store.TaskStore in memory.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*domain.Task
	byJob map[string]uuid.UUID
	now   func() time.Time
}

// NewTaskStore creates an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks: make(map[uuid.UUID]*domain.Task),
		byJob: make(map[string]uuid.UUID),
		now:   time.Now,
	}
}

var _ store.TaskStore = (*TaskStore)(nil)

// Create implements store.TaskStore.
func (s *TaskStore) Create(_ context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: new tasks must be pending", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[task.ID]; ok {
		return fmt.Errorf("%w: task %s", store.ErrDuplicate, task.ID)
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Transition implements store.TaskStore.
func (s *TaskStore) Transition(
	_ context.Context,
	id uuid.UUID,
	expected, next domain.TaskStatus,
	fields domain.TransitionFields,
) (*domain.Task, error) {
	if err := domain.CheckTransition(expected, next, fields); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	if t.Status != expected {
		return nil, store.ErrStaleTransition
	}
	if fields.ExternalJobID != nil {
		if owner, taken := s.byJob[*fields.ExternalJobID]; taken && owner != id {
			return nil, store.ErrExternalJobIDExists
		}
		s.byJob[*fields.ExternalJobID] = id
	}

	t.Apply(next, domain.TransitionFields{
		ExternalJobID:  cloneString(fields.ExternalJobID),
		ResultLocation: cloneString(fields.ResultLocation),
		ErrorDetail:    cloneString(fields.ErrorDetail),
	}, s.now())
	return cloneTask(t), nil
}

// Get implements store.TaskStore.
func (s *TaskStore) Get(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(t), nil
}

// GetByExternalJobID implements store.TaskStore.
func (s *TaskStore) GetByExternalJobID(_ context.Context, jobID string) (*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byJob[jobID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(s.tasks[id]), nil
}

// ListByDevice implements store.TaskStore.
func (s *TaskStore) ListByDevice(_ context.Context, deviceID uuid.UUID, filter store.TaskFilter) ([]*domain.Task, error) {
	s.mu.RLock()
	var out []*domain.Task
	for _, t := range s.tasks {
		if t.DeviceID != deviceID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, t.Status) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, filter.Limit, filter.Offset), nil
}

// ListStale implements store.TaskStore.
func (s *TaskStore) ListStale(_ context.Context, status domain.TaskStatus, cutoff time.Time, limit int) ([]*domain.Task, error) {
	s.mu.RLock()
	var out []*domain.Task
	for _, t := range s.tasks {
		if t.Status == status && t.CreatedAt.Before(cutoff) {
			out = append(out, cloneTask(t))
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}
