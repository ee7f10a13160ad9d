package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewTask(t *testing.T) {
	t.Parallel()

	deviceID := uuid.New()
	task, err := NewTask(deviceID, nil, " photos/abc.jpg ", []Garment{
		{ImageRef: "https://shop.example.com/top.jpg", Category: GarmentTop},
	})

	require.NoError(t, err)
	assert.Equal(t, TaskStatusPending, task.Status)
	assert.Equal(t, "photos/abc.jpg", task.PhotoRef)
	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Nil(t, task.ExternalJobID)
	assert.Nil(t, task.ResultLocation)
}

func TestValidateGarments(t *testing.T) {
	t.Parallel()

	top := Garment{ImageRef: "top.jpg", Category: GarmentTop}
	bottom := Garment{ImageRef: "bottom.jpg", Category: GarmentBottom}
	dress := Garment{ImageRef: "dress.jpg", Category: GarmentDress}

	tests := []struct {
		name     string
		garments []Garment
		wantErr  error
	}{
		{"single top", []Garment{top}, nil},
		{"single dress", []Garment{dress}, nil},
		{"top and bottom", []Garment{bottom, top}, nil},
		{"none", nil, ErrGarmentCount},
		{"three", []Garment{top, bottom, dress}, ErrGarmentCount},
		{"dress with top", []Garment{dress, top}, ErrGarmentCombination},
		{"two tops", []Garment{top, top}, ErrGarmentCombination},
		{"unknown category", []Garment{{ImageRef: "x.jpg", Category: "hat"}}, ErrInvalidGarment},
		{"missing image", []Garment{{Category: GarmentTop}}, ErrInvalidGarment},
		{"bad purchase url", []Garment{{ImageRef: "x.jpg", Category: GarmentTop, PurchaseURL: "not a url"}}, ErrInvalidGarment},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateGarments(tc.garments)
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestCheckTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		from   TaskStatus
		to     TaskStatus
		fields TransitionFields
		ok     bool
	}{
		{"submit", TaskStatusPending, TaskStatusProcessing, TransitionFields{ExternalJobID: strPtr("job-1")}, true},
		{"submit without job id", TaskStatusPending, TaskStatusProcessing, TransitionFields{}, false},
		{"rejected", TaskStatusPending, TaskStatusFailed, TransitionFields{ErrorDetail: strPtr("bad photo")}, true},
		{"failed without detail", TaskStatusProcessing, TaskStatusFailed, TransitionFields{}, false},
		{"complete", TaskStatusProcessing, TaskStatusCompleted, TransitionFields{ResultLocation: strPtr("https://cdn/x.png")}, true},
		{"complete without result", TaskStatusProcessing, TaskStatusCompleted, TransitionFields{}, false},
		{"complete from pending", TaskStatusPending, TaskStatusCompleted, TransitionFields{ResultLocation: strPtr("x")}, false},
		{"cancel pending", TaskStatusPending, TaskStatusCancelled, TransitionFields{}, true},
		{"cancel processing", TaskStatusProcessing, TaskStatusCancelled, TransitionFields{}, true},
		{"cancel carrying result", TaskStatusProcessing, TaskStatusCancelled, TransitionFields{ResultLocation: strPtr("x")}, false},
		{"leave completed", TaskStatusCompleted, TaskStatusFailed, TransitionFields{ErrorDetail: strPtr("late")}, false},
		{"leave cancelled", TaskStatusCancelled, TaskStatusCompleted, TransitionFields{ResultLocation: strPtr("x")}, false},
		{"job id on failure", TaskStatusPending, TaskStatusFailed, TransitionFields{ExternalJobID: strPtr("j"), ErrorDetail: strPtr("e")}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckTransition(tc.from, tc.to, tc.fields)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)
			}
		})
	}
}

func TestTaskApply(t *testing.T) {
	t.Parallel()

	task := &Task{Status: TaskStatusPending}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	task.Apply(TaskStatusProcessing, TransitionFields{ExternalJobID: strPtr("job-9")}, at)
	assert.Equal(t, TaskStatusProcessing, task.Status)
	assert.Equal(t, "job-9", *task.ExternalJobID)
	assert.Equal(t, at, task.UpdatedAt)

	task.Apply(TaskStatusCompleted, TransitionFields{ResultLocation: strPtr("results/x.png")}, at)
	assert.Equal(t, "job-9", *task.ExternalJobID, "job id survives later transitions")
	assert.True(t, task.Status.IsTerminal())
}

func TestPrimaryPurchaseURL(t *testing.T) {
	t.Parallel()

	task := &Task{Garments: []Garment{
		{ImageRef: "a", Category: GarmentTop},
		{ImageRef: "b", Category: GarmentBottom, PurchaseURL: "https://shop.example.com/b"},
	}}
	assert.Equal(t, "https://shop.example.com/b", task.PrimaryPurchaseURL())
	assert.Empty(t, (&Task{}).PrimaryPurchaseURL())
}
