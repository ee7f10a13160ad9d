package jobs

import (
	"context"

	"github.com/google/uuid"
)

// Job represents a unit of background work to be processed
// Version: 1.0
type Job interface {
	// ID returns the job's unique identifier
	ID() uuid.UUID

	// Type returns the job type identifier, used in logs and metrics
	Type() string

	// Execute runs the job logic
	Execute(ctx context.Context) error
}

// QueueReader provides read-only access to the job channel
// Version: 1.0
type QueueReader interface {
	// Channel returns a read-only channel for consuming jobs
	Channel() <-chan Job
}

// QueueWriter provides write access to the job queue
// Version: 1.0
type QueueWriter interface {
	// Enqueue adds a job to the queue without blocking.
	// Returns ErrQueueFull or ErrQueueClosed when the job cannot be accepted.
	Enqueue(job Job) error
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      uuid.UUID
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a Job that runs fn.
func NewFuncJob(jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: uuid.New(), jobType: jobType, fn: fn}
}

// ID implements Job.
func (j *FuncJob) ID() uuid.UUID { return j.id }

// Type implements Job.
func (j *FuncJob) Type() string { return j.jobType }

// Execute implements Job.
func (j *FuncJob) Execute(ctx context.Context) error { return j.fn(ctx) }
