package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/tryon-api/internal/worker"
)

// MockGateway implements worker.Gateway for testing
type MockGateway struct {
	// SubmitFn allows test cases to mock the Submit behavior
	SubmitFn func(ctx context.Context, req worker.SubmitRequest) (string, error)

	// CancelFn allows test cases to observe Cancel calls
	CancelFn func(ctx context.Context, externalJobID string)

	// JobID is returned by Submit when SubmitFn is not set
	JobID string

	mu        sync.Mutex
	cancelled []string
}

var _ worker.Gateway = (*MockGateway)(nil)

// Submit implements the worker.Gateway interface
func (m *MockGateway) Submit(ctx context.Context, req worker.SubmitRequest) (string, error) {
	if m.SubmitFn != nil {
		return m.SubmitFn(ctx, req)
	}
	return m.JobID, nil
}

// Cancel implements the worker.Gateway interface
func (m *MockGateway) Cancel(ctx context.Context, externalJobID string) {
	m.mu.Lock()
	m.cancelled = append(m.cancelled, externalJobID)
	m.mu.Unlock()
	if m.CancelFn != nil {
		m.CancelFn(ctx, externalJobID)
	}
}

// Cancelled returns the job ids Cancel was called with.
func (m *MockGateway) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.cancelled))
	copy(out, m.cancelled)
	return out
}
