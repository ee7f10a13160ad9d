package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/phrazzld/tryon-api/internal/domain"
	"github.com/phrazzld/tryon-api/internal/events"
	"github.com/phrazzld/tryon-api/internal/pairing"
	"github.com/phrazzld/tryon-api/internal/worker"
	"github.com/stretchr/testify/mock"
)

// MockGateway mocks the worker.Gateway interface
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Submit(ctx context.Context, req worker.SubmitRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Cancel(ctx context.Context, externalJobID string) {
	m.Called(ctx, externalJobID)
}

// fakeResolver serves object keys from a fixed CDN prefix.
type fakeResolver struct {
	err error
}

func (f fakeResolver) ResolveURL(_ context.Context, ref string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	return "https://cdn.test/" + ref, nil
}

// recordingEmitter keeps every emitted transition.
type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.TaskTransitioned
	err    error
}

func (r *recordingEmitter) Emit(_ context.Context, e *events.TaskTransitioned) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

// count returns how many emitted transitions went to status.
func (r *recordingEmitter) count(to domain.TaskStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.To == to {
			n++
		}
	}
	return n
}

// terminalCount returns how many emitted transitions reached a terminal status.
func (r *recordingEmitter) terminalCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.To.IsTerminal() {
			n++
		}
	}
	return n
}

type pairingResolverFunc func(ctx context.Context, token string) (*pairing.Resolution, error)

func (f pairingResolverFunc) Resolve(ctx context.Context, token string) (*pairing.Resolution, error) {
	return f(ctx, token)
}

var errStorageDown = errors.New("storage unavailable")
