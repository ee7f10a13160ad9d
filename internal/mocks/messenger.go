package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/tryon-api/internal/platform/wechat"
)

// SentArticle records one SendArticle call.
type SentArticle struct {
	OpenID  string
	Article wechat.Article
}

// MockMessenger implements notify.Messenger for testing. It is safe for
// concurrent use and records every call.
type MockMessenger struct {
	// SendArticleFn allows test cases to mock the SendArticle behavior
	SendArticleFn func(ctx context.Context, openID string, article wechat.Article) error

	mu   sync.Mutex
	sent []SentArticle
}

// SendArticle implements the notify.Messenger interface
func (m *MockMessenger) SendArticle(ctx context.Context, openID string, article wechat.Article) error {
	m.mu.Lock()
	m.sent = append(m.sent, SentArticle{OpenID: openID, Article: article})
	m.mu.Unlock()

	if m.SendArticleFn != nil {
		return m.SendArticleFn(ctx, openID, article)
	}
	return nil
}

// Sent returns the calls made so far.
func (m *MockMessenger) Sent() []SentArticle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentArticle, len(m.sent))
	copy(out, m.sent)
	return out
}
