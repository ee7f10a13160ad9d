package mocks

import (
	"context"
	"time"

	"github.com/phrazzld/tryon-api/internal/platform/wechat"
)

// MockCodeIssuer implements pairing.CodeIssuer for testing
type MockCodeIssuer struct {
	// CreateSceneCodeFn allows test cases to mock the CreateSceneCode behavior
	CreateSceneCodeFn func(ctx context.Context, scene string, ttl time.Duration) (*wechat.SceneCode, error)
}

// CreateSceneCode implements the pairing.CodeIssuer interface. Without a
// custom function it returns a code whose URL embeds the scene.
func (m *MockCodeIssuer) CreateSceneCode(ctx context.Context, scene string, ttl time.Duration) (*wechat.SceneCode, error) {
	if m.CreateSceneCodeFn != nil {
		return m.CreateSceneCodeFn(ctx, scene, ttl)
	}
	return &wechat.SceneCode{
		Ticket:   "ticket-" + scene,
		URL:      "https://qr.test/" + scene,
		ImageURL: "https://qr.test/img/" + scene,
	}, nil
}
