package mocks

import (
	"context"
	"strings"
)

// MockURLResolver resolves storage references for testing. Without a custom
// function, URLs pass through and keys are prefixed with BaseURL.
type MockURLResolver struct {
	ResolveURLFn func(ctx context.Context, ref string) (string, error)
	BaseURL      string
}

// ResolveURL implements the URL resolver interfaces of the service and notify packages
func (m *MockURLResolver) ResolveURL(ctx context.Context, ref string) (string, error) {
	if m.ResolveURLFn != nil {
		return m.ResolveURLFn(ctx, ref)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	base := m.BaseURL
	if base == "" {
		base = "https://storage.test/"
	}
	return base + ref, nil
}
