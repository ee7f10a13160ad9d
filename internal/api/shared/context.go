package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/tryon-api/internal/domain"
	"go.opentelemetry.io/otel/trace"
)

// Key type for context values
type ContextKey string

// Context keys for various values
const (
	// DeviceContextKey holds the authenticated *domain.Device
	DeviceContextKey ContextKey = "device"

	// IdentityIDContextKey holds the identity id carried by a session token
	IdentityIDContextKey ContextKey = "identityID"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID adds a trace ID to the context. When the request already runs
// inside an OpenTelemetry span, the span's trace id is reused so logs and
// traces correlate.
func SetTraceID(ctx context.Context) context.Context {
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	} else {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithDevice stores the authenticated device in the context.
func WithDevice(ctx context.Context, device *domain.Device) context.Context {
	return context.WithValue(ctx, DeviceContextKey, device)
}

// DeviceFromContext returns the authenticated device, if any.
func DeviceFromContext(ctx context.Context) (*domain.Device, bool) {
	device, ok := ctx.Value(DeviceContextKey).(*domain.Device)
	return device, ok && device != nil
}

// WithIdentityID stores the session identity in the context.
func WithIdentityID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, IdentityIDContextKey, id)
}

// IdentityIDFromContext returns the session identity, or nil for a device
// that authenticated without a session.
func IdentityIDFromContext(ctx context.Context) *uuid.UUID {
	id, ok := ctx.Value(IdentityIDContextKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return nil
	}
	return &id
}

// generateTraceID creates a random 32-character hex trace ID.
// If crypto/rand fails it falls back to a random UUID, never a static value.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := rand.Read(b)
	if err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"bytes_requested", TraceIDLength,
			"fallback", "uuid")
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}
