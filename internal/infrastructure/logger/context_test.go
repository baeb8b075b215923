package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContext(t *testing.T) {
	logger, err := NewForEnvironment("development")
	require.NoError(t, err)

	ctx := WithContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
}

func TestFromContext_NotFound(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NotNil(t, logger)
	assert.NotPanics(t, func() { logger.Info("test") })
}

func TestFromContext_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")
	logger := FromContext(ctx)

	assert.NotNil(t, logger)
	logger.Info("test")
}

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetTenant(ctx))
	assert.Empty(t, GetChannel(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTenant(ctx, "https://shop.saleor.cloud/graphql/")
	ctx = WithChannel(ctx, "default-channel")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "https://shop.saleor.cloud/graphql/", GetTenant(ctx))
	assert.Equal(t, "default-channel", GetChannel(ctx))

	ctx = WithRequestID(ctx, "req-2")
	assert.Equal(t, "req-2", GetRequestID(ctx))
}

func TestContextKeys(t *testing.T) {
	keys := []contextKey{LoggerKey, RequestIDKey, TenantKey, ChannelKey}
	seen := make(map[contextKey]bool)
	for _, k := range keys {
		assert.False(t, seen[k], "duplicate key %s", k)
		seen[k] = true
	}
}

// =============================================================================
// Trace Correlation Tests
// =============================================================================

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetSpanID(context.Background()))
}

func TestGetTraceID_WithRecordingSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "test-span")
	defer span.End()

	assert.Equal(t, span.SpanContext().TraceID().String(), GetTraceID(ctx))
	assert.Equal(t, span.SpanContext().SpanID().String(), GetSpanID(ctx))
}

// =============================================================================
// ContextLogger Tests
// =============================================================================

func TestL_InjectsRequestFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	ctx = WithContext(ctx, base)
	ctx = WithRequestID(ctx, "req-9")
	ctx = WithTenant(ctx, "https://demo.saleor.io/graphql/")
	ctx = WithChannel(ctx, "eu")

	L(ctx).Info("sent", zap.String("event", "ORDER_CONFIRMED"))

	require.Equal(t, 1, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "https://demo.saleor.io/graphql/", fields["saleor_api_url"])
	assert.Equal(t, "eu", fields["channel_slug"])
	assert.Equal(t, "ORDER_CONFIRMED", fields["event"])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.NotEmpty(t, fields["span_id"])
}

func TestL_WithoutContextFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Warn("plain")

	require.Equal(t, 1, recorded.Len())
	assert.Empty(t, recorded.All()[0].Context)
	assert.Equal(t, zapcore.WarnLevel, recorded.All()[0].Level)
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	ctx := WithChannel(context.Background(), "us")

	cl := WithLogger(ctx, zap.New(core)).With(zap.String("app", "smtp"))
	cl.Error("failed")
	cl.Debug("details")

	require.Equal(t, 2, recorded.Len())
	fields := recorded.All()[0].ContextMap()
	assert.Equal(t, "smtp", fields["app"])
	assert.Equal(t, "us", fields["channel_slug"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}
	assert.NotPanics(t, func() {
		cl.Info("no logger")
		cl.With(zap.Int("n", 1)).Info("still fine")
		assert.NotNil(t, cl.Zap())
	})
}
