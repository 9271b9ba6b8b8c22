package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appctx "ledgerd/internal/core/context"
)

func TestFromContext_AddsRequestAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithLogger(context.Background(), &Logger{zap.New(core).Sugar()})
	ctx = appctx.WithTrace(ctx, appctx.Trace{RequestID: "req-1", Origin: "api"})
	ctx = appctx.WithActor(ctx, &appctx.Actor{ID: "clerk-7", Source: "api"})

	Info(ctx, "payment recorded", "amount", "12.00")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "api", fields["origin"])
	assert.Equal(t, "clerk-7", fields["actor"])
	assert.Equal(t, "12.00", fields["amount"])
	assert.NotContains(t, fields, "trace_id", "no span is active")
}

func TestFromContext_WithoutLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		Warn(context.Background(), "nothing configured")
	})
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := (&Logger{zap.New(core).Sugar()}).WithComponent("worker")

	l.Infow("started")
	l.Debugw("dropped below level")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "worker", logs.All()[0].ContextMap()["component"])
}
