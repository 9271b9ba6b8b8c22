// Package context carries who is acting and which unit of work is running.
package context

import (
	"context"

	"github.com/google/uuid"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Trace correlates the log lines of one unit of work: an API request or a
// single worker job run.
type Trace struct {
	RequestID string
	// Origin is "api" or "job:<name>".
	Origin string
}

type traceKey struct{}

// WithTrace stores t in ctx.
func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFrom returns the Trace stored in ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// RequestID returns the request id of ctx or "".
func RequestID(ctx context.Context) string {
	t, _ := TraceFrom(ctx)
	return t.RequestID
}

// NewRequestID returns a time-ordered id, so ids sort with the log stream.
func NewRequestID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// OTelTraceID returns the trace id of the active OpenTelemetry span, or ""
// when tracing is disabled.
func OTelTraceID(ctx context.Context) string {
	sc := oteltrace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
