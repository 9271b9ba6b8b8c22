package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "ledgerd/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"

	keyRequestID = "request_id"
)

// Trace takes the request id from X-Request-ID or generates one. When an
// OpenTelemetry span is active its trace id is echoed in X-Trace-ID.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = appctx.NewRequestID()
		}

		ctx := appctx.WithTrace(c.Request.Context(), appctx.Trace{RequestID: requestID, Origin: "api"})
		c.Request = c.Request.WithContext(ctx)

		c.Set(keyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		if traceID := appctx.OTelTraceID(ctx); traceID != "" {
			c.Header(HeaderTraceID, traceID)
		}

		c.Next()
	}
}
