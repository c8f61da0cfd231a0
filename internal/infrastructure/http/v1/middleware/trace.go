package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	appctx "erpcounter/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace attaches request and trace IDs to the request context. A valid
// OpenTelemetry span context wins over the X-Trace-ID header so log lines
// and spans share one trace ID.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		tc := appctx.NewTraceContext()

		if id := c.GetHeader(HeaderRequestID); id != "" {
			tc.RequestID = id
		}
		span := trace.SpanFromContext(c.Request.Context())
		if sc := span.SpanContext(); sc.IsValid() {
			tc.TraceID = sc.TraceID().String()
			tc.SpanID = sc.SpanID().String()
			span.SetAttributes(attribute.String("request_id", tc.RequestID))
		} else if id := c.GetHeader(HeaderTraceID); id != "" {
			tc.TraceID = id
		}

		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), tc))
		c.Set("trace_id", tc.TraceID)
		c.Set("request_id", tc.RequestID)

		c.Header(HeaderRequestID, tc.RequestID)
		c.Header(HeaderTraceID, tc.TraceID)

		c.Next()
	}
}
