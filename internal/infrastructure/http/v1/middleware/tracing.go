package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request with otelgin and tags it with the
// counter being addressed. Install it before Trace so log lines reuse the
// span's trace ID.
func Tracing(serviceName string) gin.HandlersChain {
	return gin.HandlersChain{otelgin.Middleware(serviceName), tagSpan}
}

func tagSpan(c *gin.Context) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		if code := c.Param("code"); code != "" {
			span.SetAttributes(attribute.String("counter.sequence_code", code))
		}
	}
	c.Next()
}
