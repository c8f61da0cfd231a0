package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"erpcounter/internal/core/apperror"
	appctx "erpcounter/internal/core/context"
	"erpcounter/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}

		ctx := c.Request.Context()
		status := apperror.GetHTTPStatus(err)

		if appErr, ok := apperror.AsAppError(err); ok {
			if appErr.Err != nil {
				logger.Error(ctx, "request error",
					"code", appErr.Code,
					"cause", appErr.Err,
				)
			}

			details := appErr.Details
			if status >= http.StatusInternalServerError {
				details = withRequestID(details, appctx.GetRequestID(ctx))
			}
			c.JSON(status, gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": details,
			})
			return
		}

		logger.Error(ctx, "unhandled error", "error", err)
		c.JSON(status, gin.H{
			"code":    apperror.CodeInternal,
			"message": "Internal server error",
			"details": withRequestID(nil, appctx.GetRequestID(ctx)),
		})
	}
}

// withRequestID copies details and adds the request ID so 5xx responses can be
// matched to server logs.
func withRequestID(details map[string]any, requestID string) map[string]any {
	out := make(map[string]any, len(details)+1)
	for k, v := range details {
		out[k] = v
	}
	if requestID != "" {
		out["request_id"] = requestID
	}
	return out
}
