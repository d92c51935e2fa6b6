package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/harshraj78/legal-check-ai/pkg/logger"
)

// Recovery turns a handler panic into a 500 carrying the request id.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error(c.Request.Context(), "panic recovered",
					"error", err,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)

				InternalError(c, "Internal server error")
			}
		}()

		c.Next()
	}
}

// InternalError aborts with a 500 whose body names the request, so a client
// report can be matched to the server log.
func InternalError(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":      msg,
		"request_id": GetRequestID(c),
	})
}
