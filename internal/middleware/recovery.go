package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/haierkeys/sticky-note-canvas-service/pkg/app"
	"github.com/haierkeys/sticky-note-canvas-service/pkg/code"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryWithLogger 创建带日志器的 Recovery 中间件
func RecoveryWithLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				errorMsg := fmt.Sprintf("%v", err)
				logger.Error("Recovered from panic",
					zap.String("trace_id", GetTraceIDFromGin(c)),
					zap.String("router", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.String("query", c.Request.URL.RawQuery),
					zap.String("ip", c.ClientIP()),
					zap.String("panic_value", errorMsg),
					zap.String("stack", string(debug.Stack())),
				)

				app.NewResponse(c).ToResponse(code.ErrorServerInternal.Clone().WithDetails(errorMsg))
				c.Abort()
			}
		}()

		c.Next()
	}
}
