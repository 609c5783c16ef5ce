package middleware

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/solcials-sync/pkg/logger"
	"github.com/d60-Lab/solcials-sync/pkg/response"
)

// Recovery 捕获 panic 并上报 sentry；未调用 sentry.Init 时上报为空操作
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(c.Request)
			hub.Scope().SetTag("request_id", c.GetString(RequestIDKey))
			hub.Recover(rec)

			logger.Error("panic recovered",
				zap.String("path", c.Request.URL.Path),
				zap.Any("panic", rec),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Response{
				Code:    http.StatusInternalServerError,
				Message: "internal error",
			})
		}()
		c.Next()
	}
}
