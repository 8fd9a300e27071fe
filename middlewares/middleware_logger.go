package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yeremiapane/campus-gate/utils"
)

func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			// token websocket tidak boleh masuk log
			if c.Query("token") != "" {
				raw = "token=***"
			}
			path = path + "?" + raw
		}

		fields := logrus.Fields{
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
			"ip":      c.ClientIP(),
			"path":    path,
		}
		if guardID, ok := GuardID(c); ok {
			fields["guard_id"] = guardID
		}
		utils.InfoLogger.WithFields(fields).Info("request")
	}
}
