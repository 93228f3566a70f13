package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/transport/http/response"
)

const (
	RequestIDHeader     = "X-Request-Id"
	ContextRequestIDKey = "request_id"
)

// RequestLog writes one line per request and tags it with a request id,
// reusing the caller's X-Request-Id when present.
func RequestLog(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		entry := log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"latency":    time.Since(start).String(),
			"bytes":      c.Writer.Size(),
		})

		var errs []error
		for _, e := range c.Errors {
			if response.IsClientGone(e.Err) {
				continue
			}
			errs = append(errs, e.Err)
		}

		switch {
		case len(errs) > 0:
			entry.WithField("errors", errs).Warn("request failed")
		case c.Writer.Status() >= 500:
			entry.Error("request")
		default:
			entry.Info("request")
		}
	}
}
