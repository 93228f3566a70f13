package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/transport/http/response"
)

// Recovery turns a handler panic into the 500 error page.
func Recovery(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok {
				if errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				if response.IsClientGone(err) {
					c.Abort()
					return
				}
			}

			log.WithFields(logrus.Fields{
				"panic": rec,
				"path":  c.Request.URL.Path,
				"stack": string(debug.Stack()),
			}).Error("handler panicked")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.HTMLError(c, http.StatusInternalServerError, "internal server error")
			c.Abort()
		}()
		c.Next()
	}
}
