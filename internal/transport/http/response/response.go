package response

import (
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"syscall"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeNotFound           = 40400
	CodeMethodNotAllowed   = 40500
	CodeTooManyRequests    = 42900
	CodeInternalServer     = 50000
	CodeServiceUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK writes the envelope without HTML escaping so names such as
// "[無解答] lab.ipynb" stay readable.
func OK(c *gin.Context, data interface{}) {
	c.PureJSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.PureJSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// HTMLError writes the small error document every service uses:
// <h1>Error 404</h1><p>message</p>.
func HTMLError(c *gin.Context, httpStatus int, message string) {
	body := fmt.Sprintf("<h1>Error %d</h1><p>%s</p>", httpStatus, html.EscapeString(message))
	c.Data(httpStatus, "text/html; charset=utf-8", []byte(body))
}

// IsClientGone reports whether err means the client closed its side of the
// connection before the response was fully written.
func IsClientGone(err error) bool {
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed)
}
