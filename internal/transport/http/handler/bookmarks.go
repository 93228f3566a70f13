package handler

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/listener"
	"jupyter-proxy-apps/internal/transport/http/response"
)

type BookmarksHandler struct {
	cfg  config.BookmarksConfig
	addr listener.Address
}

func NewBookmarksHandler(cfg config.BookmarksConfig, addr listener.Address) *BookmarksHandler {
	return &BookmarksHandler{cfg: cfg, addr: addr}
}

// Page answers every path with the bookmark grid.
func (h *BookmarksHandler) Page(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Header("Allow", "GET, HEAD")
		response.HTMLError(c, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	c.HTML(http.StatusOK, "bookmarks.html", gin.H{
		"Title":         h.cfg.Title,
		"Heading":       h.cfg.Heading,
		"Links":         h.cfg.Links,
		"Path":          c.Request.URL.RequestURI(),
		"ServerAddress": h.addr.String(),
		"Headers":       headerLines(c.Request),
	})
}

// headerLines lists the request headers, one "Name: value" per line, with
// the cookie value hidden.
func headerLines(r *http.Request) []string {
	lines := []string{"Host: " + r.Host}
	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "Cookie" {
			lines = append(lines, "Cookie: (hidden)")
			continue
		}
		lines = append(lines, name+": "+strings.Join(r.Header.Values(name), ", "))
	}
	return lines
}
