package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"jupyter-proxy-apps/internal/app"
	"jupyter-proxy-apps/internal/transport/http/response"
)

type BoardHandler struct {
	boardService *app.BoardService
	title        string
}

func NewBoardHandler(boardService *app.BoardService, title string) *BoardHandler {
	return &BoardHandler{boardService: boardService, title: title}
}

func (h *BoardHandler) Page(c *gin.Context) {
	comments, err := h.boardService.List(c.Request.Context(), 0)
	if err != nil {
		_ = c.Error(err)
		response.HTMLError(c, http.StatusInternalServerError, "list comments failed")
		return
	}

	c.HTML(http.StatusOK, "board.html", gin.H{
		"Title":      h.title,
		"Comments":   comments,
		"MaxName":    app.MaxNameRunes,
		"MaxMessage": app.MaxMessageRunes,
	})
}

func (h *BoardHandler) Post(c *gin.Context) {
	_, err := h.boardService.Post(c.Request.Context(), app.PostCommentInput{
		Name:    c.PostForm("name"),
		Message: c.PostForm("message"),
	})
	if err != nil {
		switch {
		case app.IsValidationError(err):
			response.HTMLError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrCommentEnqueue):
			response.HTMLError(c, http.StatusServiceUnavailable, err.Error())
		default:
			_ = c.Error(err)
			response.HTMLError(c, http.StatusInternalServerError, "save comment failed")
		}
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func (h *BoardHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	comments, err := h.boardService.List(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list comments failed")
		return
	}

	response.OK(c, comments)
}
