package handler

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"jupyter-proxy-apps/internal/app"
	"jupyter-proxy-apps/internal/transport/http/response"
)

const notesTitle = "上課講義"

type NotesHandler struct {
	notesService *app.NotesService
}

func NewNotesHandler(notesService *app.NotesService) *NotesHandler {
	return &NotesHandler{notesService: notesService}
}

func (h *NotesHandler) Page(c *gin.Context) {
	user := h.notesService.User()
	c.HTML(http.StatusOK, "notes.html", gin.H{
		"Title":  notesTitle,
		"User":   user,
		"Course": h.notesService.UserCourse(user),
	})
}

func (h *NotesHandler) Courses(c *gin.Context) {
	course := h.notesService.UserCourse(h.notesService.User())
	courses, err := h.notesService.AvailableCourses(course)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, courses)
}

func (h *NotesHandler) Folders(c *gin.Context) {
	folders, err := h.notesService.DateFolders(c.Query("course"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, folders)
}

func (h *NotesHandler) Files(c *gin.Context) {
	files, err := h.notesService.PreviewFiles(c.Query("course"), c.Query("folder"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, files)
}

func (h *NotesHandler) Preview(c *gin.Context) {
	text, err := h.notesService.Preview(c.Query("course"), c.Query("folder"), c.Query("file"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, text)
}

func (h *NotesHandler) View(c *gin.Context) {
	doc, err := h.notesService.View(c.Query("course"), c.Query("folder"), c.Query("file"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Name}))
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, doc.ContentType, doc.Body)
}

func (h *NotesHandler) NotFound(c *gin.Context) {
	response.HTMLError(c, http.StatusNotFound, fmt.Sprintf("404 Not Found: endpoint '%s' does not exist.", c.Request.URL.Path))
}

func (h *NotesHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidPath):
		response.HTMLError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrNotFound):
		response.HTMLError(c, http.StatusNotFound, "file not found")
	default:
		_ = c.Error(err)
		response.HTMLError(c, http.StatusInternalServerError, "API Error: "+err.Error())
	}
}
