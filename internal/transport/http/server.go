package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	appsvc "jupyter-proxy-apps/internal/app"
	"jupyter-proxy-apps/internal/bootstrap"
	"jupyter-proxy-apps/internal/platform/rabbitmq"
	"jupyter-proxy-apps/internal/proxy"
	"jupyter-proxy-apps/internal/repository"
	"jupyter-proxy-apps/internal/transport/http/handler"
	"jupyter-proxy-apps/internal/transport/http/middleware"
	"jupyter-proxy-apps/internal/transport/http/response"
	"jupyter-proxy-apps/internal/transport/http/templates"
)

// NewRouter builds the route table of the service the app was started as.
func NewRouter(app *bootstrap.App) (*gin.Engine, error) {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLog(app.Log), middleware.Recovery(app.Log))

	switch app.Service {
	case bootstrap.ServiceBookmarks:
		registerBookmarks(router, app)
	case bootstrap.ServiceBoard:
		registerBoard(router, app)
	case bootstrap.ServiceNotes:
		registerNotes(router, app)
	case bootstrap.ServiceTypewords:
		registerTypewords(router, app)
	default:
		return nil, fmt.Errorf("no routes for service %q", app.Service)
	}
	return router, nil
}

func registerBookmarks(router *gin.Engine, app *bootstrap.App) {
	router.SetHTMLTemplate(templates.Load())
	healthHandler := handler.NewHealthHandler(app)
	bookmarksHandler := handler.NewBookmarksHandler(app.Config.Bookmarks, app.Address)

	router.GET("/healthz", healthHandler.Check)
	router.NoRoute(bookmarksHandler.Page)
}

func registerBoard(router *gin.Engine, app *bootstrap.App) {
	router.SetHTMLTemplate(templates.Load())
	router.HandleMethodNotAllowed = true

	var cache appsvc.CommentCache
	if c := app.CommentCache(); c != nil {
		cache = c
	}
	var publisher appsvc.AsyncCommentPublisher
	if app.MQConn != nil {
		publisher = rabbitmq.NewCommentPublisher(app.MQConn, app.Config.RabbitMQ.CommentPersistQueue)
	}
	boardService := appsvc.NewBoardService(
		repository.NewCommentRepository(app.DB),
		cache,
		publisher,
		app.Config.Board.ListLimit,
		app.Log,
	)
	healthHandler := handler.NewHealthHandler(app)
	boardHandler := handler.NewBoardHandler(boardService, app.Config.Board.Title)

	postHandlers := []gin.HandlerFunc{boardHandler.Post}
	if perMinute := app.Config.Board.PostRatePerMinute; perMinute > 0 {
		limiter := middleware.NewClientRateLimiter(perMinute)
		postHandlers = append([]gin.HandlerFunc{middleware.RateLimit(limiter)}, postHandlers...)
	}

	router.GET("/healthz", healthHandler.Check)
	router.GET("/", boardHandler.Page)
	router.POST("/", postHandlers...)
	router.GET("/api/comments", boardHandler.List)
	router.NoRoute(func(c *gin.Context) {
		response.HTMLError(c, http.StatusNotFound, "page not found")
	})
	router.NoMethod(func(c *gin.Context) {
		response.HTMLError(c, http.StatusMethodNotAllowed, "method not allowed")
	})
}

func registerNotes(router *gin.Engine, app *bootstrap.App) {
	router.SetHTMLTemplate(templates.Load())
	notesService := appsvc.NewNotesService(app.Config, app.Log)
	healthHandler := handler.NewHealthHandler(app)
	notesHandler := handler.NewNotesHandler(notesService)

	router.GET("/healthz", healthHandler.Check)
	router.GET("/", notesHandler.Page)
	router.GET("/view", notesHandler.View)

	api := router.Group("/api")
	api.GET("/courses", notesHandler.Courses)
	api.GET("/folders", notesHandler.Folders)
	api.GET("/files", notesHandler.Files)
	api.GET("/preview", notesHandler.Preview)

	router.NoRoute(notesHandler.NotFound)
}

// registerTypewords sends every path to the upstream; the proxy owns the
// whole URL space so no health route is added.
func registerTypewords(router *gin.Engine, app *bootstrap.App) {
	p := proxy.New(app.Config, app.Log)
	app.Log.WithFields(logrus.Fields{
		"upstream": app.Config.ProxyBaseURL(),
		"prefix":   app.Config.ProxyPrefix(),
	}).Info("proxy ready")
	router.NoRoute(gin.WrapH(p))
}
