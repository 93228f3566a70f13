package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func bufferLogger() (*logrus.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.Out = &buf
	logger.Formatter = &logrus.JSONFormatter{}
	return logrus.NewEntry(logger), &buf
}

func TestRequestLogSetsRequestID(t *testing.T) {
	log, buf := bufferLogger()
	router := gin.New()
	router.Use(RequestLog(log))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextRequestIDKey))
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	id := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)
	assert.Equal(t, id, rec.Body.String())
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	assert.Contains(t, buf.String(), `"status":200`)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestRequestLogSkipsClientGoneErrors(t *testing.T) {
	log, buf := bufferLogger()
	router := gin.New()
	router.Use(RequestLog(log))
	router.GET("/gone", func(c *gin.Context) {
		_ = c.Error(syscall.EPIPE)
		c.Status(http.StatusOK)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/gone", nil))
	assert.NotContains(t, buf.String(), "request failed")
}

func TestRecoveryWritesErrorPage(t *testing.T) {
	log, buf := bufferLogger()
	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/boom", func(c *gin.Context) {
		panic("kaboom")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "<h1>Error 500</h1><p>internal server error</p>", rec.Body.String())
	assert.Contains(t, buf.String(), "kaboom")
}

func TestRateLimitRejectsBurst(t *testing.T) {
	limiter := NewClientRateLimiter(2)
	router := gin.New()
	router.POST("/", RateLimit(limiter), func(c *gin.Context) {
		c.Status(http.StatusSeeOther)
	})

	post := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = ip + ":5000"
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusSeeOther, post("10.0.0.1"))
	assert.Equal(t, http.StatusSeeOther, post("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, post("10.0.0.1"))
	assert.Equal(t, http.StatusSeeOther, post("10.0.0.2"))
}

func TestRateLimiterDropsIdleClients(t *testing.T) {
	limiter := NewClientRateLimiter(1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("a"))
	assert.False(t, limiter.Allow("a"))
	assert.Equal(t, 1, limiter.size())

	now = now.Add(limiterIdleTTL + limiterSweepGap + time.Second)
	assert.True(t, limiter.Allow("b"))
	assert.Equal(t, 1, limiter.size())
}
