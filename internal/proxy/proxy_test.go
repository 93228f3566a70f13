package proxy

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/logging"
)

func newTestProxy(t *testing.T, upstream string, prefix string) *Proxy {
	t.Helper()
	u, err := url.Parse(upstream)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := &config.Config{Proxy: config.ProxyConfig{
		ServiceName:    "typewords",
		TargetHost:     host,
		TargetPort:     port,
		TimeoutSeconds: 5,
		Prefix:         prefix,
	}}
	return New(cfg, logging.Discard())
}

func TestForwardsMethodQueryAndBody(t *testing.T) {
	var gotMethod, gotURI, gotBody, gotHost string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotURI = r.URL.RequestURI()
		gotHost = r.Host
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "")
	req := httptest.NewRequest(http.MethodPost, "/api/words?lang=en&page=2", strings.NewReader(`{"word":"gopher"}`))
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "created", rec.Body.String())
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/api/words?lang=en&page=2", gotURI)
	assert.Equal(t, `{"word":"gopher"}`, gotBody)
	assert.Equal(t, strings.TrimPrefix(upstream.URL, "http://"), gotHost)
}

func TestGetRelaysStatusAndBody(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/foo" && r.URL.Query().Get("x") == "1" {
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/foo?x=1", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestHopByHopHeadersAreDropped(t *testing.T) {
	var seen http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		w.Header().Set("Content-Encoding", "identity")
		w.Header().Set("X-Upstream", "yes")
		_, _ = w.Write([]byte("plain"))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Custom", "kept")
	req.Header.Set("Keep-Alive", "timeout=5")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("Accept-Encoding", "br")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.NotNil(t, seen)
	assert.Equal(t, "kept", seen.Get("X-Custom"))
	assert.Empty(t, seen.Get("Keep-Alive"))
	assert.Empty(t, seen.Get("Content-Encoding"))
	assert.NotEqual(t, "br", seen.Get("Accept-Encoding"))

	assert.Equal(t, "yes", rec.Header().Get("X-Upstream"))
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.Empty(t, rec.Header().Get("Transfer-Encoding"))
	assert.Equal(t, "plain", rec.Body.String())
}

func TestRedirectIsRelayedAndRewritten(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/old":
			http.Redirect(w, r, "/login?next=%2F", http.StatusFound)
		case "/away":
			http.Redirect(w, r, "https://example.com/elsewhere", http.StatusFound)
		case "/home":
			w.Header().Set("Location", "/user/alice/typewords")
			w.WriteHeader(http.StatusFound)
		default:
			t.Errorf("redirect was followed to %s", r.URL.Path)
		}
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "/user/alice/typewords/")

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/old", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/user/alice/typewords/login?next=%2F", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/away", nil))
	assert.Equal(t, "https://example.com/elsewhere", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/home", nil))
	assert.Equal(t, "/user/alice/typewords", rec.Header().Get("Location"))
}

func TestUpstreamHeadersReplaceLocalOnes(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "upstream-id")
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "")
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-Id", "local-id")
	rec.Header().Set("X-Frame-Options", "DENY")
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"upstream-id"}, rec.Header().Values("X-Request-Id"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestSetCookiePathIsRewritten(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "session=abc; Path=/; HttpOnly")
		w.Header().Add("Set-Cookie", "theme=dark")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "/user/alice/typewords/")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{
		"session=abc; Path=/user/alice/typewords/; HttpOnly",
		"theme=dark; Path=/user/alice/typewords/",
	}, rec.Header().Values("Set-Cookie"))
}

func TestUnreachableUpstreamIsBadGateway(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p := newTestProxy(t, "http://"+addr, "")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "http://"+addr)
}

func TestSlowUpstreamIsGatewayTimeout(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer upstream.Close()

	p := newTestProxy(t, upstream.URL, "")
	p.client.Timeout = 50 * time.Millisecond

	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestClassifyError(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, http.StatusBadGateway, classifyError(&url.Error{Op: "Get", URL: "http://x", Err: dialErr}))
	assert.Equal(t, http.StatusGatewayTimeout, classifyError(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, classifyError(errors.New("boom")))
}

func TestRewriteLocation(t *testing.T) {
	const target = "localhost:3000"
	const prefix = "/user/bob/typewords/"

	cases := map[string]string{
		"/login":                                   "/user/bob/typewords/login",
		"http://localhost:3000/a/b?c=d#e":          "/user/bob/typewords/a/b?c=d#e",
		"http://localhost:3000":                    "/user/bob/typewords/",
		"https://github.com/":                      "https://github.com/",
		"next/page":                                "next/page",
		"/user/bob/typewords/already":              "/user/bob/typewords/already",
		"/user/bob/typewords":                      "/user/bob/typewords",
		"/user/bob/typewords?x=1":                  "/user/bob/typewords?x=1",
		"/user/bob/typewordsX":                     "/user/bob/typewords/user/bob/typewordsX",
		"http://localhost:3000/user/bob/typewords": "/user/bob/typewords",
		"//cdn.example.com/lib.js":                 "//cdn.example.com/lib.js",
	}
	for in, want := range cases {
		assert.Equal(t, want, rewriteLocation(in, target, prefix), in)
	}
	assert.Equal(t, "/login", rewriteLocation("/login", target, "/"))
}

func TestRewriteCookiePath(t *testing.T) {
	assert.Equal(t, "a=1; Path=/p/", rewriteCookiePath("a=1", "/p/"))
	assert.Equal(t, "a=1; Path=/p/; Secure", rewriteCookiePath("a=1; path=/x; Secure", "/p/"))
}

func TestWebSocketBridge(t *testing.T) {
	var gotQuery, gotCookie string
	upgrader := websocket.Upgrader{Subprotocols: []string{"words.v1"}}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotCookie = r.Header.Get("Cookie")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, append([]byte("echo:"), msg...)); err != nil {
				return
			}
		}
	}))
	defer upstream.Close()

	front := httptest.NewServer(newTestProxy(t, upstream.URL, ""))
	defer front.Close()

	dialer := websocket.Dialer{Subprotocols: []string{"words.v1"}}
	header := http.Header{"Cookie": []string{"sid=42"}}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(front.URL, "http")+"/ws?room=7", header)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, "words.v1", conn.Subprotocol())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "echo:hello", string(msg))

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}))
	mt, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, []byte("echo:\x01\x02\x03"), msg)

	assert.Equal(t, "room=7", gotQuery)
	assert.Equal(t, "sid=42", gotCookie)
}

func TestWebSocketUpstreamDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	front := httptest.NewServer(newTestProxy(t, "http://"+addr, ""))
	defer front.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(front.URL, "http")+"/ws", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}
