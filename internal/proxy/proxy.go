package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"jupyter-proxy-apps/internal/config"
	"jupyter-proxy-apps/internal/transport/http/response"
)

// Proxy forwards every request it receives to one local upstream server,
// over plain HTTP or as a websocket bridge.
type Proxy struct {
	target  string
	baseURL string
	prefix  string

	client *http.Client
	dialer *websocket.Dialer
	log    *logrus.Entry
}

func New(cfg *config.Config, log *logrus.Entry) *Proxy {
	timeout := time.Duration(cfg.Proxy.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &Proxy{
		target:  cfg.ProxyTarget(),
		baseURL: cfg.ProxyBaseURL(),
		prefix:  cfg.ProxyPrefix(),
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			// Redirects are relayed to the browser, never followed here.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
		log: log.WithField("upstream", cfg.ProxyBaseURL()),
	}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.RequestURI(),
	}).Debug("forwarding request")

	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		p.serveWebSocket(w, r)
		return
	}
	p.serveHTTP(w, r)
}

func (p *Proxy) upstreamURL(scheme string, r *http.Request) string {
	u := scheme + "://" + p.target + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		u += "?" + r.URL.RawQuery
	}
	return u
}

func (p *Proxy) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		p.log.WithError(err).Warn("read client request body failed")
		p.writeError(w, http.StatusBadRequest, err)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, p.upstreamURL("http", r), bytes.NewReader(body))
	if err != nil {
		p.writeError(w, http.StatusInternalServerError, err)
		return
	}
	copyHeader(req.Header, r.Header, "Accept-Encoding", "Host")
	req.Host = p.target
	req.ContentLength = int64(len(body))

	resp, err := p.client.Do(req)
	if err != nil {
		p.handleUpstreamError(w, r, err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		p.handleUpstreamError(w, r, err)
		return
	}

	// upstream values replace any set by middleware
	header := w.Header()
	for k := range resp.Header {
		header.Del(k)
	}
	copyHeader(header, resp.Header)
	if loc := header.Get("Location"); loc != "" {
		header.Set("Location", rewriteLocation(loc, p.target, p.prefix))
	}
	if cookies := header.Values("Set-Cookie"); len(cookies) > 0 {
		header.Del("Set-Cookie")
		for _, c := range cookies {
			header.Add("Set-Cookie", rewriteCookiePath(c, p.prefix))
		}
	}

	w.WriteHeader(resp.StatusCode)
	if _, err := w.Write(respBody); err != nil && !response.IsClientGone(err) {
		p.log.WithError(err).Warn("write response body failed")
	}
}

func (p *Proxy) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		p.log.WithField("path", r.URL.RequestURI()).Debug("client went away")
		return
	}
	status := classifyError(err)
	p.log.WithError(err).WithField("status", status).Warn("upstream request failed")
	p.writeError(w, status, err)
}

// classifyError maps a client error to the status sent back: dial failures
// are 502, timeouts 504 and everything else 500.
func classifyError(err error) int {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return http.StatusBadGateway
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return http.StatusBadGateway
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
