package proxy

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

func (p *Proxy) serveWebSocket(w http.ResponseWriter, r *http.Request) {
	log := p.log.WithField("path", r.URL.RequestURI())

	reqHeader := make(http.Header)
	for k, v := range r.Header {
		if handshakeHeaders[k] || isHopHeader(k) {
			continue
		}
		reqHeader[k] = v
	}

	dialer := *p.dialer
	dialer.Subprotocols = websocket.Subprotocols(r)

	uri := p.upstreamURL("ws", r)
	log.Debugf("dialing upstream websocket %s", uri)
	upstreamConn, resp, err := dialer.DialContext(r.Context(), uri, reqHeader)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		log.WithError(err).Warn("could not dial upstream websocket")
		status := classifyError(err)
		if status == http.StatusInternalServerError && errors.Is(err, websocket.ErrBadHandshake) {
			status = http.StatusBadGateway
		}
		p.writeError(w, status, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	if proto := upstreamConn.Subprotocol(); proto != "" {
		upgrader.Subprotocols = []string{proto}
	}
	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.WithError(err).Warn("could not upgrade client connection")
		_ = upstreamConn.Close()
		return
	}

	log.Debug("websocket bridge established")
	if err := bridgeConn(upstreamConn, clientConn); err != nil {
		log.WithError(err).Info("websocket bridge closed with error")
		return
	}
	log.Debug("websocket bridge closed")
}

// bridgeConn relays frames between both connections until either side
// closes or fails. Both connections are closed on return.
func bridgeConn(conn1, conn2 *websocket.Conn) error {
	conn1.SetPingHandler(forwardControl(websocket.PingMessage, conn2))
	conn2.SetPingHandler(forwardControl(websocket.PingMessage, conn1))
	conn1.SetPongHandler(forwardControl(websocket.PongMessage, conn2))
	conn2.SetPongHandler(forwardControl(websocket.PongMessage, conn1))

	// Close frames are relayed by copyWsData instead of being echoed.
	conn1.SetCloseHandler(func(code int, text string) error { return nil })
	conn2.SetCloseHandler(func(code int, text string) error { return nil })

	defer func() {
		_ = conn1.Close()
		_ = conn2.Close()
	}()

	errs := make(chan error, 2)
	go func() { errs <- copyWsData(conn1, conn2) }()
	go func() { errs <- copyWsData(conn2, conn1) }()

	// The first direction to finish ends the bridge; closing the connections
	// in the deferred func unblocks the other one.
	return <-errs
}

func copyWsData(dest, src *websocket.Conn) error {
	for {
		mtype, reader, err := src.NextReader()
		if err != nil {
			relayClose(dest, err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		writer, err := dest.NextWriter(mtype)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return err
			}
			return nil
		}
		_, err = io.Copy(writer, reader)
		closeErr := writer.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}
	}
}

// relayClose passes a close frame from one side on to the other.
func relayClose(dest *websocket.Conn, err error) {
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return
	}
	code := ce.Code
	if code == websocket.CloseAbnormalClosure || code == websocket.CloseTLSHandshake {
		code = websocket.CloseGoingAway
	}
	msg := websocket.FormatCloseMessage(code, ce.Text)
	_ = dest.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func forwardControl(messageType int, dest *websocket.Conn) func(string) error {
	return func(appData string) error {
		return dest.WriteControl(messageType, []byte(appData), time.Now().Add(20*time.Second))
	}
}
