// Package server adapts gorilla WebSocket connections to the session
// transport boundary, handling read limits, deadlines, and keepalive.
package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gochat-relay/internal/session"
)

// wsTransport implements session.Transport over a *websocket.Conn.
type wsTransport struct {
	conn           *websocket.Conn
	addr           string
	maxMessageSize int64
	pongWait       time.Duration
	writeWait      time.Duration
	log            *slog.Logger
}

func newWSTransport(conn *websocket.Conn, addr string, cfg Config, log *slog.Logger) *wsTransport {
	t := &wsTransport{
		conn:           conn,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		pongWait:       cfg.PongWait,
		writeWait:      cfg.WriteWait,
		log:            log,
	}
	conn.SetReadLimit(cfg.MaxMessageSize)
	t.setupReadConnection()
	return t
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (t *wsTransport) setupReadConnection() {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
		t.log.Warn("Error setting initial read deadline", "remote", t.addr, "error", err)
	}
	t.conn.SetPongHandler(func(string) error {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.pongWait)); err != nil {
			t.log.Warn("Error setting read deadline in pong handler", "remote", t.addr, "error", err)
		}
		return nil
	})
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, payload, err := t.conn.ReadMessage()
	if err != nil {
		return nil, t.classifyReadError(err)
	}
	return payload, nil
}

// classifyReadError marks every way the peer can go away with
// session.ErrTransportClosed; anything else is returned as is.
func (t *wsTransport) classifyReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("message exceeded maximum size of %d bytes: %w", t.maxMessageSize, err)
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return fmt.Errorf("%w: code %d %s", session.ErrTransportClosed, closeErr.Code, closeErr.Text)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		return fmt.Errorf("%w: %v", session.ErrTransportClosed, err)
	}

	return err
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

// Ping may run concurrently with WriteFrame since it uses WriteControl.
func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *wsTransport) Close() error {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := t.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(t.writeWait)); err != nil && !isExpectedCloseError(err) {
		t.log.Debug("Error writing close message", "remote", t.addr, "error", err)
	}

	if err := t.conn.Close(); err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}
