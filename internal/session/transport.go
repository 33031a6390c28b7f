package session

import "errors"

// ErrTransportClosed marks a read error caused by the peer going away. Any
// close code qualifies; transports wrap it so the cause stays visible.
var ErrTransportClosed = errors.New("transport closed")

// Transport is the boundary to the wire. Accepting the connection happens
// before a session is created; ReadFrame and WriteFrame are each called from
// a single goroutine, while Ping and Close may be called concurrently with
// them.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	Ping() error
	Close() error
}
