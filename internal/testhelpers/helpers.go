// Package testhelpers provides common utilities for exercising the relay over
// real HTTP and WebSocket connections in tests.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// ReadTimeout bounds every helper read.
const ReadTimeout = 2 * time.Second

// WebSocketURL turns an httptest server URL into the URL of its /ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// MakeRequest creates and executes an HTTP request, returning the response.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// DialWebSocket opens a WebSocket connection with the given headers. The
// handshake response is returned so callers can inspect rejections.
func DialWebSocket(url string, headers http.Header) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	return dialer.Dial(url, headers)
}

// ConnectWebSocket connects with the test origin and returns the connection
// once the server's confirmation has been read. The confirmation is returned
// alongside.
func ConnectWebSocket(t *testing.T, url string, headers http.Header) (*websocket.Conn, map[string]any) {
	t.Helper()

	if headers == nil {
		headers = http.Header{}
	}
	if headers.Get("Origin") == "" {
		headers.Set("Origin", TestOrigin)
	}

	conn, resp, err := DialWebSocket(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, ReceiveJSON(t, conn)
}

// ReceiveJSON reads one frame and decodes it as a JSON object.
func ReceiveJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	var message map[string]any
	require.NoError(t, conn.ReadJSON(&message))
	return message
}

// SendEnvelope sends an inbound envelope. An empty recipient is omitted.
func SendEnvelope(t *testing.T, conn *websocket.Conn, message, recipient string) {
	t.Helper()

	frame := map[string]string{"message": message}
	if recipient != "" {
		frame["recipient"] = recipient
	}
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

// SendRawMessage sends a raw text frame.
func SendRawMessage(t *testing.T, conn *websocket.Conn, data string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(data)))
}

// ExpectNoMessage fails if a frame arrives within wait. The connection
// cannot be read from afterwards.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, payload, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", payload)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
