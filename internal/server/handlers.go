// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Tyrowin/gochat-relay/internal/session"
)

// WebSocketHandler resolves the caller's identity, upgrades the connection
// and runs a session for it until the connection ends or the server shuts
// down. The token is taken from the Authorization header when present, else
// from the configured query parameter.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}
	if s.ctx.Err() != nil {
		http.Error(w, "Server is shutting down", http.StatusServiceUnavailable)
		return
	}

	id := s.authn.Authenticate(r.Context(), tokenFromRequest(r, s.cfg.TokenQueryParam))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	transport := newWSTransport(conn, r.RemoteAddr, s.cfg, s.log)
	sess := session.New(session.Options{
		Transport:    transport,
		Identity:     id,
		Registry:     s.registry,
		Router:       s.router,
		Log:          s.log,
		Metrics:      s.metrics,
		RemoteAddr:   r.RemoteAddr,
		SendBuffer:   s.cfg.SendBufferSize,
		PingInterval: s.cfg.PingInterval,
	})

	if !s.startSession(sess.Run) {
		s.log.Info("Refusing WebSocket connection during shutdown", "remote", r.RemoteAddr)
		_ = transport.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat relay is running!")
}

type groupLister interface {
	Groups() []string
}

type healthStats struct {
	Status   string `json:"status"`
	Sessions int64  `json:"sessions"`
	Groups   *int   `json:"groups,omitempty"`
}

// StatsHandler reports the number of running sessions and, for registries
// that can list them, the number of non-empty groups.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	stats := healthStats{Status: "ok", Sessions: s.active.Load()}
	if lister, ok := s.registry.(groupLister); ok {
		n := len(lister.Groups())
		stats.Groups = &n
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		s.log.Warn("Error writing stats response", "error", err)
	}
}

// TestPageHandler serves an HTML test page for trying the relay from a
// browser: connect with an optional token, send public or private messages,
// and watch the frames that come back.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #messageInput { width: 300px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>GoChat Relay Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="tokenInput" placeholder="Access token (optional)">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div style="margin-top: 10px">
        <input type="text" id="recipientInput" placeholder="Recipient id (optional)" disabled>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const tokenInput = document.getElementById('tokenInput');
        const recipientInput = document.getElementById('recipientInput');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addLine(text, color) {
            const line = document.createElement('div');
            line.style.margin = '5px 0';
            line.style.color = color;
            line.textContent = text;
            messagesDiv.appendChild(line);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            messageInput.disabled = !connected;
            recipientInput.disabled = !connected;
            sendButton.disabled = !connected;
            tokenInput.disabled = connected;
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            let url = scheme + location.host + '/ws';
            if (tokenInput.value.trim()) {
                url += '?token=' + encodeURIComponent(tokenInput.value.trim());
            }
            ws = new WebSocket(url);
            ws.onopen = function() { updateStatus(true); };
            ws.onmessage = function(event) {
                const data = JSON.parse(event.data);
                if (data.type === 'private') {
                    addLine('[private] ' + (data.from_user ?? 'anonymous') + ': ' + data.message, 'purple');
                } else if (data.type === 'group') {
                    addLine((data.from_user ?? 'anonymous') + ': ' + data.message, 'green');
                } else {
                    addLine(data.message + ' (user: ' + (data.user_id ?? 'anonymous') + ')', 'gray');
                }
            };
            ws.onclose = function() {
                addLine('Connection closed', 'gray');
                updateStatus(false);
                ws = null;
            };
            ws.onerror = function() { addLine('Connection error', 'red'); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (!message || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const frame = { message: message };
            const recipient = recipientInput.value.trim();
            if (recipient) {
                frame.recipient = recipient;
            }
            ws.send(JSON.stringify(frame));
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
