// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	applog "beatpulse/internal/log"
)

// WebSocketTransport broadcasts state snapshots as JSON to connected
// WebSocket clients.
//
// Thread Safety:
// - A mutex guards the client map.
// - Broadcasts are rate limited so a fast caller cannot flood clients.
// - Disconnected clients are removed on write failure.
type WebSocketTransport struct {
	clients      map[*websocket.Conn]bool
	clientsMutex sync.Mutex
	upgrader     websocket.Upgrader
	server       *http.Server

	lastSend        time.Time
	minSendInterval time.Duration
}

// NewWebSocketTransport starts an HTTP server on the given port serving
// WebSocket upgrades at /state. The server runs in its own goroutine.
func NewWebSocketTransport(port string, minSendInterval time.Duration) *WebSocketTransport {
	t := &WebSocketTransport{
		clients:         make(map[*websocket.Conn]bool),
		minSendInterval: minSendInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local visualization clients only
			},
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/state", t.handleWebSocket)
	t.server = &http.Server{
		Addr:    ":" + port,
		Handler: mux,
	}

	go func() {
		applog.Infof("transport: WebSocket server listening on port %s", port)
		if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
			applog.Errorf("transport: WebSocket server error: %v", err)
		}
	}()

	return t
}

// handleWebSocket upgrades the connection, registers the client, and
// watches for its disconnect.
func (t *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Errorf("transport: WebSocket upgrade error: %v", err)
		return
	}

	t.clientsMutex.Lock()
	t.clients[conn] = true
	t.clientsMutex.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				t.clientsMutex.Lock()
				delete(t.clients, conn)
				t.clientsMutex.Unlock()
				conn.Close()
				return
			}
		}
	}()
}

// Send broadcasts one snapshot to all connected clients, dropping the
// update when it arrives inside the rate-limit window.
func (t *WebSocketTransport) Send(data any) error {
	now := time.Now()
	if now.Sub(t.lastSend) < t.minSendInterval {
		return nil
	}
	t.lastSend = now

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}

	t.clientsMutex.Lock()
	for client := range t.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(t.clients, client)
		}
	}
	t.clientsMutex.Unlock()

	return nil
}

// Close disconnects all clients and shuts down the HTTP server.
func (t *WebSocketTransport) Close() error {
	t.clientsMutex.Lock()
	for client := range t.clients {
		client.Close()
		delete(t.clients, client)
	}
	t.clientsMutex.Unlock()

	return t.server.Close()
}

var _ Transport = (*WebSocketTransport)(nil)
