// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	applog "spectrumtool/internal/log"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	broadcastQueueSize = 256
	writeTimeout       = time.Second
)

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Messages are serialized once and fanned out to every client
// from a single goroutine.
//
// Thread Safety:
// - Send never blocks; messages are dropped when the queue is full
// - Frame messages are rate limited to one per minSendInterval
// - Events are never rate limited
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	log       *logrus.Entry

	minSendInterval time.Duration
	lastFrame       atomic.Int64 // unix nanos of the last queued frame
	dropped         atomic.Uint64
}

// NewWebSocketTransport creates a transport serving /ws on addr. Frames
// closer together than minSendInterval are dropped; zero disables the limit.
// Call Start to begin listening, or mount Handler on an existing server.
func NewWebSocketTransport(addr string, minSendInterval time.Duration) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualizers are served from anywhere.
			},
		},
		clients:         make(map[*websocket.Conn]bool),
		broadcast:       make(chan any, broadcastQueueSize),
		done:            make(chan struct{}),
		log:             applog.Component("websocket"),
		minSendInterval: minSendInterval,
	}

	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving the websocket endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	return mux
}

// Start binds addr and serves in the background. Bind errors are returned
// directly.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}

	wst.server = &http.Server{
		Handler:           wst.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		wst.log.Infof("Serving frames on ws://%s/ws", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.log.Errorf("Server error: %v", err)
		}
	}()
	return nil
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.log.Infof("Client connected from %s, total: %d", r.RemoteAddr, total)

	// Clients never send anything meaningful; reading detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.remove(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) remove(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	conn.Close()
	if ok {
		wst.log.Infof("Client disconnected, total: %d", total)
	}
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Dropped returns how many messages were discarded because the queue was
// full.
func (wst *WebSocketTransport) Dropped() uint64 {
	return wst.dropped.Load()
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		var data any
		select {
		case <-wst.done:
			return
		case data = <-wst.broadcast:
		}

		payload, err := json.Marshal(data)
		if err != nil {
			wst.log.Errorf("Cannot encode %T: %v", data, err)
			continue
		}

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
				wst.log.Warnf("Error sending to client: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send queues data for broadcast to all connected WebSocket clients.
func (wst *WebSocketTransport) Send(data any) error {
	if _, ok := data.(FrameMessage); ok && wst.minSendInterval > 0 {
		now := time.Now().UnixNano()
		last := wst.lastFrame.Load()
		if now-last < int64(wst.minSendInterval) || !wst.lastFrame.CompareAndSwap(last, now) {
			return nil
		}
	}

	select {
	case <-wst.done:
		return nil
	case wst.broadcast <- data:
	default:
		wst.dropped.Add(1)
	}
	return nil
}

// Close shuts down the WebSocket server
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wst.log.Info("Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
