package transport

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"sketchpad/internal/log"
	"sketchpad/internal/session"

	"github.com/gorilla/websocket"
)

// WebSocketTransport broadcasts visual state as JSON to every client
// connected on /state. Frames arriving faster than the interval are dropped.
type WebSocketTransport struct {
	addr      string
	interval  time.Duration
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan session.VisualState
	server    *http.Server

	sendMu   sync.Mutex
	lastSent time.Time
	closed   bool

	done chan struct{}
}

// NewWebSocketTransport creates a WebSocketTransport. Call ListenAndServe
// to accept connections on addr, or mount Handler elsewhere.
func NewWebSocketTransport(addr string, interval time.Duration) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:     addr,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Renderers are served from anywhere.
			},
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan session.VisualState, 16),
		done:      make(chan struct{}),
	}
	go wst.handleBroadcasts()
	return wst
}

// Handler returns the HTTP handler serving /state.
func (wst *WebSocketTransport) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/state", wst.handleWebSocket)
	return mux
}

// ListenAndServe starts the HTTP server in a goroutine.
func (wst *WebSocketTransport) ListenAndServe() {
	wst.server = &http.Server{
		Addr:    wst.addr,
		Handler: wst.Handler(),
	}
	go func() {
		log.Infof("WebSocketTransport: Serving visual state on ws://%s/state", wst.addr)
		if err := wst.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Clients never send; a read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	if !wst.clients[conn] {
		return
	}
	delete(wst.clients, conn)
	conn.Close()
	log.Infof("WebSocketTransport: Client disconnected, total: %d", len(wst.clients))
}

// Clients returns the number of connected clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case state := <-wst.broadcast:
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := client.WriteJSON(state); err != nil {
					log.Debugf("WebSocketTransport: Error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

// Send queues state for broadcast. Frames within the interval of the last
// queued one, or arriving while the queue is full, are dropped.
func (wst *WebSocketTransport) Send(state session.VisualState) error {
	wst.sendMu.Lock()
	defer wst.sendMu.Unlock()
	if wst.closed {
		return errors.New("websocket transport closed")
	}
	now := time.Now()
	if now.Sub(wst.lastSent) < wst.interval {
		return nil
	}

	select {
	case wst.broadcast <- state:
		wst.lastSent = now
	default:
	}
	return nil
}

// Close disconnects every client and shuts down the server.
func (wst *WebSocketTransport) Close() error {
	wst.sendMu.Lock()
	if wst.closed {
		wst.sendMu.Unlock()
		return nil
	}
	wst.closed = true
	close(wst.done)
	wst.sendMu.Unlock()

	log.Infof("WebSocketTransport: Closing server")
	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
