// Package dashboard provides a real-time WebSocket server for watching
// route synchronization.
//
// The dashboard broadcasts sync outcomes, tour changes and backlog runs to
// connected WebSocket clients and serves a small JSON search endpoint.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/search"
)

// MessageType defines the type of dashboard message
type MessageType string

const (
	// MessageTypeSyncOutcome carries the result of one route sync
	MessageTypeSyncOutcome MessageType = "sync_outcome"

	// MessageTypeTourUpdate indicates a tour was created, updated, or deleted
	MessageTypeTourUpdate MessageType = "tour_update"

	// MessageTypeStats carries updated sync statistics
	MessageTypeStats MessageType = "stats"

	// MessageTypeBacklogComplete indicates a backlog run finished
	MessageTypeBacklogComplete MessageType = "backlog_complete"
)

// Message represents a dashboard broadcast message
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Searcher runs tour searches for the /api/tours endpoint.
type Searcher interface {
	Search(ctx context.Context, text string, scope search.Scope) ([]*schema.Tour, error)
}

// SyncState reports route sync activity for /health.
type SyncState interface {
	InFlight() int
	Stats() *routesync.Stats
}

// Server manages WebSocket connections and broadcasts dashboard messages
type Server struct {
	addr     string
	listener net.Listener
	server   *http.Server
	searcher Searcher
	state    SyncState

	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message

	// lastStats is replayed to clients as their welcome message.
	lastStats   json.RawMessage
	lastStatsMu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration
type Config struct {
	// Addr to listen on (default: ":8080"). Use "127.0.0.1:0" for a
	// random port.
	Addr string

	// Searcher backs /api/tours. The endpoint answers 404 when nil.
	Searcher Searcher

	// Sync adds engine counters to /health when set.
	Sync SyncState

	// Logger for server activity (default: stderr logger)
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Addr:   ":8080",
		Logger: log.Default(),
	}
}

// NewServer creates a new dashboard WebSocket server
func NewServer(config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr:      config.Addr,
		searcher:  config.Searcher,
		state:     config.Sync,
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, 100),
		ctx:       ctx,
		cancel:    cancel,
		logger:    config.Logger,
	}
}

// Handler returns the HTTP routes served by the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/tours", s.handleTours)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

// Start begins the HTTP server and WebSocket handler
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go s.broadcastLoop()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Dashboard server listening on %s", ln.Addr())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	s.logger.Println("Stopping dashboard server")

	s.cancel()

	s.clientsMu.Lock()
	for conn := range s.clients {
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.clients, conn)
	}
	s.clientsMu.Unlock()

	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
	}

	s.wg.Wait()

	s.logger.Println("Dashboard server stopped")
	return nil
}

// Broadcast sends a message to all connected clients. It never blocks;
// messages are dropped when the queue is full.
func (s *Server) Broadcast(msg Message) {
	if msg.Type == MessageTypeStats {
		s.lastStatsMu.Lock()
		s.lastStats = msg.Data
		s.lastStatsMu.Unlock()
	}

	select {
	case s.broadcast <- msg:
	case <-s.ctx.Done():
		return
	default:
		s.logger.Println("Warning: broadcast channel full, dropping message")
	}
}

func (s *Server) broadcastLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return

		case msg := <-s.broadcast:
			if msg.Timestamp.IsZero() {
				msg.Timestamp = time.Now()
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.logger.Printf("Failed to marshal message: %v", err)
				continue
			}

			s.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(s.clients))
			for conn := range s.clients {
				clients = append(clients, conn)
			}
			s.clientsMu.RUnlock()

			// Send outside the read lock so a slow client does not block
			// registration.
			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()

				if err != nil {
					s.logger.Printf("Failed to send to client: %v", err)
					s.removeClient(conn)
				}
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"localhost:*", "127.0.0.1:*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	// The welcome message is written before the client is registered so
	// that it is always the first frame the client sees.
	s.lastStatsMu.RLock()
	welcome := Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: s.lastStats}
	s.lastStatsMu.RUnlock()
	welcomeData, _ := json.Marshal(welcome)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	err = conn.Write(ctx, websocket.MessageText, welcomeData)
	cancel()
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "welcome failed")
		return
	}

	s.clientsMu.Lock()
	s.clients[conn] = true
	clientCount := len(s.clients)
	s.clientsMu.Unlock()

	s.logger.Printf("Client connected (total: %d)", clientCount)

	go s.readLoop(conn)
}

// readLoop keeps the connection alive and notices client disconnects.
// Client messages are ignored.
func (s *Server) readLoop(conn *websocket.Conn) {
	defer s.removeClient(conn)

	for {
		if _, _, err := conn.Read(s.ctx); err != nil {
			return
		}
	}
}

func (s *Server) removeClient(conn *websocket.Conn) {
	s.clientsMu.Lock()
	if _, exists := s.clients[conn]; exists {
		delete(s.clients, conn)
		clientCount := len(s.clients)
		s.clientsMu.Unlock()

		_ = conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Client disconnected (total: %d)", clientCount)
	} else {
		s.clientsMu.Unlock()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"clients": s.ClientCount(),
	}
	if s.state != nil {
		st := s.state.Stats()
		body["sync"] = map[string]any{
			"in_flight": s.state.InFlight(),
			"synced":    st.Synced.Load(),
			"failed":    st.Failed.Load(),
			"skipped":   st.Skipped.Load(),
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// handleTours answers GET /api/tours?q=<text>&scope=<scope>.
func (s *Server) handleTours(w http.ResponseWriter, r *http.Request) {
	if s.searcher == nil {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	scope := search.ScopeAll
	if raw := r.URL.Query().Get("scope"); raw != "" {
		var err error
		if scope, err = search.ParseScope(raw); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}

	tours, err := s.searcher.Search(r.Context(), r.URL.Query().Get("q"), scope)
	if err != nil {
		s.logger.Printf("Search failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "search failed"})
		return
	}
	if tours == nil {
		tours = []*schema.Tour{}
	}
	writeJSON(w, http.StatusOK, tours)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Tour Planner Dashboard</title>
</head>
<body>
    <h1>Tour Planner Dashboard Server</h1>
    <p>WebSocket endpoint: <code>ws://%s/ws</code></p>
    <p>Health check: <a href="/health">/health</a></p>
    <p>Tour search: <a href="/api/tours">/api/tours?q=&amp;scope=all</a></p>
</body>
</html>`, r.Host)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// GetAddr returns the server's listening address
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the current number of connected clients
func (s *Server) ClientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}
