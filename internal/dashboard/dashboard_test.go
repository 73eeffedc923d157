package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"

	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/routing"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/search"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func startServer(t *testing.T, searcher Searcher) *Server {
	t.Helper()
	server := NewServer(&Config{Addr: "127.0.0.1:0", Searcher: searcher, Logger: quietLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

// connect dials the server, consumes the welcome message and waits until
// the client is registered for broadcasts.
func connect(ctx context.Context, t *testing.T, server *Server, want int) (*websocket.Conn, Message) {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	welcome := readMessage(ctx, t, conn)

	deadline := time.Now().Add(2 * time.Second)
	for server.ClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", server.ClientCount(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn, welcome
}

func readMessage(ctx context.Context, t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: quietLogger()})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "127.0.0.1:0" {
		t.Errorf("GetAddr() = %q, want the bound port", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestWelcomeMessage(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, quietLogger())
	handler.UpdateStats([]*schema.Tour{
		{Name: "a", From: "Vienna", To: "Graz"},
		{Name: "b", From: "Vienna", To: "Linz", DistanceKm: 185},
		{Name: "c"},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, welcome := connect(ctx, t, server, 1)
	if welcome.Type != MessageTypeStats {
		t.Fatalf("welcome type = %s, want %s", welcome.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(welcome.Data, &stats); err != nil {
		t.Fatalf("Failed to unmarshal stats: %v", err)
	}
	if diff := cmp.Diff(StatsData{Tours: 3, Unsynced: 1}, stats); diff != "" {
		t.Errorf("welcome stats mismatch (-want +got):\n%s", diff)
	}
}

func TestMultipleClientsReceiveBroadcast(t *testing.T) {
	server := startServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const numClients = 3
	var clients []*websocket.Conn
	for i := 1; i <= numClients; i++ {
		conn, _ := connect(ctx, t, server, i)
		clients = append(clients, conn)
	}

	data, _ := json.Marshal(TourUpdateData{TourID: 7, Action: "created", Name: "Wachau"})
	server.Broadcast(Message{Type: MessageTypeTourUpdate, Data: data})

	for i, conn := range clients {
		msg := readMessage(ctx, t, conn)
		if msg.Type != MessageTypeTourUpdate {
			t.Errorf("client %d: type = %s, want %s", i, msg.Type, MessageTypeTourUpdate)
		}
		if msg.Timestamp.IsZero() {
			t.Errorf("client %d: timestamp not set", i)
		}
	}
}

func TestHandlerSyncOutcome(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := connect(ctx, t, server, 1)

	start := time.Now()
	handler.OnSyncOutcome(routesync.Outcome{
		AttemptID: "a1",
		TourID:    3,
		Status:    routesync.StatusFailed,
		Err:       routing.ErrAddressNotFound,
		Started:   start,
		Finished:  start.Add(250 * time.Millisecond),
	})

	msg := readMessage(ctx, t, conn)
	if msg.Type != MessageTypeSyncOutcome {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeSyncOutcome)
	}
	var got SyncOutcomeData
	if err := json.Unmarshal(msg.Data, &got); err != nil {
		t.Fatalf("Failed to unmarshal outcome: %v", err)
	}
	want := SyncOutcomeData{
		AttemptID:  "a1",
		TourID:     3,
		Status:     "failed",
		Error:      routing.ErrAddressNotFound.Error(),
		DurationMs: 250,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}

	msg = readMessage(ctx, t, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("type = %s, want %s", msg.Type, MessageTypeStats)
	}
	if stats := handler.GetStats(); stats.Failed != 1 {
		t.Errorf("Failed = %d, want 1", stats.Failed)
	}
}

func TestHandlerTourAndBacklogEvents(t *testing.T) {
	server := startServer(t, nil)
	handler := NewHandler(server, quietLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _ := connect(ctx, t, server, 1)

	handler.OnTourChanged("created", 9, &schema.Tour{ID: 9, Name: "New Tour 1"})
	msg := readMessage(ctx, t, conn)
	var tour TourUpdateData
	if err := json.Unmarshal(msg.Data, &tour); err != nil {
		t.Fatalf("Failed to unmarshal tour update: %v", err)
	}
	if msg.Type != MessageTypeTourUpdate || tour.Name != "New Tour 1" || tour.Action != "created" {
		t.Errorf("tour update = %s %+v", msg.Type, tour)
	}
	readMessage(ctx, t, conn) // stats

	handler.OnBacklogComplete(4, 3, time.Second)
	msg = readMessage(ctx, t, conn)
	var backlog BacklogCompleteData
	if err := json.Unmarshal(msg.Data, &backlog); err != nil {
		t.Fatalf("Failed to unmarshal backlog: %v", err)
	}
	if diff := cmp.Diff(BacklogCompleteData{Candidates: 4, Synced: 3, Duration: time.Second}, backlog); diff != "" {
		t.Errorf("backlog mismatch (-want +got):\n%s", diff)
	}

	if stats := handler.GetStats(); stats.Tours != 1 {
		t.Errorf("Tours = %d, want 1", stats.Tours)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := NewServer(&Config{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["status"] != "ok" || body["clients"] != float64(0) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["sync"]; ok {
		t.Errorf("body has sync section without a sync source: %v", body)
	}
}

type fakeSyncState struct {
	stats routesync.Stats
}

func (f *fakeSyncState) InFlight() int { return 2 }
func (f *fakeSyncState) Stats() *routesync.Stats { return &f.stats }

func TestHealthEndpointWithSync(t *testing.T) {
	state := &fakeSyncState{}
	state.stats.Synced.Store(5)
	state.stats.Failed.Store(1)

	server := NewServer(&Config{Sync: state, Logger: quietLogger()})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body struct {
		Sync struct {
			InFlight int   `json:"in_flight"`
			Synced   int64 `json:"synced"`
			Failed   int64 `json:"failed"`
			Skipped  int64 `json:"skipped"`
		} `json:"sync"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body.Sync.InFlight != 2 || body.Sync.Synced != 5 || body.Sync.Failed != 1 || body.Sync.Skipped != 0 {
		t.Errorf("sync = %+v", body.Sync)
	}
}

type fakeSearcher struct {
	text  string
	scope search.Scope
	tours []*schema.Tour
	err   error
}

func (f *fakeSearcher) Search(ctx context.Context, text string, scope search.Scope) ([]*schema.Tour, error) {
	f.text, f.scope = text, scope
	return f.tours, f.err
}

func TestToursEndpoint(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		searcher  *fakeSearcher
		wantCode  int
		wantScope search.Scope
	}{
		{"default scope", "/api/tours?q=wachau", &fakeSearcher{tours: []*schema.Tour{{ID: 1, Name: "Wachau"}}}, http.StatusOK, search.ScopeAll},
		{"logs only", "/api/tours?q=fog&scope=logs", &fakeSearcher{}, http.StatusOK, search.ScopeLogsOnly},
		{"unknown scope", "/api/tours?q=x&scope=everything", &fakeSearcher{}, http.StatusBadRequest, search.ScopeAll},
		{"search error", "/api/tours?q=x", &fakeSearcher{err: errors.New("disk gone")}, http.StatusInternalServerError, search.ScopeAll},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := NewServer(&Config{Searcher: tt.searcher, Logger: quietLogger()})
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCode == http.StatusOK && tt.searcher.scope != tt.wantScope {
				t.Errorf("scope = %v, want %v", tt.searcher.scope, tt.wantScope)
			}
			if tt.wantCode == http.StatusOK {
				var tours []schema.Tour
				if err := json.Unmarshal(rec.Body.Bytes(), &tours); err != nil {
					t.Fatalf("body is not a tour list: %v", err)
				}
				if len(tours) != len(tt.searcher.tours) {
					t.Errorf("got %d tours, want %d", len(tours), len(tt.searcher.tours))
				}
			}
		})
	}
}

func TestToursEndpointWithoutSearcher(t *testing.T) {
	server := NewServer(&Config{Logger: quietLogger()})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tours", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
