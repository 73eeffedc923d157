package dashboard

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/schema"
)

// SyncOutcomeData describes one route sync result.
type SyncOutcomeData struct {
	AttemptID        string  `json:"attempt_id"`
	TourID           int64   `json:"tour_id"`
	TourName         string  `json:"tour_name,omitempty"`
	Status           string  `json:"status"` // synced, skipped, failed
	Reason           string  `json:"reason,omitempty"`
	Error            string  `json:"error,omitempty"`
	Forced           bool    `json:"forced,omitempty"`
	DistanceKm       float64 `json:"distance_km,omitempty"`
	EstimatedMinutes int     `json:"estimated_minutes,omitempty"`
	DurationMs       int64   `json:"duration_ms"`
}

// TourUpdateData contains tour change information
type TourUpdateData struct {
	TourID int64  `json:"tour_id"`
	Action string `json:"action"` // created, updated, deleted, imported
	Name   string `json:"name,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
}

// StatsData contains tour and sync statistics
type StatsData struct {
	Tours    int `json:"tours"`
	Unsynced int `json:"unsynced"`
	Synced   int `json:"synced"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// BacklogCompleteData contains backlog run information
type BacklogCompleteData struct {
	Candidates int           `json:"candidates"`
	Synced     int           `json:"synced"`
	Duration   time.Duration `json:"duration"`
}

// Handler turns sync and tour events into dashboard messages. It
// implements routesync.Observer.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

var _ routesync.Observer = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, logger: logger}
}

// OnSyncOutcome broadcasts a sync outcome followed by updated stats.
func (h *Handler) OnSyncOutcome(o routesync.Outcome) {
	data := SyncOutcomeData{
		AttemptID:  o.AttemptID,
		TourID:     o.TourID,
		Status:     o.Status.String(),
		Reason:     o.Reason,
		Forced:     o.Forced,
		DurationMs: o.Finished.Sub(o.Started).Milliseconds(),
	}
	if o.Err != nil {
		data.Error = o.Err.Error()
	}
	if o.Tour != nil {
		data.TourName = o.Tour.Name
		data.DistanceKm = o.Tour.DistanceKm
		data.EstimatedMinutes = o.Tour.EstimatedMinutes
	}

	h.mu.Lock()
	switch o.Status {
	case routesync.StatusSynced:
		h.stats.Synced++
		if h.stats.Unsynced > 0 {
			h.stats.Unsynced--
		}
	case routesync.StatusFailed:
		h.stats.Failed++
	default:
		h.stats.Skipped++
	}
	h.mu.Unlock()

	h.send(MessageTypeSyncOutcome, data)
	h.broadcastStats()
}

// OnTourChanged broadcasts a tour change. tour may be nil for deletions.
func (h *Handler) OnTourChanged(action string, tourID int64, tour *schema.Tour) {
	h.logger.Printf("Tour %s: %d", action, tourID)

	data := TourUpdateData{TourID: tourID, Action: action}
	if tour != nil {
		data.Name = tour.Name
		data.From = tour.From
		data.To = tour.To
	}

	h.mu.Lock()
	switch action {
	case "created", "imported":
		h.stats.Tours++
	case "deleted":
		if h.stats.Tours > 0 {
			h.stats.Tours--
		}
	}
	h.mu.Unlock()

	h.send(MessageTypeTourUpdate, data)
	h.broadcastStats()
}

// OnBacklogComplete broadcasts the result of a backlog run.
func (h *Handler) OnBacklogComplete(candidates, synced int, duration time.Duration) {
	h.logger.Printf("Backlog complete: %d/%d synced in %v", synced, candidates, duration)
	h.send(MessageTypeBacklogComplete, BacklogCompleteData{
		Candidates: candidates,
		Synced:     synced,
		Duration:   duration,
	})
}

// UpdateStats resets the tour counts from a full tour list.
func (h *Handler) UpdateStats(tours []*schema.Tour) {
	h.mu.Lock()
	h.stats.Tours = len(tours)
	h.stats.Unsynced = 0
	for _, t := range tours {
		if t.IsRoutable() && !t.IsSynced() {
			h.stats.Unsynced++
		}
	}
	h.mu.Unlock()

	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) broadcastStats() {
	h.send(MessageTypeStats, h.GetStats())
}

func (h *Handler) send(typ MessageType, v any) {
	dataJSON, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
