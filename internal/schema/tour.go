package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced by Validate.
const (
	MaxTourNameLen        = 100
	MaxTourDescriptionLen = 500
)

// Transport types offered by the CLI. Any other value is accepted and
// routed with the car profile.
const (
	TransportWalking = "walking"
	TransportRunning = "running"
	TransportBiking  = "biking"
	TransportHiking  = "hiking"
	TransportCar     = "car"
)

// TransportTypes lists the transport types in display order.
var TransportTypes = []string{TransportWalking, TransportRunning, TransportBiking, TransportHiking, TransportCar}

// Tour is a planned route between two named locations.
type Tour struct {
	ID int64 `json:"id,omitempty" yaml:"id,omitempty"`

	// ===== Basic fields (user owned) =====
	Name          string `json:"name" yaml:"name"`
	From          string `json:"from" yaml:"from"`
	To            string `json:"to" yaml:"to"`
	TransportType string `json:"transport_type" yaml:"transport_type"`
	Description   string `json:"description,omitempty" yaml:"description,omitempty"`

	// ===== Derived route fields (route sync owned) =====
	DistanceKm       float64 `json:"distance_km" yaml:"distance_km"`
	EstimatedMinutes int     `json:"estimated_minutes" yaml:"estimated_minutes"`
	RouteGeometry    string  `json:"route_geometry,omitempty" yaml:"route_geometry,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	// Logs is populated only for import/export documents.
	Logs []*TourLog `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// Validate checks if the Tour has valid field values.
func (t *Tour) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if n := utf8.RuneCountInString(t.Name); n > MaxTourNameLen {
		return fmt.Errorf("name must be %d characters or less (got %d)", MaxTourNameLen, n)
	}
	if n := utf8.RuneCountInString(t.Description); n > MaxTourDescriptionLen {
		return fmt.Errorf("description must be %d characters or less (got %d)", MaxTourDescriptionLen, n)
	}
	if t.DistanceKm < 0 {
		return fmt.Errorf("distance must not be negative (got %g)", t.DistanceKm)
	}
	if t.EstimatedMinutes < 0 {
		return fmt.Errorf("estimated time must not be negative (got %d)", t.EstimatedMinutes)
	}
	return nil
}

// SetDefaults fills zero timestamps and trims whitespace around the
// endpoints so that "Vienna " and "Vienna" compare equal.
func (t *Tour) SetDefaults() {
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	t.From = strings.TrimSpace(t.From)
	t.To = strings.TrimSpace(t.To)
	t.TransportType = strings.TrimSpace(t.TransportType)
}

// IsRoutable reports whether both endpoints are set. Tours without both
// endpoints are never sent to the routing provider.
func (t *Tour) IsRoutable() bool {
	return strings.TrimSpace(t.From) != "" && strings.TrimSpace(t.To) != ""
}

// IsSynced reports whether the derived fields hold a successful sync result.
func (t *Tour) IsSynced() bool {
	return t.DistanceKm > 0
}

// RouteInputsEqual reports whether two tours share the same endpoints and
// transport type, the inputs the derived route fields depend on.
func (t *Tour) RouteInputsEqual(other *Tour) bool {
	if other == nil {
		return false
	}
	return t.From == other.From && t.To == other.To && t.TransportType == other.TransportType
}

// Clone returns a deep copy of the tour, including its logs.
func (t *Tour) Clone() *Tour {
	if t == nil {
		return nil
	}
	c := *t
	if t.Logs != nil {
		c.Logs = make([]*TourLog, len(t.Logs))
		for i, l := range t.Logs {
			lc := *l
			c.Logs[i] = &lc
		}
	}
	return &c
}

// ReadTourFile reads and parses a single tour JSON document from path.
func ReadTourFile(path string) (*Tour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tour file %s: %w", path, err)
	}

	var tour Tour
	if err := json.Unmarshal(data, &tour); err != nil {
		return nil, fmt.Errorf("failed to parse tour file %s: %w", path, err)
	}

	tour.SetDefaults()
	if err := tour.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tour file %s: %w", path, err)
	}
	for i, l := range tour.Logs {
		l.SetDefaults()
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("invalid log %d in tour file %s: %w", i, path, err)
		}
	}

	return &tour, nil
}
