package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTour_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tour    Tour
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid tour",
			tour: Tour{Name: "Vienna City Walk", From: "Vienna", To: "Graz", TransportType: "car"},
		},
		{
			name: "new tour without endpoints",
			tour: Tour{Name: "New Tour 1"},
		},
		{
			name:    "missing name",
			tour:    Tour{From: "Vienna", To: "Graz"},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "blank name",
			tour:    Tour{Name: "   "},
			wantErr: true,
			errMsg:  "name is required",
		},
		{
			name:    "name too long",
			tour:    Tour{Name: strings.Repeat("a", 101)},
			wantErr: true,
			errMsg:  "name must be 100 characters or less",
		},
		{
			name: "name at limit with multibyte runes",
			tour: Tour{Name: strings.Repeat("ö", 100)},
		},
		{
			name:    "description too long",
			tour:    Tour{Name: "x", Description: strings.Repeat("d", 501)},
			wantErr: true,
			errMsg:  "description must be 500 characters or less",
		},
		{
			name:    "negative distance",
			tour:    Tour{Name: "x", DistanceKm: -1},
			wantErr: true,
			errMsg:  "distance must not be negative",
		},
		{
			name:    "negative minutes",
			tour:    Tour{Name: "x", EstimatedMinutes: -5},
			wantErr: true,
			errMsg:  "estimated time must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tour.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("Validate() error = %q, want containing %q", err.Error(), tt.errMsg)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestTour_IsRoutable(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{"Vienna", "Graz", true},
		{"", "Graz", false},
		{"Vienna", "", false},
		{"  ", "Graz", false},
		{"", "", false},
	}
	for _, tt := range tests {
		tour := &Tour{Name: "t", From: tt.from, To: tt.to}
		if got := tour.IsRoutable(); got != tt.want {
			t.Errorf("IsRoutable(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTour_RouteInputsEqual(t *testing.T) {
	base := &Tour{Name: "a", From: "Vienna", To: "Graz", TransportType: "car", Description: "one"}

	same := base.Clone()
	same.Description = "two"
	same.Name = "b"
	if !base.RouteInputsEqual(same) {
		t.Error("tours differing only in name/description should have equal route inputs")
	}

	mode := base.Clone()
	mode.TransportType = "biking"
	if base.RouteInputsEqual(mode) {
		t.Error("transport type change should change route inputs")
	}

	if base.RouteInputsEqual(nil) {
		t.Error("nil previous tour should never be equal")
	}
}

func TestTour_CloneIsDeep(t *testing.T) {
	orig := &Tour{Name: "a", Logs: []*TourLog{{Comment: "first", Rating: 3}}}
	c := orig.Clone()
	c.Name = "b"
	c.Logs[0].Comment = "changed"

	if orig.Name != "a" {
		t.Errorf("original name mutated: %q", orig.Name)
	}
	if orig.Logs[0].Comment != "first" {
		t.Errorf("original log mutated: %q", orig.Logs[0].Comment)
	}
}

func TestTour_SetDefaults(t *testing.T) {
	tour := &Tour{Name: "a", From: " Vienna ", To: "Graz\n"}
	tour.SetDefaults()

	if tour.From != "Vienna" || tour.To != "Graz" {
		t.Errorf("endpoints not trimmed: %q -> %q", tour.From, tour.To)
	}
	if tour.CreatedAt.IsZero() || tour.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}
	if !tour.UpdatedAt.Equal(tour.CreatedAt) {
		t.Errorf("UpdatedAt = %v, want CreatedAt %v", tour.UpdatedAt, tour.CreatedAt)
	}
}

func TestReadTourFile(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	content := `{"name":"Wachau","from":"Krems","to":"Melk","transport_type":"biking",
		"logs":[{"date_time":"2024-05-01T10:00:00Z","comment":"windy","rating":4}]}`
	if err := os.WriteFile(good, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	tour, err := ReadTourFile(good)
	if err != nil {
		t.Fatalf("ReadTourFile() failed: %v", err)
	}
	if tour.Name != "Wachau" || tour.TransportType != "biking" {
		t.Errorf("unexpected tour: %+v", tour)
	}
	if len(tour.Logs) != 1 || tour.Logs[0].Rating != 4 {
		t.Fatalf("logs not parsed: %+v", tour.Logs)
	}
	if !tour.Logs[0].DateTime.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("DateTime = %v", tour.Logs[0].DateTime)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"from":"Krems"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTourFile(bad); err == nil {
		t.Error("ReadTourFile() should reject a tour without a name")
	}

	badLog := filepath.Join(dir, "badlog.json")
	if err := os.WriteFile(badLog, []byte(`{"name":"x","logs":[{"rating":9}]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadTourFile(badLog); err == nil {
		t.Error("ReadTourFile() should reject a log with rating 9")
	}
}
