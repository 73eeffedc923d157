package main

import (
	"testing"
	"time"

	"github.com/tourplanner/tp/internal/schema"
)

func TestFormatMinutes(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0m"},
		{45, "45m"},
		{60, "1h 00m"},
		{130, "2h 10m"},
	}
	for _, tt := range tests {
		if got := formatMinutes(tt.in); got != tt.want {
			t.Errorf("formatMinutes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDistanceUnsynced(t *testing.T) {
	if got := formatDistance(&schema.Tour{}); got != "-" {
		t.Errorf("formatDistance(unsynced) = %q, want -", got)
	}
	if got := formatDistance(&schema.Tour{DistanceKm: 191.54}); got != "191.5 km" {
		t.Errorf("formatDistance() = %q", got)
	}
}

func TestParseWhen(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", now},
		{"2024-05-01 08:30", time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)},
		{"01.05.2024", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseWhen(tt.in, now)
		if err != nil {
			t.Errorf("parseWhen(%q) failed: %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseWhen(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}

	got, err := parseWhen("yesterday", now)
	if err != nil {
		t.Fatalf("parseWhen(yesterday) failed: %v", err)
	}
	if got.Day() != 9 || got.Month() != time.May {
		t.Errorf("parseWhen(yesterday) = %v, want May 9", got)
	}

	if _, err := parseWhen("purple elephant", now); err == nil {
		t.Error("parseWhen(nonsense) should fail")
	}
}

func TestMaskKey(t *testing.T) {
	tests := map[string]string{
		"":             "-",
		"abc":          "***",
		"5b3ce3597851": "********7851",
	}
	for in, want := range tests {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}
