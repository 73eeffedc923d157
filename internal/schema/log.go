package schema

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Field limits enforced by TourLog.Validate.
const (
	MaxLogCommentLen    = 1000
	MaxLogDifficultyLen = 50
	MinRating           = 1
	MaxRating           = 5
)

// TourLog records one completed instance of a tour.
type TourLog struct {
	ID               int64     `json:"id,omitempty" yaml:"id,omitempty"`
	TourID           int64     `json:"tour_id,omitempty" yaml:"tour_id,omitempty"`
	DateTime         time.Time `json:"date_time" yaml:"date_time"`
	Comment          string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	Difficulty       string    `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	TotalDistanceKm  float64   `json:"total_distance_km" yaml:"total_distance_km"`
	TotalTimeMinutes int       `json:"total_time_minutes" yaml:"total_time_minutes"`
	Rating           int       `json:"rating" yaml:"rating"`
}

// Validate checks if the TourLog has valid field values. TourID is not
// checked here because logs inside an import document have no parent id yet.
func (l *TourLog) Validate() error {
	if l.DateTime.IsZero() {
		return fmt.Errorf("date_time is required")
	}
	if n := utf8.RuneCountInString(l.Comment); n > MaxLogCommentLen {
		return fmt.Errorf("comment must be %d characters or less (got %d)", MaxLogCommentLen, n)
	}
	if n := utf8.RuneCountInString(l.Difficulty); n > MaxLogDifficultyLen {
		return fmt.Errorf("difficulty must be %d characters or less (got %d)", MaxLogDifficultyLen, n)
	}
	if l.TotalDistanceKm < 0 {
		return fmt.Errorf("total distance must not be negative (got %g)", l.TotalDistanceKm)
	}
	if l.TotalTimeMinutes < 0 {
		return fmt.Errorf("total time must not be negative (got %d)", l.TotalTimeMinutes)
	}
	if l.Rating < MinRating || l.Rating > MaxRating {
		return fmt.Errorf("rating must be between %d and %d (got %d)", MinRating, MaxRating, l.Rating)
	}
	return nil
}

// SetDefaults fills a missing DateTime with the current time and trims the
// difficulty label.
func (l *TourLog) SetDefaults() {
	if l.DateTime.IsZero() {
		l.DateTime = time.Now().UTC()
	}
	l.Difficulty = strings.TrimSpace(l.Difficulty)
}
