// Package report renders per-tour and summary reports as text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"unicode/utf8"

	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/ui"
)

const (
	dateLayout    = "02.01.2006"
	maxCommentLen = 50
	commentCutoff = 47
	noData        = "No data"
	notApplicable = "N/A"
)

// TourStats aggregates the logs of one tour.
type TourStats struct {
	Tour        *schema.Tour
	LogCount    int
	AvgDistance float64
	AvgMinutes  float64
	AvgRating   float64
}

// Summarize computes per-tour log averages. Tours without logs have zero
// averages and LogCount 0.
func Summarize(tours []*schema.Tour) []TourStats {
	out := make([]TourStats, 0, len(tours))
	for _, t := range tours {
		s := TourStats{Tour: t, LogCount: len(t.Logs)}
		if s.LogCount > 0 {
			var dist float64
			var mins, rating int
			for _, l := range t.Logs {
				dist += l.TotalDistanceKm
				mins += l.TotalTimeMinutes
				rating += l.Rating
			}
			n := float64(s.LogCount)
			s.AvgDistance = dist / n
			s.AvgMinutes = float64(mins) / n
			s.AvgRating = float64(rating) / n
		}
		out = append(out, s)
	}
	return out
}

// WriteTour renders the details of tour and a table of its logs.
func WriteTour(w io.Writer, tour *schema.Tour) error {
	pairs := [][2]string{
		{"Name", tour.Name},
		{"From", orNA(tour.From)},
		{"To", orNA(tour.To)},
		{"Transport Type", orNA(tour.TransportType)},
		{"Description", orNA(tour.Description)},
	}
	if tour.IsSynced() {
		pairs = append(pairs,
			[2]string{"Distance", fmt.Sprintf("%.1f km", tour.DistanceKm)},
			[2]string{"Estimated Time", fmt.Sprintf("%d minutes", tour.EstimatedMinutes)},
		)
	}

	if _, err := fmt.Fprintf(w, "%s\n\n%s\n\n", ui.RenderBold("Tour Report"), ui.KeyValues(pairs)); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "%s\n", ui.RenderBold(fmt.Sprintf("Tour Logs (%d entries)", len(tour.Logs)))); err != nil {
		return err
	}
	if len(tour.Logs) == 0 {
		_, err := fmt.Fprintln(w, "No tour logs available.")
		return err
	}

	rows := make([][]string, 0, len(tour.Logs))
	for _, l := range tour.Logs {
		rows = append(rows, []string{
			l.DateTime.Local().Format(dateLayout),
			l.Difficulty,
			fmt.Sprintf("%.1f", l.TotalDistanceKm),
			strconv.Itoa(l.TotalTimeMinutes),
			strconv.Itoa(l.Rating),
			TruncateComment(l.Comment),
		})
	}
	_, err := fmt.Fprintln(w, ui.Table([]string{"Date", "Difficulty", "Distance (km)", "Time (min)", "Rating", "Comment"}, rows))
	return err
}

// WriteSummary renders one row per tour with log count and averages.
func WriteSummary(w io.Writer, tours []*schema.Tour) error {
	if _, err := fmt.Fprintf(w, "%s\n\n", ui.RenderBold("Tour Summary Report")); err != nil {
		return err
	}
	if len(tours) == 0 {
		_, err := fmt.Fprintln(w, "No tours available for summary.")
		return err
	}

	stats := Summarize(tours)
	rows := make([][]string, 0, len(stats))
	for _, s := range stats {
		row := []string{s.Tour.Name, strconv.Itoa(s.LogCount)}
		if s.LogCount == 0 {
			row = append(row, noData, noData, noData)
		} else {
			row = append(row,
				fmt.Sprintf("%.1f", s.AvgDistance),
				fmt.Sprintf("%.0f", s.AvgMinutes),
				fmt.Sprintf("%.1f", s.AvgRating),
			)
		}
		rows = append(rows, row)
	}
	_, err := fmt.Fprintln(w, ui.Table([]string{"Tour Name", "Logs Count", "Avg Distance (km)", "Avg Time (min)", "Avg Rating"}, rows))
	return err
}

// TruncateComment shortens comments longer than 50 characters to 47
// characters plus "...".
func TruncateComment(s string) string {
	if utf8.RuneCountInString(s) <= maxCommentLen {
		return s
	}
	r := []rune(s)
	return string(r[:commentCutoff]) + "..."
}

func orNA(s string) string {
	if s == "" {
		return notApplicable
	}
	return s
}
