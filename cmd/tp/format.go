package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/ui"
)

func printTours(tours []*schema.Tour) {
	if len(tours) == 0 {
		fmt.Println(ui.RenderMuted("No tours."))
		return
	}
	rows := make([][]string, 0, len(tours))
	for _, t := range tours {
		rows = append(rows, []string{
			strconv.FormatInt(t.ID, 10),
			t.Name,
			orDash(t.From),
			orDash(t.To),
			orDash(t.TransportType),
			formatDistance(t),
			formatDuration(t),
		})
	}
	fmt.Println(ui.Table([]string{"ID", "Name", "From", "To", "Transport", "Distance", "Time"}, rows))
}

func printLogs(logs []*schema.TourLog) {
	if len(logs) == 0 {
		fmt.Println(ui.RenderMuted("No logs."))
		return
	}
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			strconv.FormatInt(l.ID, 10),
			strconv.FormatInt(l.TourID, 10),
			l.DateTime.Local().Format("02.01.2006 15:04"),
			orDash(l.Difficulty),
			fmt.Sprintf("%.1f km", l.TotalDistanceKm),
			formatMinutes(l.TotalTimeMinutes),
			strings.Repeat("★", l.Rating),
			orDash(l.Comment),
		})
	}
	fmt.Println(ui.Table([]string{"ID", "Tour", "Date", "Difficulty", "Distance", "Time", "Rating", "Comment"}, rows))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatDistance(t *schema.Tour) string {
	if t == nil || !t.IsSynced() {
		return "-"
	}
	return fmt.Sprintf("%.1f km", t.DistanceKm)
}

func formatDuration(t *schema.Tour) string {
	if t == nil || !t.IsSynced() {
		return "-"
	}
	return formatMinutes(t.EstimatedMinutes)
}

// formatMinutes renders 130 as "2h 10m" and 45 as "45m".
func formatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %02dm", m/60, m%60)
}

var dateLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
	time.RFC3339,
}

// parseWhen accepts fixed layouts and natural language such as
// "yesterday 9am" or "last friday", relative to now.
func parseWhen(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return now, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse date %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not understand date %q", text)
	}
	return r.Time, nil
}
