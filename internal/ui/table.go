package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// KeyValues renders label/value pairs as an aligned two-column block.
func KeyValues(pairs [][2]string) string {
	width := 0
	for _, p := range pairs {
		if w := lipgloss.Width(p[0]); w > width {
			width = w
		}
	}
	label := boldStyle.Width(width + 2)

	lines := make([]string, 0, len(pairs))
	for _, p := range pairs {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, label.Render(p[0]+":"), p[1]))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
