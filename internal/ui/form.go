package ui

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the user cancels a form.
var ErrAborted = errors.New("aborted")

// TourFields are the user-editable fields of a tour.
type TourFields struct {
	Name          string
	From          string
	To            string
	TransportType string
	Description   string
}

// EditTourForm shows an interactive form pre-filled with f and writes the
// answers back into it.
func EditTourForm(f *TourFields, transportTypes []string, maxName, maxDescription int) error {
	options := huh.NewOptions(transportTypes...)
	known := false
	for _, t := range transportTypes {
		if strings.EqualFold(t, f.TransportType) {
			f.TransportType = t
			known = true
		}
	}
	if !known && f.TransportType != "" {
		options = append(options, huh.NewOption(f.TransportType+" (custom)", f.TransportType))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&f.Name).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("name is required")
					}
					if utf8.RuneCountInString(s) > maxName {
						return fmt.Errorf("at most %d characters", maxName)
					}
					return nil
				}),
			huh.NewInput().Title("From").Value(&f.From),
			huh.NewInput().Title("To").Value(&f.To),
			huh.NewSelect[string]().
				Title("Transport type").
				Options(options...).
				Value(&f.TransportType),
			huh.NewText().
				Title("Description").
				CharLimit(maxDescription).
				Value(&f.Description),
		),
	)

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return fmt.Errorf("form failed: %w", err)
	}
	return nil
}
