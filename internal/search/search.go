// Package search answers free-text queries across tours and their logs.
//
// Matching is a case-insensitive substring test evaluated by the
// repository; this package picks the predicates for a scope and merges
// their results into a set of tours keyed by id. Result order follows the
// repository's order for the first predicate that produced each tour and
// carries no meaning.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tourplanner/tp/internal/schema"
)

// Scope selects which entity fields participate in matching.
type Scope int

const (
	// ScopeAll matches tour fields and log fields.
	ScopeAll Scope = iota
	// ScopeToursOnly matches name, endpoints, transport type and description.
	ScopeToursOnly
	// ScopeLogsOnly matches log comment and difficulty.
	ScopeLogsOnly
)

// ErrUnknownScope is returned for scope values outside the three defined
// scopes.
var ErrUnknownScope = errors.New("unknown search scope")

// Scope labels as presented to users.
var scopeLabels = map[Scope]string{
	ScopeAll:       "All",
	ScopeToursOnly: "Tours Only",
	ScopeLogsOnly:  "Logs Only",
}

// Scopes lists the valid scopes in display order.
var Scopes = []Scope{ScopeAll, ScopeToursOnly, ScopeLogsOnly}

func (s Scope) String() string {
	if l, ok := scopeLabels[s]; ok {
		return l
	}
	return fmt.Sprintf("Scope(%d)", int(s))
}

// Valid reports whether s is one of the defined scopes.
func (s Scope) Valid() bool {
	_, ok := scopeLabels[s]
	return ok
}

// ParseScope accepts the display labels ("All", "Tours Only", "Logs Only")
// and the short forms all, tours and logs, ignoring case. An empty string
// means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.Join(strings.Fields(s), " ")) {
	case "", "all":
		return ScopeAll, nil
	case "tours only", "tours", "tour":
		return ScopeToursOnly, nil
	case "logs only", "logs", "log":
		return ScopeLogsOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q (want all, tours or logs)", ErrUnknownScope, s)
	}
}

// TourRepository is the tour side of the persistence contract.
type TourRepository interface {
	GetAll(ctx context.Context) ([]*schema.Tour, error)
	SearchTours(ctx context.Context, text string) ([]*schema.Tour, error)
	ToursWithMatchingLogs(ctx context.Context, text string) ([]*schema.Tour, error)
}

// LogRepository is the log side of the persistence contract.
type LogRepository interface {
	SearchLogs(ctx context.Context, text string) ([]*schema.TourLog, error)
}

// Engine resolves (text, scope) queries. It never writes.
type Engine struct {
	tours TourRepository
	logs  LogRepository
}

// New creates a search engine over the given repositories.
func New(tours TourRepository, logs LogRepository) *Engine {
	return &Engine{tours: tours, logs: logs}
}

// Query returns the set of tours matching text under scope.
//
// Blank text returns every tour, whatever the scope. Otherwise the text is
// trimmed and matched as a substring ignoring case. A tour that matches
// through several predicates or several logs appears once.
func (e *Engine) Query(ctx context.Context, text string, scope Scope) ([]*schema.Tour, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		tours, err := e.tours.GetAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tours: %w", err)
		}
		return tours, nil
	}

	if !scope.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}

	switch scope {
	case ScopeToursOnly:
		tours, err := e.tours.SearchTours(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to search tours: %w", err)
		}
		return tours, nil

	case ScopeLogsOnly:
		tours, err := e.tours.ToursWithMatchingLogs(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to search logs: %w", err)
		}
		return union(tours), nil

	default: // ScopeAll
		direct, err := e.tours.SearchTours(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to search tours: %w", err)
		}
		viaLogs, err := e.tours.ToursWithMatchingLogs(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to search logs: %w", err)
		}
		return union(direct, viaLogs), nil
	}
}

// MatchingLogs returns the individual logs whose comment or difficulty
// contains text. Blank text matches nothing.
func (e *Engine) MatchingLogs(ctx context.Context, text string) ([]*schema.TourLog, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	logs, err := e.logs.SearchLogs(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to search logs: %w", err)
	}
	return logs, nil
}

// union merges tour lists keeping the first occurrence of each id.
func union(lists ...[]*schema.Tour) []*schema.Tour {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	seen := make(map[int64]struct{}, n)
	out := make([]*schema.Tour, 0, n)
	for _, l := range lists {
		for _, t := range l {
			if _, dup := seen[t.ID]; dup {
				continue
			}
			seen[t.ID] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}
