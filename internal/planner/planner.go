// Package planner is the application service behind the CLI, the inbox
// daemon and the dashboard. It owns no state of its own: repositories, the
// route sync engine and the search engine are injected.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/search"
)

// ErrInvalid wraps validation failures of user input.
var ErrInvalid = errors.New("invalid input")

// Repository is the persistence the service needs.
type Repository interface {
	routesync.TourStore
	search.TourRepository
	search.LogRepository

	CountTours(ctx context.Context) (int, error)
	Delete(ctx context.Context, id int64) error
	UnsyncedRoutableTours(ctx context.Context) ([]*schema.Tour, error)
	ToursWithLogs(ctx context.Context) ([]*schema.Tour, error)
	InsertTours(ctx context.Context, tours []*schema.Tour) error

	GetByTourID(ctx context.Context, tourID int64) ([]*schema.TourLog, error)
	FindLogByID(ctx context.Context, id int64) (*schema.TourLog, error)
	SaveLog(ctx context.Context, log *schema.TourLog) error
	DeleteLog(ctx context.Context, id int64) error
}

// Service implements tour and log use cases.
type Service struct {
	repo   Repository
	sync   *routesync.Engine
	search *search.Engine
	logger *log.Logger
}

// New creates a Service. If logger is nil, a default logger writing to
// stderr is used.
func New(repo Repository, engine *routesync.Engine, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[planner] ", log.LstdFlags)
	}
	return &Service{
		repo:   repo,
		sync:   engine,
		search: search.New(repo, repo),
		logger: logger,
	}
}

// Engine returns the route sync engine.
func (s *Service) Engine() *routesync.Engine {
	return s.sync
}

// CreateTour stores a placeholder tour named "New Tour N" with empty
// endpoints, N being the tour count plus one.
func (s *Service) CreateTour(ctx context.Context) (*schema.Tour, error) {
	n, err := s.repo.CountTours(ctx)
	if err != nil {
		return nil, err
	}
	tour := &schema.Tour{Name: fmt.Sprintf("New Tour %d", n+1)}
	if err := s.repo.Save(ctx, tour); err != nil {
		return nil, fmt.Errorf("failed to create tour: %w", err)
	}
	s.logger.Printf("created tour %d (%s)", tour.ID, tour.Name)
	return tour, nil
}

// GetTour returns a tour with its logs.
func (s *Service) GetTour(ctx context.Context, id int64) (*schema.Tour, error) {
	tour, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tour.Logs, err = s.repo.GetByTourID(ctx, id); err != nil {
		return nil, err
	}
	return tour, nil
}

// ListTours returns every tour without logs.
func (s *Service) ListTours(ctx context.Context) ([]*schema.Tour, error) {
	return s.repo.GetAll(ctx)
}

// TourUpdate holds the fields to change; nil fields are left alone.
type TourUpdate struct {
	Name          *string
	From          *string
	To            *string
	TransportType *string
	Description   *string
}

// Empty reports whether the update changes nothing.
func (u TourUpdate) Empty() bool {
	return u.Name == nil && u.From == nil && u.To == nil && u.TransportType == nil && u.Description == nil
}

// Apply writes the set fields into t.
func (u TourUpdate) Apply(t *schema.Tour) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.From != nil {
		t.From = *u.From
	}
	if u.To != nil {
		t.To = *u.To
	}
	if u.TransportType != nil {
		t.TransportType = *u.TransportType
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
}

// UpdateTour validates the edit and hands it to the route sync engine,
// which saves it together with any route change. The returned Pending
// resolves once the tour is persisted.
func (s *Service) UpdateTour(ctx context.Context, id int64, update TourUpdate) (*routesync.Pending, error) {
	previous, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := previous.Clone()
	update.Apply(updated)
	updated.SetDefaults()
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.sync.OnTourSaved(ctx, previous, updated), nil
}

// RefreshTour forces a new route lookup for a stored tour.
func (s *Service) RefreshTour(ctx context.Context, id int64) (*routesync.Pending, error) {
	tour, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.sync.ForceResync(ctx, tour), nil
}

// DeleteTour removes a tour and its logs.
func (s *Service) DeleteTour(ctx context.Context, id int64) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Printf("deleted tour %d", id)
	return nil
}

// InitializeBacklog resyncs every stored tour that has endpoints but no
// route yet.
func (s *Service) InitializeBacklog(ctx context.Context) (int, error) {
	tours, err := s.repo.UnsyncedRoutableTours(ctx)
	if err != nil {
		return 0, err
	}
	if len(tours) == 0 {
		return 0, nil
	}
	return s.sync.InitializeBacklog(ctx, tours), nil
}

// Search returns tours matching text under scope.
func (s *Service) Search(ctx context.Context, text string, scope search.Scope) ([]*schema.Tour, error) {
	return s.search.Query(ctx, text, scope)
}

// SearchLogs returns individual logs matching text.
func (s *Service) SearchLogs(ctx context.Context, text string) ([]*schema.TourLog, error) {
	return s.search.MatchingLogs(ctx, text)
}

// AddLog stores a new log for an existing tour.
func (s *Service) AddLog(ctx context.Context, l *schema.TourLog) error {
	if _, err := s.repo.FindByID(ctx, l.TourID); err != nil {
		return err
	}
	l.ID = 0
	l.SetDefaults()
	if err := l.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return s.repo.SaveLog(ctx, l)
}

// LogUpdate holds the log fields to change; nil fields are left alone.
type LogUpdate struct {
	Comment          *string
	Difficulty       *string
	TotalDistanceKm  *float64
	TotalTimeMinutes *int
	Rating           *int
}

// UpdateLog changes fields of an existing log.
func (s *Service) UpdateLog(ctx context.Context, id int64, u LogUpdate) (*schema.TourLog, error) {
	l, err := s.repo.FindLogByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.Comment != nil {
		l.Comment = *u.Comment
	}
	if u.Difficulty != nil {
		l.Difficulty = *u.Difficulty
	}
	if u.TotalDistanceKm != nil {
		l.TotalDistanceKm = *u.TotalDistanceKm
	}
	if u.TotalTimeMinutes != nil {
		l.TotalTimeMinutes = *u.TotalTimeMinutes
	}
	if u.Rating != nil {
		l.Rating = *u.Rating
	}
	l.SetDefaults()
	if err := l.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := s.repo.SaveLog(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// DeleteLog removes a log.
func (s *Service) DeleteLog(ctx context.Context, id int64) error {
	if _, err := s.repo.FindLogByID(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteLog(ctx, id)
}

// Logs returns the logs of a tour.
func (s *Service) Logs(ctx context.Context, tourID int64) ([]*schema.TourLog, error) {
	if _, err := s.repo.FindByID(ctx, tourID); err != nil {
		return nil, err
	}
	return s.repo.GetByTourID(ctx, tourID)
}

// ExportTours returns every tour with its logs.
func (s *Service) ExportTours(ctx context.Context) ([]*schema.Tour, error) {
	return s.repo.ToursWithLogs(ctx)
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported int
	Synced   int
}

// ImportTours stores tours as new entities in one transaction. With
// syncRoutes set, imported tours that have endpoints but no route are
// synced before returning.
func (s *Service) ImportTours(ctx context.Context, tours []*schema.Tour, syncRoutes bool) (ImportResult, error) {
	if len(tours) == 0 {
		return ImportResult{}, nil
	}
	for _, t := range tours {
		t.ID = 0
		t.Name = strings.TrimSpace(t.Name)
	}
	if err := s.repo.InsertTours(ctx, tours); err != nil {
		return ImportResult{}, fmt.Errorf("failed to import tours: %w", err)
	}
	res := ImportResult{Imported: len(tours)}
	s.logger.Printf("imported %d tours", res.Imported)

	if syncRoutes {
		res.Synced = s.sync.InitializeBacklog(ctx, tours)
	}
	return res, nil
}
