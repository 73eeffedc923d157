package search

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/store"
)

// memRepo evaluates the repository predicates in memory.
type memRepo struct {
	tours []*schema.Tour
	logs  []*schema.TourLog
	err   error
	calls []string
}

func contains(field, text string) bool {
	return strings.Contains(strings.ToLower(field), strings.ToLower(text))
}

func (m *memRepo) GetAll(ctx context.Context) ([]*schema.Tour, error) {
	m.calls = append(m.calls, "GetAll")
	return m.tours, m.err
}

func (m *memRepo) SearchTours(ctx context.Context, text string) ([]*schema.Tour, error) {
	m.calls = append(m.calls, "SearchTours:"+text)
	if m.err != nil {
		return nil, m.err
	}
	var out []*schema.Tour
	for _, t := range m.tours {
		if contains(t.Name, text) || contains(t.From, text) || contains(t.To, text) ||
			contains(t.TransportType, text) || contains(t.Description, text) {
			out = append(out, t)
		}
	}
	return out, nil
}

// ToursWithMatchingLogs deliberately returns one row per matching log, like
// a plain join would, so the engine's de-duplication is exercised.
func (m *memRepo) ToursWithMatchingLogs(ctx context.Context, text string) ([]*schema.Tour, error) {
	m.calls = append(m.calls, "ToursWithMatchingLogs:"+text)
	if m.err != nil {
		return nil, m.err
	}
	var out []*schema.Tour
	for _, l := range m.matchLogs(text) {
		for _, t := range m.tours {
			if t.ID == l.TourID {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (m *memRepo) matchLogs(text string) []*schema.TourLog {
	var out []*schema.TourLog
	for _, l := range m.logs {
		if contains(l.Comment, text) || contains(l.Difficulty, text) {
			out = append(out, l)
		}
	}
	return out
}

func (m *memRepo) SearchLogs(ctx context.Context, text string) ([]*schema.TourLog, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.matchLogs(text), nil
}

func tourIDs(tours []*schema.Tour) []int64 {
	out := make([]int64, 0, len(tours))
	for _, t := range tours {
		out = append(out, t.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func hasDuplicates(tours []*schema.Tour) bool {
	seen := map[int64]bool{}
	for _, t := range tours {
		if seen[t.ID] {
			return true
		}
		seen[t.ID] = true
	}
	return false
}

// viennaFixture: tour 1 matches by name, tour 2 only through a log.
func viennaFixture() *memRepo {
	return &memRepo{
		tours: []*schema.Tour{
			{ID: 1, Name: "Vienna City Walk"},
			{ID: 2, Name: "Graz Tour"},
			{ID: 3, Name: "Salzkammergut", Description: "lakes"},
		},
		logs: []*schema.TourLog{
			{ID: 10, TourID: 2, Comment: "saw Vienna from the train"},
			{ID: 11, TourID: 2, Comment: "VIENNA again"},
			{ID: 12, TourID: 3, Difficulty: "hard"},
		},
	}
}

func TestQuery_AllMergesWithoutDuplicates(t *testing.T) {
	repo := viennaFixture()
	// Tour 1 also has a matching log, so it is found twice.
	repo.logs = append(repo.logs, &schema.TourLog{ID: 13, TourID: 1, Comment: "vienna by night"})
	e := New(repo, repo)

	got, err := e.Query(context.Background(), "Vienna", ScopeAll)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 2}, tourIDs(got)); diff != "" {
		t.Errorf("Query(All) mismatch (-want +got):\n%s", diff)
	}
	if hasDuplicates(got) {
		t.Errorf("Query(All) returned duplicates: %v", got)
	}
}

func TestQuery_LogsOnly(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)

	got, err := e.Query(context.Background(), "Vienna", ScopeLogsOnly)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, tourIDs(got)); diff != "" {
		t.Errorf("Query(LogsOnly) mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_ToursOnlyIsUnmodified(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)

	got, err := e.Query(context.Background(), "vienna", ScopeToursOnly)
	if err != nil {
		t.Fatalf("Query() failed: %v", err)
	}
	if diff := cmp.Diff([]int64{1}, tourIDs(got)); diff != "" {
		t.Errorf("Query(ToursOnly) mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_BlankReturnsEverything(t *testing.T) {
	for _, scope := range []Scope{ScopeAll, ScopeToursOnly, ScopeLogsOnly, Scope(42)} {
		for _, text := range []string{"", "   ", "\t\n"} {
			repo := viennaFixture()
			e := New(repo, repo)
			got, err := e.Query(context.Background(), text, scope)
			if err != nil {
				t.Fatalf("Query(%q, %v) failed: %v", text, scope, err)
			}
			if diff := cmp.Diff([]int64{1, 2, 3}, tourIDs(got)); diff != "" {
				t.Errorf("Query(%q, %v) mismatch (-want +got):\n%s", text, scope, diff)
			}
		}
	}
}

func TestQuery_TrimsText(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)

	if _, err := e.Query(context.Background(), "  lakes  ", ScopeToursOnly); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"SearchTours:lakes"}, repo.calls); diff != "" {
		t.Errorf("repository calls mismatch (-want +got):\n%s", diff)
	}
}

func TestQuery_AllIsSupersetOfBothScopes(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)
	ctx := context.Background()

	for _, q := range []string{"vienna", "a", "hard", "lakes", "zzz", "tour"} {
		all, err := e.Query(ctx, q, ScopeAll)
		if err != nil {
			t.Fatal(err)
		}
		if hasDuplicates(all) {
			t.Errorf("Query(%q, All) has duplicates", q)
		}
		inAll := map[int64]bool{}
		for _, tour := range all {
			inAll[tour.ID] = true
		}
		for _, scope := range []Scope{ScopeToursOnly, ScopeLogsOnly} {
			part, err := e.Query(ctx, q, scope)
			if err != nil {
				t.Fatal(err)
			}
			for _, tour := range part {
				if !inAll[tour.ID] {
					t.Errorf("Query(%q, %v) returned tour %d missing from All", q, scope, tour.ID)
				}
			}
		}
	}
}

func TestQuery_UnknownScope(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)

	_, err := e.Query(context.Background(), "vienna", Scope(99))
	if !errors.Is(err, ErrUnknownScope) {
		t.Errorf("Query() error = %v, want ErrUnknownScope", err)
	}
	if err != nil && !strings.Contains(err.Error(), "Scope(99)") {
		t.Errorf("Query() error = %v, want it to name the scope", err)
	}
	if len(repo.calls) != 0 {
		t.Errorf("repository called for invalid scope: %v", repo.calls)
	}
}

func TestScopeValid(t *testing.T) {
	for _, s := range Scopes {
		if !s.Valid() {
			t.Errorf("%v.Valid() = false", s)
		}
	}
	for _, s := range []Scope{Scope(-1), Scope(3), Scope(99)} {
		if s.Valid() {
			t.Errorf("%v.Valid() = true", s)
		}
	}
}

func TestQuery_PropagatesRepositoryErrors(t *testing.T) {
	boom := errors.New("disk on fire")
	repo := &memRepo{err: boom}
	e := New(repo, repo)

	for _, scope := range Scopes {
		if _, err := e.Query(context.Background(), "x", scope); !errors.Is(err, boom) {
			t.Errorf("Query(%v) error = %v, want %v", scope, err, boom)
		}
	}
	if _, err := e.Query(context.Background(), "", ScopeAll); !errors.Is(err, boom) {
		t.Errorf("Query(blank) error = %v, want %v", err, boom)
	}
}

func TestMatchingLogs(t *testing.T) {
	repo := viennaFixture()
	e := New(repo, repo)

	logs, err := e.MatchingLogs(context.Background(), "vienna")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 {
		t.Errorf("MatchingLogs() = %d logs, want 2", len(logs))
	}

	logs, err = e.MatchingLogs(context.Background(), " ")
	if err != nil || logs != nil {
		t.Errorf("MatchingLogs(blank) = %v, %v", logs, err)
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"All", ScopeAll, false},
		{"", ScopeAll, false},
		{"Tours Only", ScopeToursOnly, false},
		{"tours  only", ScopeToursOnly, false},
		{"tours", ScopeToursOnly, false},
		{"Logs Only", ScopeLogsOnly, false},
		{"LOGS", ScopeLogsOnly, false},
		{"Everything", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseScope(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownScope) {
				t.Errorf("ParseScope(%q) error = %v, want ErrUnknownScope", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseScope(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}

	for _, s := range Scopes {
		back, err := ParseScope(s.String())
		if err != nil || back != s {
			t.Errorf("ParseScope(%q) = %v, %v", s.String(), back, err)
		}
	}
}

// Runs the same scenario against the SQLite store.
func TestQuery_AgainstStore(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "search.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()
	if err := db.InitSchema(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	walk := &schema.Tour{Name: "Vienna City Walk"}
	graz := &schema.Tour{Name: "Graz Tour"}
	for _, tour := range []*schema.Tour{walk, graz} {
		if err := db.Save(ctx, tour); err != nil {
			t.Fatal(err)
		}
	}
	for _, c := range []string{"saw Vienna from the train", "vienna again"} {
		l := &schema.TourLog{TourID: graz.ID, DateTime: time.Now(), Comment: c, Rating: 4}
		if err := db.SaveLog(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	e := New(db, db)

	all, err := e.Query(ctx, "Vienna", ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{walk.ID, graz.ID}, tourIDs(all)); diff != "" {
		t.Errorf("All mismatch (-want +got):\n%s", diff)
	}

	logsOnly, err := e.Query(ctx, "Vienna", ScopeLogsOnly)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int64{graz.ID}, tourIDs(logsOnly)); diff != "" {
		t.Errorf("LogsOnly mismatch (-want +got):\n%s", diff)
	}
}
