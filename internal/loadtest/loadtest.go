// Package loadtest exercises the store, the search engine and the route sync
// engine under concurrent load.
//
// Searches run against a populated database and report latency
// percentiles. Edits are submitted concurrently through the sync engine
// with a simulated routing provider, and the stored tours are checked
// afterwards: the last edit submitted for each tour must be the one stored.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/tourplanner/tp/internal/routesync"
	"github.com/tourplanner/tp/internal/routing"
	"github.com/tourplanner/tp/internal/schema"
	"github.com/tourplanner/tp/internal/search"
	"github.com/tourplanner/tp/internal/store"
)

// TestDatabase represents a populated database for load testing.
type TestDatabase struct {
	DB         *store.DB
	TourIDs    []int64
	TotalTours int
	TotalLogs  int
}

// LatencyStats captures performance metrics from load tests.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration // Median
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
	Errors       int
	Durations    []time.Duration
}

var places = []string{
	"Vienna", "Graz", "Linz", "Salzburg", "Innsbruck", "Klagenfurt",
	"Villach", "Wels", "St. Pölten", "Dornbirn", "Krems", "Melk",
}

var comments = []string{
	"Headwind after the bridge", "Perfect weather", "Rain in the afternoon",
	"Crowded trail", "Snow above 1500m", "Great views over the Danube",
}

// CreateTestDatabase creates a database at dbPath holding numTours tours,
// each with logsPerTour logs. Every third tour has no route yet.
func CreateTestDatabase(dbPath string, numTours, logsPerTour int) (*TestDatabase, error) {
	database, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	database.RawDB().SetMaxOpenConns(50)
	database.RawDB().SetMaxIdleConns(20)
	database.RawDB().SetConnMaxLifetime(10 * time.Minute)

	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	tours := generateTours(numTours, logsPerTour)
	if err := database.InsertTours(context.Background(), tours); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to insert tours: %w", err)
	}

	td := &TestDatabase{
		DB:         database,
		TourIDs:    make([]int64, 0, numTours),
		TotalTours: numTours,
		TotalLogs:  numTours * logsPerTour,
	}
	for _, t := range tours {
		td.TourIDs = append(td.TourIDs, t.ID)
	}
	return td, nil
}

// Close closes the test database connection.
func (td *TestDatabase) Close() error {
	if td.DB != nil {
		return td.DB.Close()
	}
	return nil
}

// RunConcurrentSearches runs numClients clients issuing queriesPerClient
// searches each, cycling through the scopes and a set of query texts.
func (td *TestDatabase) RunConcurrentSearches(numClients, queriesPerClient int) (*LatencyStats, error) {
	engine := search.New(td.DB, td.DB)
	texts := []string{"", "vienna", "rain", "danube", "bik", "tour 1"}

	var wg sync.WaitGroup
	resultsChan := make(chan []time.Duration, numClients)
	errorsChan := make(chan error, numClients)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()

			durations := make([]time.Duration, 0, queriesPerClient)
			ctx := context.Background()

			for j := 0; j < queriesPerClient; j++ {
				text := texts[(clientID+j)%len(texts)]
				scope := search.Scopes[(clientID+j)%len(search.Scopes)]

				start := time.Now()
				_, err := engine.Query(ctx, text, scope)
				durations = append(durations, time.Since(start))

				if err != nil {
					errorsChan <- fmt.Errorf("client %d query %d failed: %w", clientID, j, err)
					return
				}
			}
			resultsChan <- durations
		}(i)
	}

	wg.Wait()
	close(resultsChan)
	close(errorsChan)

	var errorCount int
	for range errorsChan {
		errorCount++
	}

	var allDurations []time.Duration
	for durations := range resultsChan {
		allDurations = append(allDurations, durations...)
	}
	if len(allDurations) == 0 {
		return nil, fmt.Errorf("no successful queries completed")
	}

	stats := computeLatencyStats(allDurations)
	stats.Errors = errorCount
	return stats, nil
}

// SimulatedRouter answers every lookup after Latency, deriving the
// distance from the two endpoints so that results are checkable.
type SimulatedRouter struct {
	Latency time.Duration
}

// Geocode maps an address to stable fake coordinates.
func (r SimulatedRouter) Geocode(ctx context.Context, address string) (routing.Coordinates, error) {
	if err := r.wait(ctx); err != nil {
		return routing.Coordinates{}, err
	}
	var h uint32 = 2166136261
	for i := 0; i < len(address); i++ {
		h = (h ^ uint32(address[i])) * 16777619
	}
	return routing.Coordinates{Lon: 9.5 + float64(h%700)/100, Lat: 46.4 + float64(h/700%250)/100}, nil
}

// Route returns a distance derived from the coordinates.
func (r SimulatedRouter) Route(ctx context.Context, from, to routing.Coordinates, profile routing.Profile) (routing.Route, error) {
	if err := r.wait(ctx); err != nil {
		return routing.Route{}, err
	}
	km := 1 + 100*(abs(from.Lon-to.Lon)+abs(from.Lat-to.Lat))
	return routing.Route{DistanceKm: km, DurationMinutes: int(km), Geometry: `{"type":"Feature"}`}, nil
}

func (r SimulatedRouter) wait(ctx context.Context) error {
	if r.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(r.Latency)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// EditReport summarizes a concurrent edit run.
type EditReport struct {
	Edits   int
	Synced  int
	Failed  int
	Skipped int
	// Lost counts tours whose stored destination is not the last one
	// submitted for them.
	Lost    int
	Elapsed time.Duration
	Latency *LatencyStats
}

// RunConcurrentEdits has numEditors editors each submit editsPerEditor
// destination changes to random tours through a sync engine backed by
// router, then verifies the stored state.
func (td *TestDatabase) RunConcurrentEdits(router routesync.Router, numEditors, editsPerEditor int) (*EditReport, error) {
	if len(td.TourIDs) == 0 {
		return nil, fmt.Errorf("no tours to edit")
	}
	engine := routesync.New(router, td.DB, log.New(io.Discard, "", 0),
		routesync.WithNotFound(store.ErrNotFound))

	// Submission order per tour is fixed under this lock, so the last
	// entry in latest is what the queue must apply last.
	var (
		mu      sync.Mutex
		latest  = make(map[int64]string)
		pending []*routesync.Pending
	)

	ctx := context.Background()
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < numEditors; i++ {
		wg.Add(1)
		go func(editorID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(editorID) + 1))
			for j := 0; j < editsPerEditor; j++ {
				id := td.TourIDs[rng.Intn(len(td.TourIDs))]
				to := fmt.Sprintf("%s %d-%d", places[rng.Intn(len(places))], editorID, j)

				mu.Lock()
				previous, err := td.DB.FindByID(ctx, id)
				if err != nil {
					mu.Unlock()
					continue
				}
				updated := previous.Clone()
				updated.To = to
				latest[id] = to
				pending = append(pending, engine.OnTourSaved(ctx, previous, updated))
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	report := &EditReport{}
	var durations []time.Duration
	for _, p := range pending {
		o, err := p.Wait(ctx)
		if err != nil {
			return nil, err
		}
		report.Edits++
		durations = append(durations, o.Finished.Sub(o.Started))
		switch o.Status {
		case routesync.StatusSynced:
			report.Synced++
		case routesync.StatusFailed:
			report.Failed++
		default:
			report.Skipped++
		}
	}
	engine.Wait()
	report.Elapsed = time.Since(start)
	if len(durations) > 0 {
		report.Latency = computeLatencyStats(durations)
	}

	for id, to := range latest {
		stored, err := td.DB.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if stored.To != to {
			report.Lost++
		}
	}
	return report, nil
}

func generateTours(count, logsPerTour int) []*schema.Tour {
	rng := rand.New(rand.NewSource(42))
	baseTime := time.Now().Add(-90 * 24 * time.Hour).UTC()

	tours := make([]*schema.Tour, count)
	for i := 0; i < count; i++ {
		from := places[rng.Intn(len(places))]
		to := places[rng.Intn(len(places))]
		t := &schema.Tour{
			Name:          fmt.Sprintf("Tour %d: %s to %s", i, from, to),
			From:          from,
			To:            to,
			TransportType: schema.TransportTypes[i%len(schema.TransportTypes)],
			Description:   "Generated for load testing",
			CreatedAt:     baseTime.Add(time.Duration(i) * time.Minute),
		}
		if i%3 != 0 {
			t.DistanceKm = 5 + float64(rng.Intn(300))
			t.EstimatedMinutes = int(t.DistanceKm)
		}
		for j := 0; j < logsPerTour; j++ {
			t.Logs = append(t.Logs, &schema.TourLog{
				DateTime:         t.CreatedAt.Add(time.Duration(j+1) * 24 * time.Hour),
				Comment:          comments[rng.Intn(len(comments))],
				Difficulty:       []string{"easy", "moderate", "hard"}[rng.Intn(3)],
				TotalDistanceKm:  t.DistanceKm,
				TotalTimeMinutes: t.EstimatedMinutes,
				Rating:           1 + rng.Intn(5),
			})
		}
		tours[i] = t
	}
	return tours
}

func computeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return &LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(durations)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(durations),
		Durations:    sorted,
	}
}

// PrintStats writes the latency statistics to w.
func (s *LatencyStats) PrintStats(w io.Writer) {
	fmt.Fprintf(w, "  Total:        %d\n", s.TotalQueries)
	fmt.Fprintf(w, "  Errors:       %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:          %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median): %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:         %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:          %v\n", s.P95)
	fmt.Fprintf(w, "  P99:          %v\n", s.P99)
	fmt.Fprintf(w, "  Max:          %v\n", s.Max)
}
