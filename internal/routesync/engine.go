package routesync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/tourplanner/tp/internal/routing"
	"github.com/tourplanner/tp/internal/schema"
)

const (
	// DefaultBacklogWorkers bounds concurrent backlog resyncs.
	DefaultBacklogWorkers = 4

	// saveTimeout bounds the final repository write.
	saveTimeout = 30 * time.Second
)

// Router is the subset of the routing client the engine calls.
type Router interface {
	Geocode(ctx context.Context, address string) (routing.Coordinates, error)
	Route(ctx context.Context, from, to routing.Coordinates, profile routing.Profile) (routing.Route, error)
}

// TourStore persists tours. FindByID must wrap a not-found error so that
// errors.Is(err, notFound) holds for the sentinel passed to WithNotFound.
type TourStore interface {
	FindByID(ctx context.Context, id int64) (*schema.Tour, error)
	Save(ctx context.Context, tour *schema.Tour) error
}

// Engine orchestrates route synchronization.
type Engine struct {
	router   Router
	store    TourStore
	logger   *log.Logger
	notFound error
	workers  int

	queue    *tourQueue
	geocodes singleflight.Group
	wg       sync.WaitGroup

	mu        sync.RWMutex
	observers []Observer

	stats Stats
}

// Stats counts outcomes since the engine was created.
type Stats struct {
	Synced  atomic.Int64
	Failed  atomic.Int64
	Skipped atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithBacklogWorkers sets the concurrency used by InitializeBacklog.
func WithBacklogWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithNotFound sets the store's not-found sentinel. Without it every
// FindByID error is treated as "tour not stored yet".
func WithNotFound(err error) Option {
	return func(e *Engine) { e.notFound = err }
}

// WithObserver registers an observer at construction time.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// New creates an engine. If logger is nil, a default logger writing to
// stderr is used.
func New(router Router, store TourStore, logger *log.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	e := &Engine{
		router:  router,
		store:   store,
		logger:  logger,
		workers: DefaultBacklogWorkers,
		queue:   newTourQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers an observer for all future outcomes.
func (e *Engine) Subscribe(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Stats returns the engine's outcome counters.
func (e *Engine) Stats() *Stats {
	return &e.stats
}

// InFlight returns the number of tours with queued or running operations.
func (e *Engine) InFlight() int {
	return e.queue.inFlight()
}

// Wait blocks until every asynchronous operation started so far has
// finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// NeedsResync reports whether saving updated over previous invalidates the
// derived route fields: the endpoints or transport type changed (or there is
// no previous version) and both endpoints are set.
func NeedsResync(previous, updated *schema.Tour) bool {
	if updated == nil || !updated.IsRoutable() {
		return false
	}
	return !updated.RouteInputsEqual(previous)
}

// Sync decides whether updated needs a new route and, if so, fetches it.
// On success the derived fields of updated are overwritten; on any failure,
// or if ctx is done before the result is assigned, updated is not touched.
// Sync does not persist and does not notify observers.
func (e *Engine) Sync(ctx context.Context, previous, updated *schema.Tour) Outcome {
	if !NeedsResync(previous, updated) {
		reason := ReasonUpToDate
		if !updated.IsRoutable() {
			reason = ReasonNotRoutable
		}
		now := time.Now()
		return Outcome{
			AttemptID: uuid.NewString(),
			TourID:    updated.ID,
			Status:    StatusSkipped,
			Reason:    reason,
			Started:   now,
			Finished:  now,
		}
	}
	return e.resync(ctx, updated, false)
}

// resync runs geocode(from), geocode(to) and route in order and assigns
// the result to tour only when all three succeeded.
func (e *Engine) resync(ctx context.Context, tour *schema.Tour, forced bool) Outcome {
	o := Outcome{
		AttemptID: uuid.NewString(),
		TourID:    tour.ID,
		Forced:    forced,
		Started:   time.Now(),
	}
	finish := func(s Status, err error) Outcome {
		o.Status = s
		o.Err = err
		o.Finished = time.Now()
		return o
	}

	if !tour.IsRoutable() {
		o.Reason = ReasonNotRoutable
		return finish(StatusSkipped, nil)
	}

	from, err := e.geocode(ctx, tour.From)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("from %q: %w", tour.From, err))
	}
	to, err := e.geocode(ctx, tour.To)
	if err != nil {
		return finish(StatusFailed, fmt.Errorf("to %q: %w", tour.To, err))
	}

	profile := routing.ResolveProfile(tour.TransportType)
	route, err := e.router.Route(ctx, from, to, profile)
	if err != nil {
		return finish(StatusFailed, err)
	}

	// Last point at which the attempt can be abandoned.
	if err := ctx.Err(); err != nil {
		return finish(StatusFailed, err)
	}

	tour.DistanceKm = route.DistanceKm
	tour.EstimatedMinutes = route.DurationMinutes
	tour.RouteGeometry = route.Geometry
	return finish(StatusSynced, nil)
}

// geocode shares concurrent lookups of the same address. Nothing is kept
// once the lookup returns. The shared call is detached from any single
// caller's cancellation; each caller still stops waiting when its own ctx
// is done.
func (e *Engine) geocode(ctx context.Context, address string) (routing.Coordinates, error) {
	ch := e.geocodes.DoChan(address, func() (any, error) {
		return e.router.Geocode(context.WithoutCancel(ctx), address)
	})
	select {
	case <-ctx.Done():
		return routing.Coordinates{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return routing.Coordinates{}, res.Err
		}
		return res.Val.(routing.Coordinates), nil
	}
}

// OnTourSaved persists updated and brings its derived fields up to date.
//
// It returns immediately. The work runs in the background, after any
// earlier operation for the same tour id, and ends with one Save that
// writes the basic and derived fields together. A routing failure never
// prevents the basic fields from being saved; the derived fields keep their
// stored values. updated itself is not modified; the persisted copy is
// available as Outcome.Tour.
//
// A route is fetched when the endpoints or transport type of updated
// differ from previous, or from the stored row, which reflects every save
// queued before this one. A nil previous marks a first save and always
// fetches a route for a routable tour.
//
// Cancelling ctx abandons the provider calls. The tour is still saved, with
// its previous derived fields.
func (e *Engine) OnTourSaved(ctx context.Context, previous, updated *schema.Tour) *Pending {
	return e.submit(ctx, previous.Clone(), updated.Clone(), false)
}

// ForceResync fetches a new route for the stored version of tour
// regardless of whether its inputs changed. Tours without both endpoints
// are still skipped.
func (e *Engine) ForceResync(ctx context.Context, tour *schema.Tour) *Pending {
	return e.submit(ctx, nil, tour.Clone(), true)
}

func (e *Engine) submit(ctx context.Context, previous, updated *schema.Tour, forced bool) *Pending {
	p := newPending()
	e.wg.Add(1)

	var (
		prev <-chan struct{}
		done = func() {}
	)
	// Unsaved tours have no identity to serialize on yet.
	if updated.ID != 0 {
		prev, done = e.queue.enqueue(updated.ID)
	}

	go func() {
		defer e.wg.Done()
		defer done()

		// Earlier operations are bounded by the provider timeout, so this
		// wait is too. It is not cut short by ctx: a cancelled save still
		// has to land after the saves queued before it.
		if prev != nil {
			<-prev
		}

		o, err := e.run(ctx, previous, updated, forced)
		p.resolve(o, err)
	}()

	return p
}

// run executes one serialized operation: load, decide, sync, persist.
//
// ctx bounds the provider calls only. Once the decision is made the tour is
// saved on a detached context, so cancelling a sync discards the route
// lookup but never the user's edit.
func (e *Engine) run(ctx context.Context, previous, updated *schema.Tour, forced bool) (Outcome, error) {
	stored, err := e.load(context.WithoutCancel(ctx), updated.ID)
	if err != nil {
		return Outcome{TourID: updated.ID, Status: StatusSkipped, Reason: "load failed"}, err
	}
	if stored != nil {
		// Resync when either the caller's previous version or the stored
		// row disagrees with updated. A nil previous always counts as a
		// first save.
		if previous != nil && !NeedsResync(previous, updated) {
			previous = stored
		}
		if forced {
			// A refresh acts on what is stored, not on a possibly stale copy.
			updated = stored.Clone()
		}
		// Derived fields are owned here; start from the stored values so a
		// skipped or failed attempt persists them unchanged.
		updated.DistanceKm = stored.DistanceKm
		updated.EstimatedMinutes = stored.EstimatedMinutes
		updated.RouteGeometry = stored.RouteGeometry
	}

	var o Outcome
	if forced {
		o = e.resync(ctx, updated, true)
	} else {
		o = e.Sync(ctx, previous, updated)
	}

	switch {
	case o.Failed() && ctx.Err() != nil:
		e.logger.Printf("route sync for tour %d cancelled: %v", updated.ID, o.Err)
	case o.Failed():
		e.logger.Printf("WARNING: route sync failed for tour %d (%s -> %s, %s): %v",
			updated.ID, updated.From, updated.To, routing.ResolveProfile(updated.TransportType), o.Err)
		if routing.IsContractViolation(o.Err) {
			e.logger.Printf("WARNING: routing provider response did not match the expected schema")
		}
	}

	// A refresh that changed nothing has nothing to write.
	if forced && stored != nil && o.Status != StatusSynced {
		o.Tour = stored.Clone()
		e.record(o)
		return o, nil
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := e.store.Save(saveCtx, updated); err != nil {
		return o, fmt.Errorf("failed to save tour %d: %w", updated.ID, err)
	}
	o.TourID = updated.ID
	o.Tour = updated.Clone()

	e.record(o)
	return o, nil
}

func (e *Engine) load(ctx context.Context, id int64) (*schema.Tour, error) {
	if id == 0 {
		return nil, nil
	}
	stored, err := e.store.FindByID(ctx, id)
	if err == nil {
		return stored, nil
	}
	if e.notFound == nil || errors.Is(err, e.notFound) {
		return nil, nil
	}
	return nil, fmt.Errorf("failed to load tour %d: %w", id, err)
}

func (e *Engine) record(o Outcome) {
	switch o.Status {
	case StatusSynced:
		e.stats.Synced.Add(1)
	case StatusFailed:
		e.stats.Failed.Add(1)
	default:
		e.stats.Skipped.Add(1)
	}

	e.mu.RLock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.RUnlock()
	for _, obs := range observers {
		obs.OnSyncOutcome(o)
	}
}

// InitializeBacklog resyncs every tour that has both endpoints but was
// never synced (distance 0). Tours are processed independently with
// bounded concurrency and failures do not stop the run. It returns the
// number of tours synced successfully.
func (e *Engine) InitializeBacklog(ctx context.Context, tours []*schema.Tour) int {
	var synced atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	candidates := 0
	for _, t := range tours {
		if !t.IsRoutable() || t.DistanceKm != 0 {
			continue
		}
		candidates++
		tour := t
		g.Go(func() error {
			o, err := e.ForceResync(gctx, tour).Wait(gctx)
			if err != nil {
				e.logger.Printf("WARNING: backlog sync of tour %d: %v", tour.ID, err)
				return nil
			}
			if o.Status == StatusSynced {
				synced.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if candidates > 0 {
		e.logger.Printf("backlog: %d/%d tours synced", synced.Load(), candidates)
	}
	return int(synced.Load())
}
