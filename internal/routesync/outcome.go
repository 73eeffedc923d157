package routesync

import (
	"context"
	"fmt"
	"time"

	"github.com/tourplanner/tp/internal/schema"
)

// Status is the result class of one sync decision.
type Status int

const (
	// StatusSkipped means no provider call was made.
	StatusSkipped Status = iota
	// StatusSynced means the derived fields were replaced.
	StatusSynced
	// StatusFailed means an attempt was made and the derived fields were
	// left as they were.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "skipped"
	case StatusSynced:
		return "synced"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Reasons attached to skipped outcomes.
const (
	ReasonNotRoutable = "endpoints not set"
	ReasonUpToDate    = "route inputs unchanged"
)

// Outcome describes one sync decision for one tour.
type Outcome struct {
	AttemptID string
	TourID    int64
	Status    Status
	// Reason explains a skip.
	Reason string
	// Err is the routing failure for StatusFailed.
	Err error
	// Forced is set for user-triggered refreshes and backlog runs.
	Forced   bool
	Started  time.Time
	Finished time.Time
	// Tour is a copy of the tour as it was persisted. Nil for Sync calls,
	// which do not persist.
	Tour *schema.Tour
}

// Failed reports whether the outcome is a failed attempt.
func (o Outcome) Failed() bool {
	return o.Status == StatusFailed
}

func (o Outcome) String() string {
	switch o.Status {
	case StatusFailed:
		return fmt.Sprintf("tour %d: sync failed: %v", o.TourID, o.Err)
	case StatusSkipped:
		return fmt.Sprintf("tour %d: skipped (%s)", o.TourID, o.Reason)
	default:
		if o.Tour != nil {
			return fmt.Sprintf("tour %d: synced (%.1f km, %d min)", o.TourID, o.Tour.DistanceKm, o.Tour.EstimatedMinutes)
		}
		return fmt.Sprintf("tour %d: synced", o.TourID)
	}
}

// Pending is the future returned by the asynchronous engine operations.
type Pending struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

func newPending() *Pending {
	return &Pending{done: make(chan struct{})}
}

func (p *Pending) resolve(o Outcome, err error) {
	p.outcome = o
	p.err = err
	close(p.done)
}

// Done is closed once the operation has finished, including persistence.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the operation finishes or ctx is done. The returned
// error reports persistence failures and cancellation only; routing
// failures are carried in Outcome.Err. Giving up on Wait does not cancel the
// operation itself.
func (p *Pending) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Observer receives every outcome the engine persists.
type Observer interface {
	OnSyncOutcome(Outcome)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Outcome)

func (f ObserverFunc) OnSyncOutcome(o Outcome) { f(o) }
