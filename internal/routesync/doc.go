// Package routesync keeps a tour's derived route fields (distance, estimated
// time, geometry) consistent with its endpoints and transport type.
//
// The engine is the only writer of the derived fields. It decides when a
// tour is stale, asks the routing provider for a new route, and persists the
// tour with its basic and derived fields in one repository call.
//
// Per tour the engine behaves like a small state machine:
//
//	Unsynced    distance 0, endpoints set; created, or inputs changed
//	Synced      derived fields reflect the current inputs
//	SyncFailed  last attempt failed; previous derived fields are kept
//
// A failed attempt is never retried automatically. ForceResync and
// InitializeBacklog are the two ways to try again.
//
// Work for the same tour id runs strictly in submission order, one
// operation at a time, so two overlapping saves cannot interleave their
// provider calls or persist out of order. Work for different tours runs
// concurrently.
//
// Usage:
//
//	engine := routesync.New(client, db, logger)
//	pending := engine.OnTourSaved(ctx, previous, updated)
//	outcome, err := pending.Wait(ctx)
package routesync
