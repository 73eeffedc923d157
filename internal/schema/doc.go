// Package schema defines the tour planner's entities: tours and the logs
// recorded against them.
//
// A Tour carries two groups of fields. The basic fields (name, endpoints,
// transport type, description) are owned by the user. The derived route
// fields (distance, estimated time, geometry) are written only by the route
// synchronization engine and cache the last successful provider response.
// A zero DistanceKm means "never successfully synced", not a zero-length
// route.
package schema
