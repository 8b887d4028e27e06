// Package subscription tracks which relay channels the application
// wants joined.
//
// The Registry is the single source of truth for subscription intent.
// The session layer never holds its own copy: after every reconnect it
// replays the registry snapshot as join frames, so channels added or
// removed while disconnected are reproduced exactly.
//
// Subscribe and Unsubscribe are idempotent. Snapshot returns a
// consistent point-in-time copy that is safe to iterate while the
// registry is mutated concurrently.
package subscription
