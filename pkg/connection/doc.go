// Package connection manages the relay connection lifecycle.
//
// The Manager owns the connection state machine:
//
//	Disconnected -> Connecting -> Connected -> (Reconnecting <-> Connecting) -> Closed
//
// Closed is terminal and only reached by an explicit Close. Every other
// state advances automatically: a failed or lost connection schedules a
// reconnection attempt after an exponential backoff delay with jitter,
// retried indefinitely until the connection succeeds or the manager is
// closed.
//
// All state transitions are serialized behind a single mutex, so
// "resubscribe on reconnect" never races an application teardown.
package connection
