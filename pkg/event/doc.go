// Package event defines the inbound events the client delivers to
// registered handlers.
//
// Events are a tagged variant: each concrete type reports a Category
// used for handler registration, and the channel identifier it relates
// to (empty for connection-level events). Events are immutable once
// constructed; the dispatcher never mutates them.
package event
