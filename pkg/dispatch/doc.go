// Package dispatch routes inbound events to registered handlers.
//
// Handlers register for an event category, optionally filtered to a
// single channel. Registration order is preserved: every matching
// handler sees every matching event, in the order the handlers were
// registered, even when an earlier handler fails.
//
// Delivery is queued and asynchronous. Dispatch enqueues onto a bounded
// queue (default 256 events) drained by one goroutine, so ordering is
// preserved and a slow or blocking handler can never stall the receive
// loop. When the queue overflows the oldest event is dropped and the
// drop is reported, favoring fresh heartbeats over stale ones. Handler
// errors and panics are contained at the dispatch boundary and reported
// through the error callback.
package dispatch
