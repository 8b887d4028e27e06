// Package transport owns the WebSocket connection to the relay.
//
// A Client dials the relay endpoint with a bounded handshake timeout
// (default 30s). The resulting Conn serializes frame writes, runs a
// single receive loop and exposes inbound frames as a channel that
// closes when the connection dies; CloseReason reports why. The Conn
// never drops frames: the receive loop blocks until the consumer takes
// delivery, and slow-handler isolation is the dispatcher's job.
//
// Session-level concerns (reconnection, keep-alive, resubscription)
// live above this package.
package transport
