// Package wire defines the JSON wire format for the HypeRate relay.
//
// Every frame is a WebSocket text message carrying a small Phoenix-style
// envelope:
//
//	{"topic": "hr:abc123", "event": "phx_join", "payload": {}, "ref": 1}
//
// # Topics
//
// Channels are addressed by topic. Heartbeat channels use "hr:<id>",
// clip channels use "clips:<id>", and the reserved "phoenix" topic
// carries keep-alive traffic.
//
// # Events
//
// Control events are the Phoenix channel verbs (phx_join, phx_leave,
// phx_reply, phx_error). Data pushes on a channel topic may omit the
// event field entirely; they are classified by topic and payload shape.
//
// # Forward compatibility
//
// Decoding tolerates unknown envelope and payload fields. A frame
// missing its topic discriminator is malformed; malformed frames are
// reported to the caller and skipped, never fatal to the connection.
package wire
