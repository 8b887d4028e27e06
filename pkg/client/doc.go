// Package client implements the HypeRate relay session.
//
// A Client owns one logical connection to the relay and everything that
// keeps it alive: the WebSocket transport, the keep-alive loop, the
// reconnection state machine and the handler dispatcher. Applications
// declare which device channels they want with SubscribeHeartbeat and
// SubscribeClip, register handlers with On, and the client keeps the
// channel memberships in effect across reconnects.
package client
