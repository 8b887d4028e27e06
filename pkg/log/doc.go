// Package log captures structured protocol events from the relay
// client: connections, frames, keep-alive traffic and errors.
//
// Applications pass a Logger to the client config. The SlogAdapter
// bridges events into a standard log/slog logger for console use, the
// FileLogger appends JSON lines for offline analysis, and MultiLogger
// fans out to several sinks at once. Pass nothing to disable logging.
package log
