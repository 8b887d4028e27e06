package log

import "time"

// Direction indicates message flow relative to the client.
type Direction uint8

const (
	// DirectionLocal marks events that involve no frame (state
	// changes, internal errors).
	DirectionLocal Direction = iota

	// DirectionIn marks frames received from the relay.
	DirectionIn

	// DirectionOut marks frames sent to the relay.
	DirectionOut
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionLocal:
		return "local"
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return "unknown"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryConnection covers connect, disconnect and state changes.
	CategoryConnection Category = iota

	// CategoryFrame covers individual wire frames.
	CategoryFrame

	// CategoryKeepAlive covers keep-alive pings and pongs.
	CategoryKeepAlive

	// CategoryError covers non-fatal errors (malformed frames, failed
	// sends, handler failures).
	CategoryError
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "connection"
	case CategoryFrame:
		return "frame"
	case CategoryKeepAlive:
		return "keepalive"
	case CategoryError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one protocol log record.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `json:"ts"`

	// ConnectionID correlates events belonging to one connection
	// attempt (UUID, regenerated on every reconnect).
	ConnectionID string `json:"conn_id,omitempty"`

	// Direction indicates frame flow.
	Direction Direction `json:"direction"`

	// Category classifies the event.
	Category Category `json:"category"`

	// Topic is the channel topic a frame relates to, if any.
	Topic string `json:"topic,omitempty"`

	// FrameEvent is the wire event name (phx_join, phx_reply, ...).
	FrameEvent string `json:"event,omitempty"`

	// State carries the new connection state for connection events.
	State string `json:"state,omitempty"`

	// Detail is a free-form human-readable message.
	Detail string `json:"detail,omitempty"`

	// Err is the error text for error events.
	Err string `json:"err,omitempty"`

	// Size is the frame size in bytes, for frame events.
	Size int `json:"size,omitempty"`
}
