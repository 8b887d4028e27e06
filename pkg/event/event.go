package event

import (
	"time"

	"github.com/hyperate/hyperate-go/pkg/connection"
)

// Category classifies events for handler registration.
type Category uint8

const (
	// CategoryConnection covers connection state changes.
	CategoryConnection Category = iota

	// CategoryHeartbeat covers heartbeat pushes.
	CategoryHeartbeat

	// CategoryClip covers clip notification pushes.
	CategoryClip

	// CategoryChannelJoined covers join acknowledgements.
	CategoryChannelJoined

	// CategoryChannelLeft covers leave acknowledgements.
	CategoryChannelLeft

	// CategoryChannelError covers channel-scoped relay errors.
	CategoryChannelError

	// CategoryPong covers keep-alive replies.
	CategoryPong

	// CategoryError covers internal errors surfaced as events
	// (malformed frames, handler failures, send failures).
	CategoryError
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryConnection:
		return "CONNECTION"
	case CategoryHeartbeat:
		return "HEARTBEAT"
	case CategoryClip:
		return "CLIP"
	case CategoryChannelJoined:
		return "CHANNEL_JOINED"
	case CategoryChannelLeft:
		return "CHANNEL_LEFT"
	case CategoryChannelError:
		return "CHANNEL_ERROR"
	case CategoryPong:
		return "PONG"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Event is one inbound event. Channel returns the device identifier the
// event relates to, or "" for connection-level events; it is what
// per-channel handler filters match against.
type Event interface {
	Category() Category
	Channel() string
}

// Heartbeat is one heartbeat sample from a device channel.
// The BPM value is an opaque number relayed as-is.
type Heartbeat struct {
	DeviceID  string
	BPM       int
	Timestamp time.Time
}

func (Heartbeat) Category() Category { return CategoryHeartbeat }
func (e Heartbeat) Channel() string  { return e.DeviceID }

// Clip is a clip notification from a device's clip feed.
type Clip struct {
	DeviceID   string
	TwitchSlug string
	Timestamp  time.Time
}

func (Clip) Category() Category { return CategoryClip }
func (e Clip) Channel() string  { return e.DeviceID }

// ChannelJoined reports that the relay acknowledged a join.
type ChannelJoined struct {
	DeviceID string
	Topic    string
}

func (ChannelJoined) Category() Category { return CategoryChannelJoined }
func (e ChannelJoined) Channel() string  { return e.DeviceID }

// ChannelLeft reports that the relay acknowledged a leave.
type ChannelLeft struct {
	DeviceID string
	Topic    string
}

func (ChannelLeft) Category() Category { return CategoryChannelLeft }
func (e ChannelLeft) Channel() string  { return e.DeviceID }

// ChannelError reports that the relay rejected an operation on a
// channel. The subscription intent stays in the registry, so the join
// is retried on the next reconnect unless the application unsubscribes.
type ChannelError struct {
	DeviceID string
	Topic    string
	Reason   string
}

func (ChannelError) Category() Category { return CategoryChannelError }
func (e ChannelError) Channel() string  { return e.DeviceID }

// Pong is a keep-alive reply from the relay.
type Pong struct {
	Timestamp time.Time
}

func (Pong) Category() Category { return CategoryPong }
func (Pong) Channel() string    { return "" }

// StateChanged reports a connection state transition.
type StateChanged struct {
	Old connection.State
	New connection.State
}

func (StateChanged) Category() Category { return CategoryConnection }
func (StateChanged) Channel() string    { return "" }

// Error surfaces a non-fatal internal error: a malformed frame, a
// failing handler or a failed send. The connection stays up.
type Error struct {
	Op  string
	Err error
}

func (Error) Category() Category { return CategoryError }
func (Error) Channel() string    { return "" }

func (e Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the wrapped error.
func (e Error) Unwrap() error { return e.Err }
