package subscription

import "github.com/hyperate/hyperate-go/pkg/wire"

// Kind identifies the type of channel a subscription addresses.
type Kind uint8

const (
	// KindHeartbeat subscribes to a device's heartbeat stream.
	KindHeartbeat Kind = iota

	// KindClip subscribes to a device's clip notification feed.
	KindClip
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "HEARTBEAT"
	case KindClip:
		return "CLIP"
	default:
		return "UNKNOWN"
	}
}

// Subscription identifies one logical channel. Unique by (Kind, ID).
type Subscription struct {
	// Kind is the channel type.
	Kind Kind

	// ID is the device identifier the channel belongs to.
	ID string
}

// Heartbeat returns a heartbeat channel subscription for a device.
func Heartbeat(deviceID string) Subscription {
	return Subscription{Kind: KindHeartbeat, ID: deviceID}
}

// Clip returns a clip channel subscription for a device.
func Clip(deviceID string) Subscription {
	return Subscription{Kind: KindClip, ID: deviceID}
}

// Topic returns the wire topic for this subscription.
func (s Subscription) Topic() string {
	if s.Kind == KindClip {
		return wire.ClipsTopic(s.ID)
	}
	return wire.HeartbeatTopic(s.ID)
}

// FromTopic maps a wire topic back to a subscription.
// ok is false for topics that are not channel topics.
func FromTopic(topic string) (Subscription, bool) {
	_, id, ok := wire.SplitTopic(topic)
	if !ok {
		return Subscription{}, false
	}
	if wire.IsClipsTopic(topic) {
		return Clip(id), true
	}
	return Heartbeat(id), true
}
