package wire

import (
	"encoding/json"
	"strings"
)

// Phoenix channel event names.
const (
	// EventJoin requests membership of a channel.
	EventJoin = "phx_join"

	// EventLeave ends membership of a channel.
	EventLeave = "phx_leave"

	// EventReply acknowledges a join, leave or keep-alive.
	EventReply = "phx_reply"

	// EventError signals a channel-scoped error from the relay.
	EventError = "phx_error"

	// EventClose signals the relay closed the channel.
	EventClose = "phx_close"

	// EventKeepAlive is the keep-alive event on the phoenix topic.
	EventKeepAlive = "heartbeat"
)

// TopicPhoenix is the reserved keep-alive topic.
const TopicPhoenix = "phoenix"

// Topic prefixes for the two channel kinds.
const (
	heartbeatPrefix = "hr:"
	clipsPrefix     = "clips:"
)

// Reply status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Packet is the envelope carried by every frame in either direction.
type Packet struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Ref     *uint64         `json:"ref,omitempty"`
}

// RefValue returns the packet ref, or 0 if absent.
func (p *Packet) RefValue() uint64 {
	if p.Ref == nil {
		return 0
	}
	return *p.Ref
}

// IsReply reports whether the packet is a phx_reply.
func (p *Packet) IsReply() bool {
	return p.Event == EventReply
}

// HeartbeatTopic returns the heartbeat channel topic for a device.
func HeartbeatTopic(deviceID string) string {
	return heartbeatPrefix + deviceID
}

// ClipsTopic returns the clip channel topic for a device.
func ClipsTopic(deviceID string) string {
	return clipsPrefix + deviceID
}

// SplitTopic splits a channel topic into its prefix and identifier.
// ok is false for topics that are not hr:/clips: channels.
func SplitTopic(topic string) (kind, id string, ok bool) {
	switch {
	case strings.HasPrefix(topic, heartbeatPrefix):
		return heartbeatPrefix, topic[len(heartbeatPrefix):], true
	case strings.HasPrefix(topic, clipsPrefix):
		return clipsPrefix, topic[len(clipsPrefix):], true
	default:
		return "", "", false
	}
}

// IsHeartbeatTopic reports whether topic addresses a heartbeat channel.
func IsHeartbeatTopic(topic string) bool {
	return strings.HasPrefix(topic, heartbeatPrefix)
}

// IsClipsTopic reports whether topic addresses a clip channel.
func IsClipsTopic(topic string) bool {
	return strings.HasPrefix(topic, clipsPrefix)
}

// HeartbeatPayload is the payload of a heartbeat push.
// The bpm value is opaque to the client; it is delivered as-is.
type HeartbeatPayload struct {
	HR int `json:"hr"`
}

// ClipPayload is the payload of a clip notification push.
type ClipPayload struct {
	TwitchSlug string `json:"twitch_slug"`
}

// ReplyPayload is the payload of a phx_reply.
type ReplyPayload struct {
	Status   string        `json:"status"`
	Response ReplyResponse `json:"response"`
}

// ReplyResponse carries the relay's response detail, of which only the
// error reason is interesting to the client.
type ReplyResponse struct {
	Reason string `json:"reason"`
}

// OK reports whether the reply acknowledges success.
func (r *ReplyPayload) OK() bool {
	return r.Status == StatusOK
}
