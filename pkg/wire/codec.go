package wire

import (
	"encoding/json"
	"fmt"
)

// MalformedFrameError reports a frame that could not be decoded or is
// missing its discriminator. It is non-fatal: the receive loop reports
// it and moves on to the next frame.
type MalformedFrameError struct {
	Reason string
	Data   []byte
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("malformed frame: %s", e.Reason)
}

// emptyPayload is the encoded empty payload object.
var emptyPayload = json.RawMessage(`{}`)

// Marshal encodes a packet to a text frame.
func Marshal(p *Packet) ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a raw text frame into a packet.
// Unknown fields are ignored for forward compatibility. A frame that is
// not valid JSON or has no topic yields a *MalformedFrameError.
func Decode(data []byte) (*Packet, error) {
	var p Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &MalformedFrameError{Reason: err.Error(), Data: data}
	}
	if p.Topic == "" {
		return nil, &MalformedFrameError{Reason: "missing topic", Data: data}
	}
	return &p, nil
}

// EncodeJoin builds a join frame for a channel topic.
func EncodeJoin(topic string, ref uint64) ([]byte, error) {
	return Marshal(&Packet{
		Topic:   topic,
		Event:   EventJoin,
		Payload: emptyPayload,
		Ref:     &ref,
	})
}

// EncodeLeave builds a leave frame for a channel topic.
func EncodeLeave(topic string, ref uint64) ([]byte, error) {
	return Marshal(&Packet{
		Topic:   topic,
		Event:   EventLeave,
		Payload: emptyPayload,
		Ref:     &ref,
	})
}

// EncodeKeepAlive builds a keep-alive frame on the phoenix topic.
func EncodeKeepAlive(ref uint64) ([]byte, error) {
	return Marshal(&Packet{
		Topic:   TopicPhoenix,
		Event:   EventKeepAlive,
		Payload: emptyPayload,
		Ref:     &ref,
	})
}

// ParseReply decodes the reply payload of a phx_reply packet.
func ParseReply(p *Packet) (*ReplyPayload, error) {
	var reply ReplyPayload
	if len(p.Payload) > 0 {
		if err := json.Unmarshal(p.Payload, &reply); err != nil {
			return nil, &MalformedFrameError{Reason: "bad reply payload: " + err.Error(), Data: p.Payload}
		}
	}
	return &reply, nil
}

// ParseHeartbeat decodes a heartbeat push payload.
// ok is false when the payload carries no hr field, which the relay
// sends for bookkeeping pushes the client should ignore.
func ParseHeartbeat(p *Packet) (HeartbeatPayload, bool, error) {
	var raw struct {
		HR *int `json:"hr"`
	}
	if len(p.Payload) == 0 {
		return HeartbeatPayload{}, false, nil
	}
	if err := json.Unmarshal(p.Payload, &raw); err != nil {
		return HeartbeatPayload{}, false, &MalformedFrameError{Reason: "bad heartbeat payload: " + err.Error(), Data: p.Payload}
	}
	if raw.HR == nil {
		return HeartbeatPayload{}, false, nil
	}
	return HeartbeatPayload{HR: *raw.HR}, true, nil
}

// ParseClip decodes a clip push payload.
// ok is false when the payload carries no twitch_slug field.
func ParseClip(p *Packet) (ClipPayload, bool, error) {
	var raw struct {
		TwitchSlug *string `json:"twitch_slug"`
	}
	if len(p.Payload) == 0 {
		return ClipPayload{}, false, nil
	}
	if err := json.Unmarshal(p.Payload, &raw); err != nil {
		return ClipPayload{}, false, &MalformedFrameError{Reason: "bad clip payload: " + err.Error(), Data: p.Payload}
	}
	if raw.TwitchSlug == nil {
		return ClipPayload{}, false, nil
	}
	return ClipPayload{TwitchSlug: *raw.TwitchSlug}, true, nil
}
