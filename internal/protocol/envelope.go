// Package protocol defines the JSON envelope exchanged over persistent
// connections. Every frame is a discriminated object {"type": ..., "data": ...};
// unknown inbound types are echoed back rather than rejected.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Inbound envelope types recognized by the processor.
const (
	TypeJoinGroup  = "join_group"
	TypeLeaveGroup = "leave_group"
	TypeBroadcast  = "broadcast"
	TypePing       = "ping"
)

// Outbound envelope types.
const (
	TypeJoinedGroup = "joined_group"
	TypeLeftGroup   = "left_group"
	TypePong        = "pong"
	TypeEcho        = "echo"
	TypeHeartbeat   = "heartbeat"
	TypeError       = "error"
)

// Envelope is a single message unit on the wire.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into an Envelope. A frame without a type
// discriminator is malformed.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errors.New("envelope missing type discriminator")
	}
	return env, nil
}

// Encode serializes an envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// GroupPayload is the payload of join_group / leave_group requests and their
// acknowledgments.
type GroupPayload struct {
	Group string `json:"group"`
}

// BroadcastPayload is the payload of a broadcast request. Group is optional;
// when empty the message goes to every live connection.
type BroadcastPayload struct {
	Group string          `json:"group,omitempty"`
	Data  json.RawMessage `json:"data"`
}

// RelayPayload is delivered to broadcast recipients: the original data plus
// the originating connection and, for group broadcasts, the group name.
type RelayPayload struct {
	Group string          `json:"group,omitempty"`
	From  string          `json:"from"`
	Data  json.RawMessage `json:"data"`
}

// PongPayload answers a ping with the server clock.
type PongPayload struct {
	Timestamp int64 `json:"ts"`
}

// EchoPayload answers an unrecognized envelope with its original payload so
// clients can correlate.
type EchoPayload struct {
	ConnectionID string          `json:"connection_id"`
	Timestamp    int64           `json:"ts"`
	Original     json.RawMessage `json:"original,omitempty"`
	OriginalType string          `json:"original_type"`
}

// HeartbeatPayload is broadcast to all live connections at a fixed interval.
type HeartbeatPayload struct {
	Timestamp   int64 `json:"ts"`
	Connections int   `json:"connections"`
}

// ErrorPayload is a typed error reply; it never carries internal diagnostic
// detail, only a stable code and message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes carried by TypeError envelopes.
const (
	CodeMalformedPayload  = "MALFORMED_PAYLOAD"
	CodeGroupFull         = "GROUP_FULL"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

func mustEnvelope(typ string, payload any) Envelope {
	data, err := json.Marshal(payload)
	if err != nil {
		// All payload types above marshal unconditionally.
		panic(err)
	}
	return Envelope{Type: typ, Data: data}
}

// NewJoinedGroup acknowledges a successful group join.
func NewJoinedGroup(group string) Envelope {
	return mustEnvelope(TypeJoinedGroup, GroupPayload{Group: group})
}

// NewLeftGroup acknowledges a group leave.
func NewLeftGroup(group string) Envelope {
	return mustEnvelope(TypeLeftGroup, GroupPayload{Group: group})
}

// NewBroadcastRelay wraps a client broadcast for delivery to recipients.
func NewBroadcastRelay(group, from string, data json.RawMessage) Envelope {
	return mustEnvelope(TypeBroadcast, RelayPayload{Group: group, From: from, Data: data})
}

// NewPong answers a ping.
func NewPong(now time.Time) Envelope {
	return mustEnvelope(TypePong, PongPayload{Timestamp: now.UnixMilli()})
}

// NewEcho answers an unrecognized envelope.
func NewEcho(connID, originalType string, original json.RawMessage, now time.Time) Envelope {
	return mustEnvelope(TypeEcho, EchoPayload{
		ConnectionID: connID,
		Timestamp:    now.UnixMilli(),
		Original:     original,
		OriginalType: originalType,
	})
}

// NewHeartbeat builds the periodic heartbeat envelope.
func NewHeartbeat(now time.Time, connections int) Envelope {
	return mustEnvelope(TypeHeartbeat, HeartbeatPayload{
		Timestamp:   now.UnixMilli(),
		Connections: connections,
	})
}

// NewError builds a typed error reply.
func NewError(code, message string) Envelope {
	return mustEnvelope(TypeError, ErrorPayload{Code: code, Message: message})
}
