// Package v1 defines the admin device feed protocol, version 1.
//
// The feed is server-push: after the hello handshake the server sends one
// device_event envelope per Device Registry state change. Clients may send
// ping to probe liveness; nothing else is accepted.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is embedded into every envelope.
const Version = "v1"

// Subprotocol is the required Sec-WebSocket-Protocol value.
const Subprotocol = "pdfgate.devices.v1"

// Type constants (wire-stable).
const (
	TypeHello    = "hello"     // client -> server
	TypeHelloAck = "hello_ack" // server -> client

	TypeDeviceEvent = "device_event" // server -> client

	TypePing = "ping" // client -> server
	TypePong = "pong" // server -> client

	TypeError = "error"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs structural validation for an inbound Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	switch e.Type {
	case TypeHello, TypeHelloAck, TypeDeviceEvent, TypePing, TypePong, TypeError:
		return nil
	case "":
		return errors.New("missing field: type")
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

type HelloPayload struct {
	Client string `json:"client,omitempty"`
}

type HelloAckPayload struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
}

// DeviceEventPayload mirrors a device record after a state change.
type DeviceEventPayload struct {
	Event       string     `json:"event"`
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	DeviceID    string     `json:"device_id"`
	Label       string     `json:"label"`
	Status      string     `json:"status"`
	RequestedAt time.Time  `json:"requested_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	RejectedAt  *time.Time `json:"rejected_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	At          time.Time  `json:"at"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
