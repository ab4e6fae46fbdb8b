package wsbridge

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope on the wire.
type MessageType string

const (
	TypeRegister     MessageType = "register"
	TypeRegisterAck  MessageType = "register_ack"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeHeartbeatAck MessageType = "heartbeat_ack"
	TypeSessionEvent MessageType = "session_event"
	TypeError        MessageType = "error"
)

// Envelope is the framing for every message exchanged with the hub. Requests
// carry a RequestID the response echoes back; events leave it empty.
type Envelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RegisterPayload announces an engine instance to the hub.
type RegisterPayload struct {
	InstanceName string `json:"instanceName"`
	Version      string `json:"version"`
}

// RegisterAckPayload is the hub's answer to a register request.
type RegisterAckPayload struct {
	Accepted   bool   `json:"accepted"`
	InstanceID string `json:"instanceId,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// SessionEventPayload carries one session or task event to the hub.
type SessionEventPayload struct {
	SessionID string `json:"sessionId"`
	EventType string `json:"eventType"`
	Data      any    `json:"data,omitempty"`
}

// ErrorPayload reports a failed request.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewRequest builds an envelope with a fresh request ID.
func NewRequest(t MessageType, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, RequestID: uuid.NewString(), Payload: raw}, nil
}

// NewResponse builds an envelope answering the given request ID.
func NewResponse(requestID string, t MessageType, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, RequestID: requestID, Payload: raw}, nil
}

// NewEvent builds a one-way envelope (no request ID).
func NewEvent(t MessageType, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", t, err)
	}
	return &Envelope{Type: t, Payload: raw}, nil
}

// NewError builds an error response for the given request ID.
func NewError(requestID, code, message string) (*Envelope, error) {
	return NewResponse(requestID, TypeError, &ErrorPayload{Code: code, Message: message})
}

// DecodePayload unmarshals an envelope's payload into out.
func DecodePayload(env *Envelope, out any) error {
	if len(env.Payload) == 0 {
		return fmt.Errorf("envelope %s has no payload", env.Type)
	}
	return json.Unmarshal(env.Payload, out)
}
