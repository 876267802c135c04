package domain

import (
	"encoding/json"
)

// Envelope - кадр websocket-протокола в обе стороны.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(eventType, requestID string, payload interface{}) (*Envelope, error) {
	env := &Envelope{Type: eventType, RequestID: requestID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return env, nil
}

// Server -> client
const (
	EventSnapshot = "snapshot"
	EventTyping   = "typing"
	EventStatus   = "status"
	EventError    = "error"
)

// Client -> server
const (
	EventTypingSet   = "typing:set"
	EventCheckStatus = "check:status"
	EventHeartbeat   = "heartbeat"
)

type SnapshotPayload struct {
	Messages []*Message `json:"messages"`
}

type TypingPayload struct {
	Users []TypingUser `json:"users"`
}

type TypingSetPayload struct {
	Typing bool `json:"typing"`
}

type StatusRequest struct {
	UserID string `json:"user_id,omitempty"`
}

type StatusPayload struct {
	UserID       string `json:"user_id"`
	Online       bool   `json:"online"`
	LastOnlineAt *int64 `json:"last_online_at,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}
