// Package realtime is the WebSocket push channel: the wire envelope, the
// event registry and a connection that reconnects until it is closed.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a push event
type EventType string

// Named events
const (
	EventNotification    EventType = "NOTIFICATION"
	EventMessageReceived EventType = "MESSAGE_RECEIVED"
	EventMessageSend     EventType = "MESSAGE_SEND"
	EventLocation        EventType = "LOCATION"
)

// ErrMalformedContent is wrapped by DecodeContent failures
var ErrMalformedContent = errors.New("malformed event content")

// Envelope is the outer frame of every push message. Content normally holds
// a JSON-encoded string that carries the real payload.
type Envelope struct {
	Type      EventType       `json:"type"`
	Content   json.RawMessage `json:"content,omitempty"`
	Room      string          `json:"room,omitempty"`
	Sender    string          `json:"sender,omitempty"`
	ClientKey string          `json:"clientKey,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"` // unix millis
}

// Time returns the envelope timestamp, or the zero time
func (e Envelope) Time() time.Time {
	if e.Timestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.Timestamp)
}

// ParseEnvelope decodes one frame
func ParseEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedContent)
	}
	return env, nil
}

// DecodeContent unwraps the payload of env into v. A string content is
// decoded twice; a bare JSON object is accepted as is.
func DecodeContent(env Envelope, v any) error {
	raw := bytes.TrimSpace(env.Content)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: empty content", ErrMalformedContent)
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedContent, err)
		}
		raw = []byte(inner)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedContent, err)
	}
	return nil
}

// EncodeContent marshals v and wraps it as a JSON string
func EncodeContent(v any) (json.RawMessage, error) {
	inner, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(inner))
}

// NewEnvelope builds an outbound envelope with v as its content
func NewEnvelope(t EventType, room, sender string, v any) (Envelope, error) {
	content, err := EncodeContent(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:      t,
		Content:   content,
		Room:      room,
		Sender:    sender,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}
