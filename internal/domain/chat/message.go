// Package chat holds the booking conversation transcript.
package chat

import (
	"strings"
	"time"

	"github.com/logiride/client/internal/domain/shared"
)

// SenderRole tells the renderer which side of the conversation a message is on
type SenderRole string

const (
	RoleSelf SenderRole = "self"
	RolePeer SenderRole = "peer"
)

// DeliveryStatus tracks an outbound message after the optimistic append
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusSent      DeliveryStatus = "SENT"
	StatusFailed    DeliveryStatus = "FAILED"
)

// MaxTextLength bounds a single chat message
const MaxTextLength = 1000

// ErrEmptyMessage is returned when a blank message is sent
var ErrEmptyMessage = shared.NewDomainError("EMPTY_MESSAGE", "Message cannot be empty")

// ErrMessageTooLong is returned when a message exceeds MaxTextLength runes
var ErrMessageTooLong = shared.NewDomainError("MESSAGE_TOO_LONG", "Message is too long")

// Message is one line of the transcript
type Message struct {
	ID        string         `json:"id,omitempty"`
	ClientKey string         `json:"clientKey,omitempty"`
	BookingID string         `json:"bookingId,omitempty"`
	SenderID  string         `json:"senderId"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Role      SenderRole     `json:"-"`
	Status    DeliveryStatus `json:"-"`
}

// IsMine reports whether the message was written by the local account
func (m Message) IsMine() bool {
	return m.Role == RoleSelf
}

// NormalizeText trims the text and enforces the length limit
func NormalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if len([]rune(text)) > MaxTextLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// Tag sets Role from a sender id comparison
func Tag(m Message, isSelf func(senderID string) bool) Message {
	if isSelf(m.SenderID) {
		m.Role = RoleSelf
	} else {
		m.Role = RolePeer
	}
	if m.Status == "" {
		m.Status = StatusDelivered
	}
	return m
}
