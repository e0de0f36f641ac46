package identity

import (
	"github.com/logiride/client/internal/domain/shared"
)

// ChannelIdentity associates realtime connections with the right logical
// channel. It is resolved once when the session starts and passed to every
// connection constructor instead of being re-derived per consumer.
type ChannelIdentity struct {
	AccountID string
	Username  string
	Role      Role
}

// ErrIncompleteIdentity is returned when neither the session nor the token
// carries an account id.
var ErrIncompleteIdentity = shared.NewDomainError("INCOMPLETE_IDENTITY", "Cannot resolve account id for realtime channel")

// NewChannelIdentity builds the identity from a session, letting values decoded
// from the access token win over the cached profile fields.
func NewChannelIdentity(session *Session, tokenAccountID, tokenUsername string, tokenRole Role) (ChannelIdentity, error) {
	id := ChannelIdentity{}
	if session != nil {
		id.AccountID = session.AccountID
		id.Username = session.Username
		id.Role = session.Role
	}
	if tokenAccountID != "" {
		id.AccountID = tokenAccountID
	}
	if tokenUsername != "" {
		id.Username = tokenUsername
	}
	if tokenRole.IsValid() {
		id.Role = tokenRole
	}
	if id.AccountID == "" {
		return ChannelIdentity{}, ErrIncompleteIdentity
	}
	if id.Username == "" {
		id.Username = id.AccountID
	}
	if !id.Role.IsValid() {
		id.Role = RoleCustomer
	}
	return id, nil
}

// NotificationRoom is the room trip notifications for this account arrive on
func (c ChannelIdentity) NotificationRoom() string {
	return c.AccountID
}

// ChatRoom is the room for the conversation attached to a booking
func (c ChannelIdentity) ChatRoom(bookingID string) string {
	return bookingID
}

// IsSelf reports whether a sender id refers to this account
func (c ChannelIdentity) IsSelf(senderID string) bool {
	return senderID != "" && senderID == c.AccountID
}
