// Package identity holds the logged-in session and the identity every realtime
// connection is scoped by.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/logiride/client/internal/domain/shared"
)

// Role is the platform role of an account
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleDriver   Role = "DRIVER"
)

// IsValid returns true if the role is known
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleDriver:
		return true
	}
	return false
}

// ParseRole normalises a role string coming from the server or a token claim.
// Unknown values map to RoleCustomer.
func ParseRole(s string) Role {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if r.IsValid() {
		return r
	}
	return RoleCustomer
}

// Session is the only durable client-side state: the bearer token pair plus
// the minimal profile shown across screens.
type Session struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	AccountID    string    `json:"accountId"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	FullName     string    `json:"fullName,omitempty"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Avatar       string    `json:"avatar,omitempty"`
	LoggedInAt   time.Time `json:"loggedInAt"`
}

// Validate checks that the session carries enough to authenticate requests
func (s *Session) Validate() error {
	if s == nil || s.AccessToken == "" {
		return shared.NewDomainError("INVALID_SESSION", "Session has no access token")
	}
	return nil
}

// IsDriver reports whether the session belongs to a driver account
func (s *Session) IsDriver() bool {
	return s != nil && s.Role == RoleDriver
}

// SessionStore persists the session between launches.
// Get returns shared.ErrNoSession when nothing is stored.
type SessionStore interface {
	Get(ctx context.Context) (*Session, error)
	Set(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}
