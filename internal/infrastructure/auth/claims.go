package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/logiride/client/internal/domain/identity"
)

// TokenType represents the type of JWT token
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingAccountID = errors.New("missing accountId in claims")
)

// Claims are the platform token claims. The client reads them without the
// signing key; only the platform verifies signatures.
type Claims struct {
	jwt.RegisteredClaims
	AccountID string    `json:"accountId"`
	Username  string    `json:"username,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenType `json:"tokenType,omitempty"`
}

// ParseUnverified decodes the claims of a token without checking its signature.
// It is used client-side to resolve the channel identity and to notice expiry early.
func ParseUnverified(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.AccountID == "" {
		claims.AccountID = claims.Subject
	}
	return claims, nil
}

// IdentityRole returns the role claim as a domain role. An empty or unknown
// claim yields "" so the session value is kept.
func (c *Claims) IdentityRole() identity.Role {
	r := identity.Role(c.Role)
	if !r.IsValid() && c.Role != "" {
		return identity.ParseRole(c.Role)
	}
	return r
}

// ResolveChannelIdentity builds the channel identity for a session, preferring
// what the access token says. A token that cannot be decoded falls back to the
// session fields.
func ResolveChannelIdentity(session *identity.Session) (identity.ChannelIdentity, error) {
	if session == nil {
		return identity.ChannelIdentity{}, identity.ErrIncompleteIdentity
	}
	claims, err := ParseUnverified(session.AccessToken)
	if err != nil {
		return identity.NewChannelIdentity(session, "", "", "")
	}
	return identity.NewChannelIdentity(session, claims.AccountID, claims.Username, claims.IdentityRole())
}

// ExpiresAtTime returns the expiry, or the zero time when the token has none
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// ExpiredAt reports whether the token is expired at now
func (c *Claims) ExpiredAt(now time.Time) bool {
	exp := c.ExpiresAtTime()
	return !exp.IsZero() && !now.Before(exp)
}
