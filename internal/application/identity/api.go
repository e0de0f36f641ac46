// Package identity holds the sign-in and account use cases.
package identity

import (
	"context"

	"github.com/logiride/client/internal/infrastructure/httpclient"
)

// API is the part of the REST client the identity services use
type API interface {
	Get(ctx context.Context, path string, out any, opts ...httpclient.CallOption) error
	Post(ctx context.Context, path string, body, out any, opts ...httpclient.CallOption) error
	Put(ctx context.Context, path string, body, out any, opts ...httpclient.CallOption) error
}

var _ API = (*httpclient.Client)(nil)

// Endpoints
const (
	PathLogin    = "/api/auth/login"
	PathRegister = "/api/auth/register"
	PathProfile  = "/api/account/profile"
	PathPassword = "/api/account/password"
)
