package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/auth"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// AuthService signs the user in and out and resolves who the session belongs to
type AuthService struct {
	api      API
	sessions identity.SessionStore
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	tracked  []io.Closer
	onLogout []func(ctx context.Context)
}

// NewAuthService creates a new authentication service
func NewAuthService(api API, sessions identity.SessionStore, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		api:      api,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
	}
}

// Login authenticates with phone and password and stores the session
func (s *AuthService) Login(ctx context.Context, f form.LoginForm) (*identity.Session, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	s.logger.Info("Login attempt", zap.String("phone", f.Phone))

	var result identity.LoginResult
	if err := s.api.Post(ctx, PathLogin, f, &result, httpclient.Anonymous()); err != nil {
		s.logger.Warn("Login failed", zap.String("phone", f.Phone), zap.Error(err))
		return nil, err
	}

	session := result.Session(s.now())
	if err := session.Validate(); err != nil {
		return nil, fmt.Errorf("login response: %w", err)
	}
	if session.AccountID == "" {
		if claims, err := auth.ParseUnverified(session.AccessToken); err == nil {
			session.AccountID = claims.AccountID
		}
	}
	if err := s.sessions.Set(ctx, session); err != nil {
		return nil, fmt.Errorf("storing session: %w", err)
	}

	s.logger.Info("Login successful",
		zap.String("account_id", session.AccountID),
		zap.String("role", string(session.Role)),
	)
	return session, nil
}

// Register creates an account. The user signs in separately afterwards.
func (s *AuthService) Register(ctx context.Context, f form.RegisterForm) (*identity.Profile, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	var profile identity.Profile
	if err := s.api.Post(ctx, PathRegister, f, &profile, httpclient.Anonymous()); err != nil {
		return nil, err
	}
	s.logger.Info("Account registered", zap.String("account_id", profile.ID))
	return &profile, nil
}

// Logout closes tracked realtime channels and forgets the session. The
// platform keeps no server-side session so nothing is sent.
func (s *AuthService) Logout(ctx context.Context) error {
	s.teardown(ctx)
	if err := s.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clearing session: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

// HandleSessionExpired is installed as the HTTP client's expiry handler.
// The client has already cleared the store.
func (s *AuthService) HandleSessionExpired(ctx context.Context) {
	s.logger.Warn("Session expired, signing out")
	s.teardown(ctx)
}

// Current returns the stored session or shared.ErrNoSession
func (s *AuthService) Current(ctx context.Context) (*identity.Session, error) {
	session, err := s.sessions.Get(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, shared.ErrNoSession
	}
	return session, nil
}

// Identity resolves the channel identity of the current session
func (s *AuthService) Identity(ctx context.Context) (identity.ChannelIdentity, error) {
	session, err := s.Current(ctx)
	if err != nil {
		return identity.ChannelIdentity{}, err
	}
	return auth.ResolveChannelIdentity(session)
}

// Track registers c to be closed on logout or session expiry
func (s *AuthService) Track(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracked = append(s.tracked, c)
}

// OnLogout registers fn to run after tracked channels are closed on logout
// or session expiry
func (s *AuthService) OnLogout(fn func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, fn)
}

func (s *AuthService) teardown(ctx context.Context) {
	s.mu.Lock()
	tracked := s.tracked
	s.tracked = nil
	hooks := append([]func(context.Context){}, s.onLogout...)
	s.mu.Unlock()

	var errs []error
	for _, c := range tracked {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("Closing channels on logout", zap.Error(err))
	}
	for _, fn := range hooks {
		fn(ctx)
	}
}
