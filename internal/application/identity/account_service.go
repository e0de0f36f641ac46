package identity

import (
	"context"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// AccountService reads and edits the signed-in account
type AccountService struct {
	api      API
	sessions identity.SessionStore
	logger   *zap.Logger
}

// NewAccountService creates a new account service
func NewAccountService(api API, sessions identity.SessionStore, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{api: api, sessions: sessions, logger: logger}
}

// Profile fetches the account profile
func (s *AccountService) Profile(ctx context.Context) (*identity.Profile, error) {
	var p identity.Profile
	if err := s.api.Get(ctx, PathProfile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProfile saves the profile and refreshes the profile fields of the stored session
func (s *AccountService) UpdateProfile(ctx context.Context, f form.ProfileForm) (*identity.Profile, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	var p identity.Profile
	if err := s.api.Put(ctx, PathProfile, f, &p); err != nil {
		return nil, err
	}

	session, err := s.sessions.Get(ctx)
	if err == nil && session != nil {
		session.FullName = p.FullName
		session.Email = p.Email
		session.Avatar = p.Avatar
		if err := s.sessions.Set(ctx, session); err != nil {
			s.logger.Warn("Failed to refresh stored session", zap.Error(err))
		}
	}
	return &p, nil
}

// ChangePassword replaces the account password
func (s *AccountService) ChangePassword(ctx context.Context, f form.ChangePasswordForm) error {
	if err := validation.Check(f); err != nil {
		return err
	}
	return s.api.Put(ctx, PathPassword, f, nil)
}
