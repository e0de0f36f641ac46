package devserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/auth"
	"github.com/logiride/client/internal/infrastructure/logger"
	"github.com/logiride/client/internal/infrastructure/persistence"
)

const badCredentials = "Phone number or password is incorrect"

func (s *Server) login(c *gin.Context) {
	var f form.LoginForm
	if !bind(c, &f) {
		return
	}
	account, err := s.store.Accounts.FindByPhone(c.Request.Context(), f.Phone)
	if errors.Is(err, shared.ErrNotFound) {
		fail(c, http.StatusUnauthorized, badCredentials)
		return
	}
	if err != nil {
		handleError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(f.Password)) != nil {
		fail(c, http.StatusUnauthorized, badCredentials)
		return
	}

	result, err := s.issue(account)
	if err != nil {
		handleError(c, err)
		return
	}
	logger.GetGinLogger(c, s.logger).Info("Account logged in", zap.String("account_id", account.ID))
	success(c, result)
}

func (s *Server) register(c *gin.Context) {
	var f form.RegisterForm
	if !bind(c, &f) {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(f.Password), bcrypt.DefaultCost)
	if err != nil {
		handleError(c, err)
		return
	}
	account := &persistence.AccountModel{
		Phone:        f.Phone,
		PasswordHash: string(hash),
		FullName:     form.NormalizeName(f.FullName),
		Email:        f.Email,
		Role:         string(identity.ParseRole(f.Role)),
	}
	if err := s.store.Accounts.Create(c.Request.Context(), account); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			fail(c, http.StatusConflict, "Phone number is already registered")
			return
		}
		handleError(c, err)
		return
	}
	created(c, account.ToDomain())
}

func (s *Server) issue(account *persistence.AccountModel) (identity.LoginResult, error) {
	pair, err := s.jwt.GenerateTokenPair(auth.GenerateTokenInput{
		AccountID: account.ID,
		Username:  account.Phone,
		Role:      identity.ParseRole(account.Role),
	})
	if err != nil {
		return identity.LoginResult{}, err
	}
	return identity.LoginResult{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		Account:      account.ToDomain(),
	}, nil
}

func (s *Server) profile(c *gin.Context) {
	account, err := s.store.Accounts.FindByID(c.Request.Context(), accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, account.ToDomain())
}

func (s *Server) updateProfile(c *gin.Context) {
	var f form.ProfileForm
	if !bind(c, &f) {
		return
	}
	account, err := s.store.Accounts.UpdateProfile(c.Request.Context(), accountID(c), form.NormalizeName(f.FullName), f.Email, f.Avatar)
	if err != nil {
		handleError(c, err)
		return
	}
	success(c, account.ToDomain())
}

func (s *Server) changePassword(c *gin.Context) {
	var f form.ChangePasswordForm
	if !bind(c, &f) {
		return
	}
	ctx := c.Request.Context()
	account, err := s.store.Accounts.FindByID(ctx, accountID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(f.OldPassword)) != nil {
		fail(c, http.StatusBadRequest, "Current password is incorrect")
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(f.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		handleError(c, err)
		return
	}
	if err := s.store.Accounts.UpdatePasswordHash(ctx, account.ID, string(hash)); err != nil {
		handleError(c, err)
		return
	}
	success(c, nil)
}
