package identity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Profile is the account as the server describes it
type Profile struct {
	ID        string          `json:"id"`
	Phone     string          `json:"phone"`
	FullName  string          `json:"fullName"`
	Email     string          `json:"email,omitempty"`
	Avatar    string          `json:"avatar,omitempty"`
	Role      Role            `json:"role"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
}

// LoginResult is the data of a successful login or registration
type LoginResult struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken,omitempty"`
	Account      Profile `json:"account"`
}

// Session builds the stored session from a login result
func (r LoginResult) Session(now time.Time) *Session {
	return &Session{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		AccountID:    r.Account.ID,
		Username:     r.Account.Phone,
		Role:         r.Account.Role,
		FullName:     r.Account.FullName,
		Phone:        r.Account.Phone,
		Email:        r.Account.Email,
		Avatar:       r.Account.Avatar,
		LoggedInAt:   now,
	}
}
