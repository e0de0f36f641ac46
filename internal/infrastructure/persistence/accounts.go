package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/shared"
)

// AccountRepository persists accounts and their balance movements
type AccountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts an account. A taken phone number yields ErrDuplicate.
func (r *AccountRepository) Create(ctx context.Context, account *AccountModel) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	return translate(r.db.WithContext(ctx).Create(account).Error)
}

// FindByID loads an account
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*AccountModel, error) {
	var m AccountModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// FindByPhone loads an account by its login phone number
func (r *AccountRepository) FindByPhone(ctx context.Context, phone string) (*AccountModel, error) {
	var m AccountModel
	if err := r.db.WithContext(ctx).First(&m, "phone = ?", phone).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ListByRole returns accounts of one role ordered by creation
func (r *AccountRepository) ListByRole(ctx context.Context, role string) ([]AccountModel, error) {
	var out []AccountModel
	err := r.db.WithContext(ctx).Where("role = ?", role).Order("created_at ASC").Find(&out).Error
	return out, translate(err)
}

// UpdateProfile changes the editable profile columns
func (r *AccountRepository) UpdateProfile(ctx context.Context, id, fullName, email, avatar string) (*AccountModel, error) {
	res := r.db.WithContext(ctx).Model(&AccountModel{}).Where("id = ?", id).Updates(map[string]any{
		"full_name": fullName,
		"email":     email,
		"avatar":    avatar,
	})
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, shared.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

// UpdatePasswordHash replaces the stored password hash
func (r *AccountRepository) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res := r.db.WithContext(ctx).Model(&AccountModel{}).Where("id = ?", id).Update("password_hash", hash)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Post moves the balance of an account by amount and appends the matching
// history row, both in one transaction.
func (r *AccountRepository) Post(ctx context.Context, accountID string, typ ledger.TransactionType, amount decimal.Decimal, description, referenceID string) (*TransactionModel, error) {
	return r.PostAt(ctx, accountID, typ, amount, description, referenceID, time.Time{})
}

// PostAt is Post with an explicit transaction date. A zero at means now.
func (r *AccountRepository) PostAt(ctx context.Context, accountID string, typ ledger.TransactionType, amount decimal.Decimal, description, referenceID string, at time.Time) (*TransactionModel, error) {
	var entry *TransactionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account AccountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&account, "id = ?", accountID).Error; err != nil {
			return translate(err)
		}
		balance := account.Balance.Add(amount)
		if balance.IsNegative() {
			return shared.NewDomainError("INSUFFICIENT_BALANCE", "Insufficient balance")
		}
		if err := tx.Model(&account).Update("balance", balance).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		if at.IsZero() {
			at = tx.NowFunc()
		}
		entry = &TransactionModel{
			ID:              uuid.NewString(),
			AccountID:       accountID,
			Type:            string(typ),
			Amount:          amount,
			CurrentBalance:  balance,
			Description:     description,
			ReferenceID:     referenceID,
			TransactionDate: at.UTC(),
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// History returns the balance movements of an account, newest first
func (r *AccountRepository) History(ctx context.Context, accountID string) ([]TransactionModel, error) {
	var out []TransactionModel
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("transaction_date DESC").
		Find(&out).Error
	return out, translate(err)
}
