package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/logiride/client/internal/domain/driver"
)

// ContentRepository persists vouchers, reviews, chat messages and driver documents
type ContentRepository struct {
	db *gorm.DB
}

// NewContentRepository creates a new content repository
func NewContentRepository(db *gorm.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// UpsertVoucher inserts or replaces a voucher keyed by code
func (r *ContentRepository) UpsertVoucher(ctx context.Context, v *VoucherModel) error {
	v.Code = strings.ToUpper(strings.TrimSpace(v.Code))
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	return translate(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "discount_pct", "max_discount", "min_trip_amount", "expires_at"}),
	}).Create(v).Error)
}

// ActiveVouchers returns vouchers not expired at now
func (r *ContentRepository) ActiveVouchers(ctx context.Context, now time.Time) ([]VoucherModel, error) {
	var out []VoucherModel
	err := r.db.WithContext(ctx).Where("expires_at > ?", now).Order("code ASC").Find(&out).Error
	return out, translate(err)
}

// VoucherByCode loads a voucher, case-insensitively
func (r *ContentRepository) VoucherByCode(ctx context.Context, code string) (*VoucherModel, error) {
	var m VoucherModel
	code = strings.ToUpper(strings.TrimSpace(code))
	if err := r.db.WithContext(ctx).First(&m, "code = ?", code).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// CreateReview inserts a review. A second review of the same booking yields ErrDuplicate.
func (r *ContentRepository) CreateReview(ctx context.Context, m *ReviewModel) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

// ReviewsForDriver returns the reviews of a driver, newest first
func (r *ContentRepository) ReviewsForDriver(ctx context.Context, driverID string) ([]ReviewModel, error) {
	var out []ReviewModel
	err := r.db.WithContext(ctx).Where("driver_id = ?", driverID).Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}

// AppendMessage stores one chat message
func (r *ContentRepository) AppendMessage(ctx context.Context, m *ChatMessageModel) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = r.db.NowFunc()
	}
	return translate(r.db.WithContext(ctx).Create(m).Error)
}

// Messages returns the conversation of a booking in send order
func (r *ContentRepository) Messages(ctx context.Context, bookingID string) ([]ChatMessageModel, error) {
	var out []ChatMessageModel
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("timestamp ASC").
		Find(&out).Error
	return out, translate(err)
}

// DriverProfile loads the documents of a driver. A driver that submitted
// nothing yet gets an empty profile rather than an error.
func (r *ContentRepository) DriverProfile(ctx context.Context, accountID string) (*DriverProfileModel, error) {
	var m DriverProfileModel
	err := r.db.WithContext(ctx).First(&m, "account_id = ?", accountID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &DriverProfileModel{AccountID: accountID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// SaveIDCard stores the ID card and marks it pending review
func (r *ContentRepository) SaveIDCard(ctx context.Context, accountID string, card driver.IDCard) (*DriverProfileModel, error) {
	return r.saveDocument(ctx, accountID, func(m *DriverProfileModel) {
		m.IDCard = &card
		m.IDCardStatus = string(driver.StatusPending)
	})
}

// SaveVehicle stores the vehicle and marks it pending review
func (r *ContentRepository) SaveVehicle(ctx context.Context, accountID string, v driver.Vehicle) (*DriverProfileModel, error) {
	return r.saveDocument(ctx, accountID, func(m *DriverProfileModel) {
		m.Vehicle = &v
		m.VehicleStatus = string(driver.StatusPending)
	})
}

// SaveLicense stores the license and marks it pending review
func (r *ContentRepository) SaveLicense(ctx context.Context, accountID string, l driver.License) (*DriverProfileModel, error) {
	return r.saveDocument(ctx, accountID, func(m *DriverProfileModel) {
		m.License = &l
		m.LicenseStatus = string(driver.StatusPending)
	})
}

// SetDocumentStatus records a review decision for every submitted document
func (r *ContentRepository) SetDocumentStatus(ctx context.Context, accountID string, status driver.VerificationStatus, note string) (*DriverProfileModel, error) {
	return r.saveDocument(ctx, accountID, func(m *DriverProfileModel) {
		if m.IDCard != nil {
			m.IDCardStatus = string(status)
		}
		if m.Vehicle != nil {
			m.VehicleStatus = string(status)
		}
		if m.License != nil {
			m.LicenseStatus = string(status)
		}
		m.Note = note
	})
}

func (r *ContentRepository) saveDocument(ctx context.Context, accountID string, apply func(*DriverProfileModel)) (*DriverProfileModel, error) {
	var out *DriverProfileModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m DriverProfileModel
		err := tx.First(&m, "account_id = ?", accountID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m = DriverProfileModel{AccountID: accountID}
		case err != nil:
			return err
		}
		apply(&m)
		m.IDCardStatus = string(orNotSubmitted(m.IDCardStatus))
		m.VehicleStatus = string(orNotSubmitted(m.VehicleStatus))
		m.LicenseStatus = string(orNotSubmitted(m.LicenseStatus))
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		out = &m
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return out, nil
}
