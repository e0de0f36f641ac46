package persistence

import (
	"time"

	"github.com/logiride/client/internal/domain/chat"
	"github.com/logiride/client/internal/domain/driver"
	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/ledger"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/shopspring/decimal"
)

// AccountModel is a registered customer or driver
type AccountModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	Phone        string          `gorm:"type:varchar(10);uniqueIndex;not null"`
	PasswordHash string          `gorm:"not null"`
	FullName     string          `gorm:"type:varchar(100);not null"`
	Email        string          `gorm:"type:varchar(255)"`
	Avatar       string          `gorm:"type:varchar(500)"`
	Role         string          `gorm:"type:varchar(20);index;not null"`
	Balance      decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AccountModel) TableName() string { return "accounts" }

// ToDomain converts to the profile shown to clients
func (m *AccountModel) ToDomain() identity.Profile {
	return identity.Profile{
		ID:        m.ID,
		Phone:     m.Phone,
		FullName:  m.FullName,
		Email:     m.Email,
		Avatar:    m.Avatar,
		Role:      identity.ParseRole(m.Role),
		Balance:   m.Balance,
		CreatedAt: m.CreatedAt,
	}
}

// TransactionModel is one balance movement
type TransactionModel struct {
	ID              string          `gorm:"type:varchar(36);primaryKey"`
	AccountID       string          `gorm:"type:varchar(36);index;not null"`
	Type            string          `gorm:"type:varchar(30);not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CurrentBalance  decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Description     string          `gorm:"type:varchar(255)"`
	ReferenceID     string          `gorm:"type:varchar(36)"`
	TransactionDate time.Time       `gorm:"index;not null"`
}

func (TransactionModel) TableName() string { return "balance_transactions" }

// ToDomain converts to a ledger transaction
func (m *TransactionModel) ToDomain() ledger.Transaction {
	return ledger.Transaction{
		ID:              m.ID,
		Type:            ledger.TransactionType(m.Type),
		Amount:          m.Amount,
		CurrentBalance:  m.CurrentBalance,
		Description:     m.Description,
		ReferenceID:     m.ReferenceID,
		TransactionDate: ledger.At(m.TransactionDate),
	}
}

// BookingModel is a trip request
type BookingModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	CustomerID   string          `gorm:"type:varchar(36);index;not null"`
	DriverID     string          `gorm:"type:varchar(36);index"`
	StartAddress string          `gorm:"type:varchar(255);not null"`
	EndAddress   string          `gorm:"type:varchar(255);not null"`
	Start        *trip.Location  `gorm:"serializer:json"`
	End          *trip.Location  `gorm:"serializer:json"`
	VehicleType  string          `gorm:"type:varchar(20);not null"`
	Distance     float64         `gorm:"not null;default:0"`
	Price        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	VoucherCode  string          `gorm:"type:varchar(32)"`
	Status       string          `gorm:"type:varchar(20);index;not null"`
	ScheduledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (BookingModel) TableName() string { return "trip_bookings" }

// ToDomain converts to a booking
func (m *BookingModel) ToDomain() trip.Booking {
	return trip.Booking{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		DriverID:     m.DriverID,
		StartAddress: m.StartAddress,
		EndAddress:   m.EndAddress,
		Start:        m.Start,
		End:          m.End,
		VehicleType:  trip.VehicleType(m.VehicleType),
		Distance:     m.Distance,
		Price:        m.Price,
		VoucherCode:  m.VoucherCode,
		Status:       trip.BookingStatus(m.Status),
		ScheduledAt:  m.ScheduledAt,
		CreatedAt:    m.CreatedAt,
	}
}

// ScheduleModel is a booking planned for later
type ScheduleModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	CustomerID   string          `gorm:"type:varchar(36);index;not null"`
	StartAddress string          `gorm:"type:varchar(255);not null"`
	EndAddress   string          `gorm:"type:varchar(255);not null"`
	VehicleType  string          `gorm:"type:varchar(20);not null"`
	PickupAt     time.Time       `gorm:"index;not null"`
	Note         string          `gorm:"type:varchar(255)"`
	Price        decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Status       string          `gorm:"type:varchar(20);index;not null"`
	BookingID    string          `gorm:"type:varchar(36)"`
	CreatedAt    time.Time
}

func (ScheduleModel) TableName() string { return "schedules" }

// ToDomain converts to a schedule
func (m *ScheduleModel) ToDomain() trip.Schedule {
	return trip.Schedule{
		ID:           m.ID,
		CustomerID:   m.CustomerID,
		StartAddress: m.StartAddress,
		EndAddress:   m.EndAddress,
		VehicleType:  trip.VehicleType(m.VehicleType),
		PickupAt:     m.PickupAt,
		Note:         m.Note,
		Price:        m.Price,
		Status:       trip.BookingStatus(m.Status),
		BookingID:    m.BookingID,
	}
}

// VoucherModel is a discount code
type VoucherModel struct {
	ID            string          `gorm:"type:varchar(36);primaryKey"`
	Code          string          `gorm:"type:varchar(32);uniqueIndex;not null"`
	Description   string          `gorm:"type:varchar(255)"`
	DiscountPct   decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	MaxDiscount   decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	MinTripAmount decimal.Decimal `gorm:"type:decimal(18,2);not null;default:0"`
	ExpiresAt     time.Time       `gorm:"index"`
}

func (VoucherModel) TableName() string { return "vouchers" }

// ToDomain converts to a voucher
func (m *VoucherModel) ToDomain() trip.Voucher {
	return trip.Voucher{
		ID:            m.ID,
		Code:          m.Code,
		Description:   m.Description,
		DiscountPct:   m.DiscountPct,
		MaxDiscount:   m.MaxDiscount,
		MinTripAmount: m.MinTripAmount,
		ExpiresAt:     m.ExpiresAt,
	}
}

// ReviewModel is a customer's rating of a completed trip
type ReviewModel struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	BookingID  string `gorm:"type:varchar(36);uniqueIndex;not null"`
	DriverID   string `gorm:"type:varchar(36);index;not null"`
	CustomerID string `gorm:"type:varchar(36);not null"`
	Rating     int    `gorm:"not null"`
	Comment    string `gorm:"type:varchar(500)"`
	CreatedAt  time.Time
}

func (ReviewModel) TableName() string { return "reviews" }

// ToDomain converts to a review
func (m *ReviewModel) ToDomain() trip.Review {
	return trip.Review{
		ID:        m.ID,
		BookingID: m.BookingID,
		DriverID:  m.DriverID,
		Rating:    m.Rating,
		Comment:   m.Comment,
		CreatedAt: m.CreatedAt,
	}
}

// ChatMessageModel is one message of a booking conversation
type ChatMessageModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	BookingID string    `gorm:"type:varchar(36);index;not null"`
	SenderID  string    `gorm:"type:varchar(36);not null"`
	ClientKey string    `gorm:"type:varchar(64);index"`
	Text      string    `gorm:"type:varchar(1000);not null"`
	Timestamp time.Time `gorm:"index;not null"`
}

func (ChatMessageModel) TableName() string { return "chat_messages" }

// ToDomain converts to a chat message
func (m *ChatMessageModel) ToDomain() chat.Message {
	return chat.Message{
		ID:        m.ID,
		ClientKey: m.ClientKey,
		BookingID: m.BookingID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

// DriverProfileModel holds a driver's submitted documents
type DriverProfileModel struct {
	AccountID     string          `gorm:"type:varchar(36);primaryKey"`
	IDCard        *driver.IDCard  `gorm:"serializer:json"`
	Vehicle       *driver.Vehicle `gorm:"serializer:json"`
	License       *driver.License `gorm:"serializer:json"`
	IDCardStatus  string          `gorm:"type:varchar(20);not null"`
	VehicleStatus string          `gorm:"type:varchar(20);not null"`
	LicenseStatus string          `gorm:"type:varchar(20);not null"`
	Note          string          `gorm:"type:varchar(255)"`
	UpdatedAt     time.Time
}

func (DriverProfileModel) TableName() string { return "driver_profiles" }

// Status returns the verification summary
func (m *DriverProfileModel) Status() driver.Status {
	return driver.Status{
		IDCard:  orNotSubmitted(m.IDCardStatus),
		Vehicle: orNotSubmitted(m.VehicleStatus),
		License: orNotSubmitted(m.LicenseStatus),
		Note:    m.Note,
	}
}

func orNotSubmitted(s string) driver.VerificationStatus {
	if s == "" {
		return driver.StatusNotSubmitted
	}
	return driver.VerificationStatus(s)
}
