package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
)

// BookingRepository persists trip bookings and schedules
type BookingRepository struct {
	db *gorm.DB
}

// NewBookingRepository creates a new booking repository
func NewBookingRepository(db *gorm.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create inserts a booking
func (r *BookingRepository) Create(ctx context.Context, b *BookingModel) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.Status == "" {
		b.Status = string(trip.BookingPending)
	}
	return translate(r.db.WithContext(ctx).Create(b).Error)
}

// FindByID loads a booking
func (r *BookingRepository) FindByID(ctx context.Context, id string) (*BookingModel, error) {
	var m BookingModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &m, nil
}

// ListForAccount returns bookings where the account is the customer or the driver, newest first
func (r *BookingRepository) ListForAccount(ctx context.Context, accountID string) ([]BookingModel, error) {
	var out []BookingModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ? OR driver_id = ?", accountID, accountID).
		Order("created_at DESC").
		Find(&out).Error
	return out, translate(err)
}

// Transition moves a booking to status when its current status is one of
// from. driverID is recorded when non-empty. A booking in any other status
// yields shared.ErrInvalidState.
func (r *BookingRepository) Transition(ctx context.Context, id string, from []trip.BookingStatus, to trip.BookingStatus, driverID string) (*BookingModel, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	updates := map[string]any{"status": string(to)}
	if driverID != "" {
		updates["driver_id"] = driverID
	}

	res := r.db.WithContext(ctx).Model(&BookingModel{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	if res.Error != nil {
		return nil, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, shared.ErrInvalidState
	}
	return r.FindByID(ctx, id)
}

// CreateSchedule inserts a scheduled booking
func (r *BookingRepository) CreateSchedule(ctx context.Context, s *ScheduleModel) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = string(trip.BookingPending)
	}
	return translate(r.db.WithContext(ctx).Create(s).Error)
}

// Schedules returns the schedules of a customer by pickup time
func (r *BookingRepository) Schedules(ctx context.Context, customerID string) ([]ScheduleModel, error) {
	var out []ScheduleModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("pickup_at ASC").
		Find(&out).Error
	return out, translate(err)
}

// CancelSchedule cancels a pending schedule owned by customerID
func (r *BookingRepository) CancelSchedule(ctx context.Context, id, customerID string) error {
	res := r.db.WithContext(ctx).Model(&ScheduleModel{}).
		Where("id = ? AND customer_id = ? AND status = ?", id, customerID, string(trip.BookingPending)).
		Update("status", string(trip.BookingCancelled))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		var n int64
		r.db.WithContext(ctx).Model(&ScheduleModel{}).Where("id = ? AND customer_id = ?", id, customerID).Count(&n)
		if n == 0 {
			return shared.ErrNotFound
		}
		return shared.ErrInvalidState
	}
	return nil
}

// DueSchedules returns up to limit pending schedules picked up before the given time
func (r *BookingRepository) DueSchedules(ctx context.Context, before time.Time, limit int) ([]ScheduleModel, error) {
	var out []ScheduleModel
	q := r.db.WithContext(ctx).
		Where("status = ? AND pickup_at <= ?", string(trip.BookingPending), before).
		Order("pickup_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return out, translate(q.Find(&out).Error)
}

// DispatchSchedule turns a pending schedule into a pending booking. A schedule
// that is no longer pending yields shared.ErrInvalidState.
func (r *BookingRepository) DispatchSchedule(ctx context.Context, id string) (*BookingModel, error) {
	var booking *BookingModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s ScheduleModel
		if err := tx.First(&s, "id = ?", id).Error; err != nil {
			return translate(err)
		}
		pickup := s.PickupAt
		b := &BookingModel{
			ID:           uuid.NewString(),
			CustomerID:   s.CustomerID,
			StartAddress: s.StartAddress,
			EndAddress:   s.EndAddress,
			VehicleType:  s.VehicleType,
			Price:        s.Price,
			Status:       string(trip.BookingPending),
			ScheduledAt:  &pickup,
		}
		res := tx.Model(&ScheduleModel{}).
			Where("id = ? AND status = ?", id, string(trip.BookingPending)).
			Updates(map[string]any{"status": string(trip.ScheduleDispatched), "booking_id": b.ID})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return shared.ErrInvalidState
		}
		if err := tx.Create(b).Error; err != nil {
			return translate(err)
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
