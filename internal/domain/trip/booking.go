package trip

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/logiride/client/internal/domain/shared"
)

// VehicleType is the vehicle class requested for a trip
type VehicleType string

const (
	VehicleMotorbike VehicleType = "MOTORBIKE"
	VehicleCar4      VehicleType = "CAR_4"
	VehicleCar7      VehicleType = "CAR_7"
	VehicleTruck     VehicleType = "TRUCK"
)

// IsValid reports whether the vehicle type is known
func (v VehicleType) IsValid() bool {
	switch v {
	case VehicleMotorbike, VehicleCar4, VehicleCar7, VehicleTruck:
		return true
	}
	return false
}

// BookingStatus is the server-side lifecycle state of a booking
type BookingStatus string

const (
	BookingPending    BookingStatus = "PENDING"
	BookingAccepted   BookingStatus = "ACCEPTED"
	BookingInProgress BookingStatus = "IN_PROGRESS"
	BookingCompleted  BookingStatus = "COMPLETED"
	BookingCancelled  BookingStatus = "CANCELLED"
	BookingDeclined   BookingStatus = "DECLINED"

	// ScheduleDispatched marks a schedule whose booking has been created
	ScheduleDispatched BookingStatus = "DISPATCHED"
)

// IsTerminal reports whether no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled || s == BookingDeclined
}

// ErrBookingNotCancellable is returned when cancelling a booking that already ended
var ErrBookingNotCancellable = shared.NewDomainError("BOOKING_NOT_CANCELLABLE", "Booking can no longer be cancelled")

// Location is a geographic point with an optional address line
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// Booking is a trip request as returned by /api/tripBookings
type Booking struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customerId"`
	DriverID     string          `json:"driverId,omitempty"`
	StartAddress string          `json:"startAddress"`
	EndAddress   string          `json:"endAddress"`
	Start        *Location       `json:"start,omitempty"`
	End          *Location       `json:"end,omitempty"`
	VehicleType  VehicleType     `json:"vehicleType"`
	Distance     float64         `json:"distance"`
	Price        decimal.Decimal `json:"price"`
	VoucherCode  string          `json:"voucherCode,omitempty"`
	Status       BookingStatus   `json:"status"`
	ScheduledAt  *time.Time      `json:"scheduledAt,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// CanCancel reports whether the customer may still cancel the booking
func (b Booking) CanCancel() bool {
	return b.Status == BookingPending || b.Status == BookingAccepted
}

// Schedule is a recurring or future trip reservation
type Schedule struct {
	ID           string          `json:"id"`
	CustomerID   string          `json:"customerId"`
	StartAddress string          `json:"startAddress"`
	EndAddress   string          `json:"endAddress"`
	VehicleType  VehicleType     `json:"vehicleType"`
	PickupAt     time.Time       `json:"pickupAt"`
	Note         string          `json:"note,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Status       BookingStatus   `json:"status"`
	BookingID    string          `json:"bookingId,omitempty"`
}

// Voucher is a discount code offered to the account
type Voucher struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	DiscountPct   decimal.Decimal `json:"discountPercent"`
	MaxDiscount   decimal.Decimal `json:"maxDiscount"`
	MinTripAmount decimal.Decimal `json:"minTripAmount"`
	ExpiresAt     time.Time       `json:"expiresAt"`
}

// IsExpired reports whether the voucher is past its expiry at now
func (v Voucher) IsExpired(now time.Time) bool {
	return !v.ExpiresAt.IsZero() && !now.Before(v.ExpiresAt)
}

// Discount returns the discount this voucher grants on a trip price.
// It is zero below the minimum trip amount and capped at MaxDiscount when set.
func (v Voucher) Discount(price decimal.Decimal) decimal.Decimal {
	if price.LessThan(v.MinTripAmount) || !v.DiscountPct.IsPositive() {
		return decimal.Zero
	}
	d := price.Mul(v.DiscountPct).Div(decimal.NewFromInt(100)).Round(0)
	if v.MaxDiscount.IsPositive() && d.GreaterThan(v.MaxDiscount) {
		d = v.MaxDiscount
	}
	return d
}

// Review is a customer rating of a completed trip
type Review struct {
	ID        string    `json:"id,omitempty"`
	BookingID string    `json:"bookingId"`
	DriverID  string    `json:"driverId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// DriverPosition is the payload of a LOCATION realtime event
type DriverPosition struct {
	DriverID  string    `json:"driverId"`
	BookingID string    `json:"bookingId,omitempty"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   float64   `json:"heading,omitempty"`
	Speed     float64   `json:"speed,omitempty"`
	At        time.Time `json:"at"`
}
