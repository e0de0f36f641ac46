package trip

import (
	"context"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// BookingService books, lists and answers trips
type BookingService struct {
	api    API
	logger *zap.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(api API, logger *zap.Logger) *BookingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{api: api, logger: logger}
}

// Create requests a trip
func (s *BookingService) Create(ctx context.Context, f form.BookingForm) (*trip.Booking, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	var b trip.Booking
	if err := s.api.Post(ctx, PathBookings, f, &b); err != nil {
		return nil, err
	}
	s.logger.Info("Booking created", zap.String("booking_id", b.ID), zap.String("vehicle_type", string(b.VehicleType)))
	return &b, nil
}

// List returns the bookings of the signed-in account, newest first
func (s *BookingService) List(ctx context.Context) ([]trip.Booking, error) {
	out := make([]trip.Booking, 0)
	if err := s.api.Get(ctx, PathBookings, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches one booking
func (s *BookingService) Get(ctx context.Context, id string) (*trip.Booking, error) {
	if id == "" {
		return nil, shared.ErrInvalidInput
	}
	var b trip.Booking
	if err := s.api.Get(ctx, bookingPath(id), &b, httpclient.WithRoute(PathBookings+"/{id}")); err != nil {
		return nil, err
	}
	return &b, nil
}

// Cancel cancels a booking that has not started
func (s *BookingService) Cancel(ctx context.Context, id string) (*trip.Booking, error) {
	if id == "" {
		return nil, shared.ErrInvalidInput
	}
	var b trip.Booking
	if err := s.api.Post(ctx, bookingPath(id, "cancel"), nil, &b, httpclient.WithRoute(PathBookings+"/{id}/cancel")); err != nil {
		return nil, err
	}
	return &b, nil
}

// Accept takes the trip identified by fields, the identifying fields of the
// notification that offered it
func (s *BookingService) Accept(ctx context.Context, fields map[string]any) (*trip.Booking, error) {
	return s.answer(ctx, PathBookingAccept, fields)
}

// Decline turns down the trip identified by fields
func (s *BookingService) Decline(ctx context.Context, fields map[string]any) (*trip.Booking, error) {
	return s.answer(ctx, PathBookingDecline, fields)
}

func (s *BookingService) answer(ctx context.Context, path string, fields map[string]any) (*trip.Booking, error) {
	if len(fields) == 0 {
		return nil, shared.ErrInvalidInput
	}
	var b trip.Booking
	if err := s.api.Post(ctx, path, fields, &b); err != nil {
		return nil, err
	}
	s.logger.Info("Booking answered", zap.String("path", path), zap.String("booking_id", b.ID))
	return &b, nil
}
