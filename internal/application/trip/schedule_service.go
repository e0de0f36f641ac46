package trip

import (
	"context"
	"net/url"
	"time"

	"github.com/logiride/client/internal/domain/form"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/httpclient"
	"github.com/logiride/client/internal/infrastructure/validation"
)

// ErrPickupInPast is returned for a schedule whose pickup time has passed
var ErrPickupInPast = shared.NewDomainError("PICKUP_IN_PAST", "Pickup time must be in the future")

// ScheduleService manages trips booked for later
type ScheduleService struct {
	api API
	now func() time.Time
}

// NewScheduleService creates a new schedule service
func NewScheduleService(api API) *ScheduleService {
	return &ScheduleService{api: api, now: time.Now}
}

// List returns the schedules of the signed-in customer
func (s *ScheduleService) List(ctx context.Context) ([]trip.Schedule, error) {
	out := make([]trip.Schedule, 0)
	if err := s.api.Get(ctx, PathSchedules, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Create reserves a future pickup
func (s *ScheduleService) Create(ctx context.Context, f form.ScheduleForm) (*trip.Schedule, error) {
	if err := validation.Check(f); err != nil {
		return nil, err
	}
	if !f.PickupAt.After(s.now()) {
		return nil, ErrPickupInPast
	}
	var out trip.Schedule
	if err := s.api.Post(ctx, PathSchedules, f, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel removes a pending schedule
func (s *ScheduleService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return shared.ErrInvalidInput
	}
	return s.api.Delete(ctx, PathSchedules+"/"+url.PathEscape(id), nil, httpclient.WithRoute(PathSchedules+"/{id}"))
}
