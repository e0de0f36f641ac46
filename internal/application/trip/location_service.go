package trip

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// Channel is the part of a realtime channel the location service uses
type Channel interface {
	Subscribe(t realtime.EventType, h realtime.Handler) func()
	Emit(ctx context.Context, env realtime.Envelope) error
	Identity() identity.ChannelIdentity
	Room() string
}

var _ Channel = (*realtime.Channel)(nil)

// ErrNotDriver is returned when a non-driver tries to publish a position
var ErrNotDriver = shared.NewDomainError("NOT_DRIVER", "Only drivers publish their location")

// LocationService publishes the driver's position and tracks the latest
// position of every driver seen on the channel
type LocationService struct {
	ch     Channel
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	latest   map[string]trip.DriverPosition
	watchers map[int]func(trip.DriverPosition)
	nextID   int
	unsub    func()
}

// NewLocationService subscribes to LOCATION events on ch
func NewLocationService(ch Channel, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LocationService{
		ch:       ch,
		logger:   logger,
		now:      time.Now,
		latest:   make(map[string]trip.DriverPosition),
		watchers: make(map[int]func(trip.DriverPosition)),
	}
	s.unsub = ch.Subscribe(realtime.EventLocation, s.handle)
	return s
}

// Publish emits the signed-in driver's position
func (s *LocationService) Publish(ctx context.Context, p trip.DriverPosition) error {
	id := s.ch.Identity()
	if id.Role != identity.RoleDriver {
		return ErrNotDriver
	}
	p.DriverID = id.AccountID
	if p.At.IsZero() {
		p.At = s.now()
	}
	env, err := realtime.NewEnvelope(realtime.EventLocation, s.ch.Room(), id.AccountID, p)
	if err != nil {
		return err
	}
	return s.ch.Emit(ctx, env)
}

// Latest returns the newest known position of a driver
func (s *LocationService) Latest(driverID string) (trip.DriverPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.latest[driverID]
	return p, ok
}

// Watch calls fn for every accepted position and returns a func that stops it
func (s *LocationService) Watch(fn func(trip.DriverPosition)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.watchers[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Close stops listening for positions
func (s *LocationService) Close() {
	s.unsub()
}

func (s *LocationService) handle(_ context.Context, env realtime.Envelope) {
	var p trip.DriverPosition
	if err := realtime.DecodeContent(env, &p); err != nil {
		s.logger.Warn("Dropping malformed location event", zap.Error(err))
		return
	}
	if p.DriverID == "" {
		p.DriverID = env.Sender
	}
	if p.DriverID == "" {
		s.logger.Warn("Dropping location event without driver")
		return
	}
	if p.At.IsZero() {
		p.At = env.Time()
	}

	s.mu.Lock()
	if prev, ok := s.latest[p.DriverID]; ok && p.At.Before(prev.At) {
		s.mu.Unlock()
		return
	}
	s.latest[p.DriverID] = p
	watchers := make([]func(trip.DriverPosition), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(p)
	}
}
