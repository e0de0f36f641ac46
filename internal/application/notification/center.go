// Package notification shows trip offers pushed to a driver and answers them.
package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/domain/trip"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// ErrNoPendingNotification is returned by Accept and Decline when nothing is shown
var ErrNoPendingNotification = shared.NewDomainError("NO_PENDING_NOTIFICATION", "There is no trip offer to answer")

// Channel is the part of a realtime channel the center listens on
type Channel interface {
	Subscribe(t realtime.EventType, h realtime.Handler) func()
}

// Answerer sends the driver's answer to a trip offer
type Answerer interface {
	Accept(ctx context.Context, fields map[string]any) (*trip.Booking, error)
	Decline(ctx context.Context, fields map[string]any) (*trip.Booking, error)
}

// SoundPlayer plays the alert once per notification
type SoundPlayer interface {
	Play(ctx context.Context) error
}

// Presenter shows and hides the offer
type Presenter interface {
	Present(ctx context.Context, n trip.Notification)
	Dismiss(ctx context.Context)
}

var _ Channel = (*realtime.Channel)(nil)

// Center keeps the current trip offer. A new offer replaces the previous one.
type Center struct {
	answerer  Answerer
	sound     SoundPlayer
	presenter Presenter
	logger    *zap.Logger
	unsub     func()

	mu        sync.Mutex
	current   *trip.Notification
	ready     bool
	replaying bool
	pending   []realtime.Envelope
}

// NewCenter subscribes to NOTIFICATION on ch. Offers are buffered until Ready
// is called. sound may be nil.
func NewCenter(ch Channel, answerer Answerer, sound SoundPlayer, presenter Presenter, logger *zap.Logger) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Center{
		answerer:  answerer,
		sound:     sound,
		presenter: presenter,
		logger:    logger,
	}
	c.unsub = ch.Subscribe(realtime.EventNotification, c.receive)
	return c
}

// Ready marks the initial fetch as done and shows the offers buffered so far,
// in arrival order. Offers arriving during the replay join the queue, so the
// newest offer is always the one left on screen.
func (c *Center) Ready(ctx context.Context) {
	c.mu.Lock()
	if c.ready || c.replaying {
		c.mu.Unlock()
		return
	}
	c.replaying = true
	for len(c.pending) > 0 {
		pending := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, env := range pending {
			c.handle(ctx, env)
		}
		c.mu.Lock()
	}
	c.ready = true
	c.replaying = false
	c.mu.Unlock()
}

// Current returns the offer on screen
func (c *Center) Current() (trip.Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return trip.Notification{}, false
	}
	return *c.current, true
}

// Accept dismisses the offer and takes the trip
func (c *Center) Accept(ctx context.Context) (*trip.Booking, error) {
	n, err := c.take(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.answerer.Accept(ctx, n.IdentifyingFields())
	if err != nil {
		return nil, err
	}
	c.logger.Info("Trip accepted", zap.String("booking_id", n.BookingID))
	return b, nil
}

// Decline dismisses the offer and turns the trip down
func (c *Center) Decline(ctx context.Context) (*trip.Booking, error) {
	n, err := c.take(ctx)
	if err != nil {
		return nil, err
	}
	b, err := c.answerer.Decline(ctx, n.IdentifyingFields())
	if err != nil {
		return nil, err
	}
	c.logger.Info("Trip declined", zap.String("booking_id", n.BookingID))
	return b, nil
}

// Close stops listening
func (c *Center) Close() error {
	c.unsub()
	return nil
}

func (c *Center) take(ctx context.Context) (trip.Notification, error) {
	c.mu.Lock()
	n := c.current
	c.current = nil
	c.mu.Unlock()
	if n == nil {
		return trip.Notification{}, ErrNoPendingNotification
	}
	c.presenter.Dismiss(ctx)
	return *n, nil
}

func (c *Center) receive(ctx context.Context, env realtime.Envelope) {
	c.mu.Lock()
	if !c.ready {
		c.pending = append(c.pending, env)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.handle(ctx, env)
}

func (c *Center) handle(ctx context.Context, env realtime.Envelope) {
	var n trip.Notification
	if err := realtime.DecodeContent(env, &n); err != nil {
		c.logger.Warn("Dropping malformed trip notification", zap.Error(err))
		return
	}

	c.mu.Lock()
	c.current = &n
	c.mu.Unlock()

	if c.sound != nil {
		if err := c.sound.Play(ctx); err != nil {
			c.logger.Warn("Notification sound failed", zap.Error(err))
		}
	}
	c.presenter.Present(ctx, n)
}
