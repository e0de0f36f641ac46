// Package realtimetest provides an in-process channel for tests of code that
// consumes push events.
package realtimetest

import (
	"context"
	"sync"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/realtime"
)

// Channel records emits and lets tests deliver inbound envelopes
type Channel struct {
	registry *realtime.Registry
	id       identity.ChannelIdentity
	room     string

	mu      sync.Mutex
	emitted []realtime.Envelope
	emitErr error
	closed  bool
}

// New creates a fake channel for id joined to room
func New(id identity.ChannelIdentity, room string) *Channel {
	return &Channel{
		registry: realtime.NewRegistry(nil, nil),
		id:       id,
		room:     room,
	}
}

// Subscribe registers h for t
func (c *Channel) Subscribe(t realtime.EventType, h realtime.Handler) func() {
	return c.registry.Subscribe(t, h)
}

// Emit records env, or returns the error set with FailEmits
func (c *Channel) Emit(_ context.Context, env realtime.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return realtime.ErrClosed
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	if env.Room == "" {
		env.Room = c.room
	}
	if env.Sender == "" {
		env.Sender = c.id.AccountID
	}
	c.emitted = append(c.emitted, env)
	return nil
}

// Identity returns the channel identity
func (c *Channel) Identity() identity.ChannelIdentity {
	return c.id
}

// Room returns the joined room
func (c *Channel) Room() string {
	return c.room
}

// Close marks the channel closed
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Closed reports whether Close was called
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// FailEmits makes every following Emit return err; nil restores success
func (c *Channel) FailEmits(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

// Emitted returns the envelopes emitted so far
func (c *Channel) Emitted() []realtime.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Envelope, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// Deliver dispatches env to the subscribed handlers as if it arrived on the wire
func (c *Channel) Deliver(ctx context.Context, env realtime.Envelope) int {
	return c.registry.Dispatch(ctx, env)
}

// DeliverContent builds an envelope around v and delivers it
func (c *Channel) DeliverContent(ctx context.Context, t realtime.EventType, sender string, v any) (int, error) {
	env, err := realtime.NewEnvelope(t, c.room, sender, v)
	if err != nil {
		return 0, err
	}
	return c.Deliver(ctx, env), nil
}
