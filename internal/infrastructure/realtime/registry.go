package realtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/logiride/client/internal/infrastructure/metrics"
	"go.uber.org/zap"
)

// Handler receives one inbound envelope. Handlers of a channel run one at a
// time in arrival order.
type Handler func(ctx context.Context, env Envelope)

// Registry maps event types to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[EventType]map[uint64]Handler
	nextID   uint64
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger, m *metrics.Metrics) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[EventType]map[uint64]Handler),
		logger:   logger,
		metrics:  m,
	}
}

// Subscribe adds h for t and returns a func that removes it
func (r *Registry) Subscribe(t EventType, h Handler) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	if r.handlers[t] == nil {
		r.handlers[t] = make(map[uint64]Handler)
	}
	r.handlers[t][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.handlers[t], id)
			if len(r.handlers[t]) == 0 {
				delete(r.handlers, t)
			}
		})
	}
}

// Has reports whether any handler is registered for t
func (r *Registry) Has(t EventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[t]) > 0
}

// Dispatch runs every handler for env.Type, recovering panics. It returns the
// number of handlers invoked.
func (r *Registry) Dispatch(ctx context.Context, env Envelope) int {
	r.mu.RLock()
	hs := make([]Handler, 0, len(r.handlers[env.Type]))
	for _, h := range r.handlers[env.Type] {
		hs = append(hs, h)
	}
	r.mu.RUnlock()

	if len(hs) == 0 {
		r.metrics.Event(string(env.Type), metrics.EventUnhandled)
		return 0
	}
	for _, h := range hs {
		if err := r.invoke(ctx, h, env); err != nil {
			r.metrics.Event(string(env.Type), metrics.EventPanicked)
			r.logger.Error("event handler panicked",
				zap.String("type", string(env.Type)),
				zap.Error(err),
			)
			continue
		}
		r.metrics.Event(string(env.Type), metrics.EventDispatched)
	}
	return len(hs)
}

func (r *Registry) invoke(ctx context.Context, h Handler, env Envelope) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
		}
	}()
	h(ctx, env)
	return nil
}
