package realtime

import (
	"context"
	"testing"

	"github.com/logiride/client/internal/infrastructure/metrics"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRegistry_DispatchAndUnsubscribe(t *testing.T) {
	r := NewRegistry(nil, nil)
	var got []string
	unsub := r.Subscribe(EventNotification, func(_ context.Context, env Envelope) {
		got = append(got, env.Room)
	})

	assert.True(t, r.Has(EventNotification))
	assert.Equal(t, 1, r.Dispatch(context.Background(), Envelope{Type: EventNotification, Room: "a"}))
	assert.Equal(t, 0, r.Dispatch(context.Background(), Envelope{Type: EventLocation}))

	unsub()
	unsub()
	assert.False(t, r.Has(EventNotification))
	assert.Equal(t, 0, r.Dispatch(context.Background(), Envelope{Type: EventNotification, Room: "b"}))
	assert.Equal(t, []string{"a"}, got)
}

func TestRegistry_RecoversPanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	r := NewRegistry(zap.New(core), metrics.New())

	var reached bool
	r.Subscribe(EventMessageReceived, func(context.Context, Envelope) { panic("bad payload") })
	r.Subscribe(EventMessageReceived, func(context.Context, Envelope) { reached = true })

	assert.NotPanics(t, func() {
		assert.Equal(t, 2, r.Dispatch(context.Background(), Envelope{Type: EventMessageReceived}))
	})
	assert.True(t, reached)
	assert.Equal(t, 1, logs.FilterMessage("event handler panicked").Len())
}
