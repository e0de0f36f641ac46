package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/logiride/client/internal/infrastructure/config"
	"github.com/logiride/client/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

// setupTestTracer installs an in-memory span recorder as the global provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "ledger.fetch",
		telemetry.WithAttribute(telemetry.AttrAccountID, "acc-1"),
		telemetry.WithSpanKind(trace.SpanKindClient),
	)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "ledger.fetch", spans[0].Name())
	assert.Equal(t, trace.SpanKindClient, spans[0].SpanKind())

	var found bool
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == telemetry.AttrAccountID && attr.Value.AsString() == "acc-1" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestStartServiceSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := telemetry.StartServiceSpan(context.Background(), "chat", "send")
	assert.NotEmpty(t, telemetry.TraceID(ctx))
	span.End()

	require.Len(t, sr.Ended(), 1)
	assert.Equal(t, "chat.send", sr.Ended()[0].Name())
}

func TestRecordError(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "booking.cancel")
	telemetry.RecordError(span, errors.New("booking already completed"))
	telemetry.RecordError(span, nil)
	span.End()

	got := sr.Ended()[0]
	assert.Equal(t, codes.Error, got.Status().Code)
	assert.Equal(t, "booking already completed", got.Status().Description)
	require.Len(t, got.Events(), 1)
}

func TestSetAttributesAndEvents(t *testing.T) {
	sr := setupTestTracer(t)

	_, span := telemetry.StartSpan(context.Background(), "realtime.dispatch")
	telemetry.SetAttributes(span, telemetry.AttrRoom, "b-1", "count", 3, 42, "ignored", "dangling")
	telemetry.AddEvent(span, "replayed", "buffered", 2)
	span.End()

	got := sr.Ended()[0]
	assert.Len(t, got.Attributes(), 2)
	require.Len(t, got.Events(), 1)
	assert.Equal(t, "replayed", got.Events()[0].Name)
}

func TestNilSpanHelpers(t *testing.T) {
	telemetry.SetAttributes(nil, "a", 1)
	telemetry.AddEvent(nil, "x")
	telemetry.RecordError(nil, errors.New("x"))
	assert.Empty(t, telemetry.TraceID(context.Background()))
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp, err := telemetry.NewTracerProvider(ctx, config.TelemetryConfig{ServiceName: "ridecli"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, telemetry.Sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, telemetry.Sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, telemetry.Sampler(0.25).Description(), "TraceIDRatioBased")
}
