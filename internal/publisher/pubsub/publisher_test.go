package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type cycleEvent struct {
	Event  string `json:"event"`
	Status string `json:"status"`
}

func (e cycleEvent) EventName() string { return e.Event }

func TestNewMessageSetsAttributes(t *testing.T) {
	t.Parallel()

	msg, err := newMessage(context.Background(), cycleEvent{Event: "cycle.completed", Status: "success"})
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"cycle.completed","status":"success"}`, string(msg.Data))
	require.Equal(t, "cycle.completed", msg.Attributes[AttrEvent])
	require.Equal(t, "application/json", msg.Attributes[AttrContentType])

	plain, err := newMessage(context.Background(), map[string]int{"n": 1})
	require.NoError(t, err)
	_, hasEvent := plain.Attributes[AttrEvent]
	require.False(t, hasEvent)
}

func TestNewMessageRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := newMessage(context.Background(), map[string]any{"fn": func() {}})
	require.Error(t, err)
}

func TestCarrierRoundTripsTraceContext(t *testing.T) {
	t.Parallel()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	carrier := &pubsubCarrier{attrs: map[string]string{}}
	prop := propagation.TraceContext{}
	prop.Inject(ctx, carrier)
	require.Contains(t, carrier.Keys(), "traceparent")

	extracted := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
	require.Equal(t, traceID, extracted.TraceID())
}

func TestPublishWithoutPublisherFails(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", cycleEvent{Event: "x"})
	require.ErrorContains(t, err, "not configured")
}
