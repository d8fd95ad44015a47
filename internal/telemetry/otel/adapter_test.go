package otel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"merchant-voice-auth/internal/telemetry"
)

// recordCapture stores the last Record passed to Emit.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), telemetry.NewEvent(telemetry.EventDecisionMade)); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestEmit_NilEvent(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventEmitter(provider).Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	capture := &recordCapture{}
	em := newEventEmitterWithLogger(capture)
	created := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)
	event := &telemetry.Event{
		ID: "e-1", Type: telemetry.EventValidationResolved, Source: telemetry.Source,
		MerchantID: "m-1", ValidationID: "v-1", Outcome: "approved", CreatedAt: created,
	}
	event.WithScore(30)
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body().AsBytes(), &body); err != nil || body["validationId"] != "v-1" {
		t.Errorf("body = %s (%v)", rec.Body().AsBytes(), err)
	}

	attrs := map[string]otellog.Value{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	for k, want := range map[string]string{
		"event_type": "validation_resolved", "merchant_id": "m-1", "validation_id": "v-1", "outcome": "approved",
	} {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("attr %q = %q, want %q", k, got, want)
		}
	}
	if _, ok := attrs["decision"]; ok {
		t.Error("empty decision should not be an attribute")
	}
	if attrs["trust_score"].AsInt64() != 30 {
		t.Errorf("trust_score = %v", attrs["trust_score"])
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	capture := &recordCapture{}
	before := time.Now().UTC()
	if err := newEventEmitterWithLogger(capture).Emit(context.Background(), &telemetry.Event{Type: telemetry.EventDecisionMade}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if capture.rec.Timestamp().Before(before) {
		t.Errorf("timestamp = %v, want >= %v", capture.rec.Timestamp(), before)
	}
}
