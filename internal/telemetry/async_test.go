package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// mockEventEmitter implements EventEmitter for tests.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	delay   time.Duration
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	if m.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.delay):
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.emitErr
}

func (m *mockEventEmitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitAsync_NilArguments(t *testing.T) {
	EmitAsync(context.Background(), nil, NewEvent(EventDecisionMade), nil)

	emitter := &mockEventEmitter{}
	EmitAsync(context.Background(), emitter, nil, nil)
	time.Sleep(10 * time.Millisecond)
	if n := emitter.count(); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
}

func TestEmitAsync_SurvivesCancelledRequest(t *testing.T) {
	emitter := &mockEventEmitter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	event := NewEvent(EventValidationResolved)
	event.MerchantID = "m-1"
	EmitAsync(ctx, emitter, event, nil)
	waitFor(t, func() bool { return emitter.count() == 1 })

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.events[0].MerchantID != "m-1" || emitter.events[0].Source != Source {
		t.Errorf("event = %+v", emitter.events[0])
	}
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	emitter := &mockEventEmitter{emitErr: errors.New("broker down")}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(context.Background(), emitter, NewEvent(EventDecisionMade), nil)
		}()
	}
	wg.Wait()
	waitFor(t, func() bool { return emitter.count() == 10 })
}

func TestMulti_EmitsToAllAndJoinsErrors(t *testing.T) {
	ok := &mockEventEmitter{}
	failing := &mockEventEmitter{emitErr: errors.New("kafka down")}
	err := Multi{ok, nil, failing}.Emit(context.Background(), NewEvent(EventChallengeResolved).WithScore(55))
	if err == nil {
		t.Error("expected joined error")
	}
	if ok.count() != 1 || failing.count() != 1 {
		t.Errorf("counts = %d, %d; want 1, 1", ok.count(), failing.count())
	}
	if *ok.events[0].TrustScore != 55 {
		t.Errorf("TrustScore = %d", *ok.events[0].TrustScore)
	}
}

func TestRecorder_OfType(t *testing.T) {
	r := &Recorder{}
	_ = r.Emit(context.Background(), NewEvent(EventDecisionMade))
	_ = r.Emit(context.Background(), NewEvent(EventValidationRequested))
	if got := r.OfType(EventValidationRequested); len(got) != 1 {
		t.Errorf("OfType = %d, want 1", len(got))
	}
}
