package telemetry

import (
	"context"
	"sync"
)

// Recorder keeps emitted events in memory. Used in tests and by the dev server when no stream is
// configured.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

// Emit implements EventEmitter.
func (r *Recorder) Emit(ctx context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []*Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t EventType) []*Event {
	var out []*Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
