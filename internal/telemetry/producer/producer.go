// Package producer writes domain events to the decision event stream.
package producer

import "merchant-voice-auth/internal/telemetry"

// Producer emits events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	telemetry.EventEmitter
	// Close releases resources. Safe to call if already closed.
	Close() error
}
