// Package realtime delivers validation request changes to waiting clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"merchant-voice-auth/internal/validation/domain"
)

// Channel is the Postgres NOTIFY channel and Redis pub/sub channel carrying updates.
const Channel = "validation_requests"

// ErrNotFound is returned when subscribing to a request that does not exist.
var ErrNotFound = errors.New("realtime: validation request not found")

// Update is one observed state of a validation request.
type Update struct {
	RequestID string        `json:"id"`
	Result    domain.Result `json:"result"`
}

// Subscriber watches one request. onChange may be called more than once with the same result;
// callers must be idempotent. The returned function stops delivery and is safe to call twice.
type Subscriber interface {
	Subscribe(ctx context.Context, requestID string, onChange func(Update)) (func(), error)
}

// Publisher announces a change made by this process.
type Publisher interface {
	Publish(ctx context.Context, u Update) error
}

// Lookup reads the current state of a request.
type Lookup interface {
	GetByID(ctx context.Context, id string) (*domain.Request, error)
}

func decodeUpdate(payload string) (Update, error) {
	var u Update
	if err := json.Unmarshal([]byte(payload), &u); err != nil {
		return Update{}, fmt.Errorf("realtime: decode update: %w", err)
	}
	if u.RequestID == "" {
		return Update{}, errors.New("realtime: update without id")
	}
	return u, nil
}

// hub fans pushed updates out to per-request callbacks.
type hub struct {
	lookup Lookup
	logger *slog.Logger

	mu   sync.Mutex
	next int
	subs map[string]map[int]func(Update)
}

func newHub(lookup Lookup, logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{lookup: lookup, logger: logger, subs: make(map[string]map[int]func(Update))}
}

// Subscribe registers onChange, then delivers the stored state once so a change committed before
// registration is not lost.
func (h *hub) Subscribe(ctx context.Context, requestID string, onChange func(Update)) (func(), error) {
	h.mu.Lock()
	h.next++
	key := h.next
	if h.subs[requestID] == nil {
		h.subs[requestID] = make(map[int]func(Update))
	}
	h.subs[requestID][key] = onChange
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[requestID], key)
			if len(h.subs[requestID]) == 0 {
				delete(h.subs, requestID)
			}
		})
	}

	if h.lookup != nil {
		req, err := h.lookup.GetByID(ctx, requestID)
		if err != nil {
			unsubscribe()
			return nil, fmt.Errorf("realtime: load request: %w", err)
		}
		if req == nil {
			unsubscribe()
			return nil, ErrNotFound
		}
		onChange(Update{RequestID: req.ID, Result: req.Result})
	}
	return unsubscribe, nil
}

func (h *hub) deliver(u Update) {
	h.mu.Lock()
	fns := make([]func(Update), 0, len(h.subs[u.RequestID]))
	for _, fn := range h.subs[u.RequestID] {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

func (h *hub) deliverPayload(payload string) {
	u, err := decodeUpdate(payload)
	if err != nil {
		h.logger.Warn("realtime: dropping malformed update", "error", err)
		return
	}
	h.deliver(u)
}

func (h *hub) subscriberCount(requestID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[requestID])
}
