package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Poller re-reads the request on an interval and reports every change of result. Delivery stops
// after a terminal result.
type Poller struct {
	lookup   Lookup
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller returns a Poller reading through lookup every interval (2s when interval <= 0).
func NewPoller(lookup Lookup, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{lookup: lookup, interval: interval, logger: logger}
}

// Subscribe implements Subscriber. Polling outlives ctx and stops only on unsubscribe or a
// terminal result.
func (p *Poller) Subscribe(ctx context.Context, requestID string, onChange func(Update)) (func(), error) {
	req, err := p.lookup.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrNotFound
	}
	onChange(Update{RequestID: req.ID, Result: req.Result})

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if req.Result.IsTerminal() {
			return
		}
		last := req.Result
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			cur, err := p.lookup.GetByID(ctx, requestID)
			if err != nil {
				if ctx.Err() == nil {
					p.logger.Warn("realtime: poll failed", "validation_id", requestID, "error", err)
				}
				continue
			}
			if cur == nil || cur.Result == last {
				continue
			}
			last = cur.Result
			onChange(Update{RequestID: cur.ID, Result: cur.Result})
			if cur.Result.IsTerminal() {
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}, nil
}
