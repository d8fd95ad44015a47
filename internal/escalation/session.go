package escalation

import (
	"context"
	"sync"
	"time"

	"merchant-voice-auth/internal/realtime"
	"merchant-voice-auth/internal/validation/domain"
)

// State is what a waiting client sees.
type State struct {
	RequestID string
	Result    domain.Result
	Remaining time.Duration
}

// Session follows one validation request for one attempt. It counts down locally from the request's
// expiry and forces "expired" at zero even if the server has not swept yet; pushed results are
// merged in. Once a terminal result is reached it never changes, except that a terminal result
// delivered by the server replaces a locally forced "expired".
type Session struct {
	expiresAt time.Time
	requestID string
	nowF      func() time.Time
	onChange  func(State)
	onReject  func(domain.Result)

	mu          sync.Mutex
	result      domain.Result
	forced      bool
	rejected    bool
	cancelled   bool
	released    bool
	unsubscribe func()
	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}

	deliverMu sync.Mutex
}

// OpenSession starts following req. onChange receives every countdown tick and every result;
// onReject is called once when the request ends rejected or expired. Either callback may be nil.
// Close must be called when the caller stops waiting.
func (c *Coordinator) OpenSession(ctx context.Context, req *domain.Request, onChange func(State), onReject func(domain.Result)) (*Session, error) {
	s := &Session{
		expiresAt: req.ExpiresAt,
		requestID: req.ID,
		nowF:      c.nowF,
		onChange:  onChange,
		onReject:  onReject,
		result:    domain.ResultPending,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	s.apply(req.Result, true)

	unsubscribe, err := c.Subscribe(ctx, req.ID, func(u realtime.Update) { s.apply(u.Result, true) })
	if err != nil {
		s.halt()
		return nil, err
	}
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	releaseNow := s.released
	s.mu.Unlock()
	if releaseNow {
		unsubscribe()
	}

	go s.countdown(c.sessionTick)
	return s, nil
}

// State returns the current snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Done is closed when the session reaches a terminal result or is closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel drops the local state of the attempt without touching the stored request. No callback
// fires afterwards.
func (s *Session) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.result = ""
	s.mu.Unlock()
	s.Close()
}

// Close stops the countdown and unsubscribes. Safe to call more than once and from callbacks.
func (s *Session) Close() {
	s.halt()
	go s.release()
}

func (s *Session) snapshotLocked() State {
	remaining := max(s.expiresAt.Sub(s.nowF()), 0)
	if s.result.IsTerminal() {
		remaining = 0
	}
	return State{RequestID: s.requestID, Result: s.result, Remaining: remaining}
}

// apply merges an observed result. fromServer marks results read from the stored row. Pending and
// repeated results are ignored once terminal.
func (s *Session) apply(r domain.Result, fromServer bool) {
	s.mu.Lock()
	overrides := s.forced && fromServer && r.IsTerminal()
	if s.cancelled || (s.result.IsTerminal() && !overrides) || !r.IsTerminal() {
		s.mu.Unlock()
		if r == domain.ResultPending {
			s.deliver()
		}
		return
	}
	changed := s.result != r
	s.result = r
	s.forced = !fromServer
	notifyReject := (r == domain.ResultRejected || r == domain.ResultExpired) && !s.rejected
	if notifyReject {
		s.rejected = true
	}
	s.mu.Unlock()

	if changed {
		s.deliver()
	}
	if notifyReject && s.onReject != nil {
		s.onReject(r)
	}
	if !fromServer {
		// Stay subscribed until the stored row confirms or corrects the local expiry, or Close.
		s.halt()
		return
	}
	s.Close()
}

func (s *Session) deliver() {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	s.mu.Lock()
	if s.cancelled || s.onChange == nil {
		s.mu.Unlock()
		return
	}
	st := s.snapshotLocked()
	s.mu.Unlock()
	s.onChange(st)
}

func (s *Session) countdown(tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		s.mu.Lock()
		expired := !s.expiresAt.After(s.nowF())
		s.mu.Unlock()
		if expired {
			s.apply(domain.ResultExpired, false)
			return
		}
		s.deliver()
	}
}

func (s *Session) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
		close(s.done)
	})
}

func (s *Session) release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	unsubscribe := s.unsubscribe
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}
