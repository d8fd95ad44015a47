package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	agentdomain "merchant-voice-auth/internal/agent/domain"
)

const bearerPrefix = "bearer "

// Each agent may submit decideBurst codes at once, then one every decideEvery.
const (
	decideEvery = 6 * time.Second
	decideBurst = 5
)

// AgentTokens validates agent bearer tokens and returns the agent id.
type AgentTokens interface {
	ValidateAgent(token string) (string, error)
}

// AgentDirectory lists the agents allowed to act on validations and devices.
type AgentDirectory interface {
	ListActive(ctx context.Context) ([]*agentdomain.Agent, error)
}

type contextKey struct{ name string }

var agentIDKey = contextKey{"agent_id"}

func withAgentID(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, agentIDKey, agentID)
}

// agentIDFrom returns the authenticated agent id and true if set; otherwise "", false.
func agentIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(agentIDKey).(string)
	return v, ok && v != ""
}

// agentAuth requires a valid agent bearer token whose subject is an active agent.
// With no token provider configured every request is refused.
func agentAuth(tokens AgentTokens, agents AgentDirectory, h *handlers) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" || tokens == nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED")
				return
			}
			agentID, err := tokens.ValidateAgent(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED")
				return
			}
			active, err := isActive(r.Context(), agents, agentID)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			if !active {
				h.logger.Warn("agent refused", "agent_id", agentID, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "AGENT_NOT_ACTIVE")
				return
			}
			next.ServeHTTP(w, r.WithContext(withAgentID(r.Context(), agentID)))
		})
	}
}

func isActive(ctx context.Context, agents AgentDirectory, agentID string) (bool, error) {
	if agents == nil {
		return false, nil
	}
	list, err := agents.ListActive(ctx)
	if err != nil {
		return false, err
	}
	for _, a := range list {
		if a.ID == agentID {
			return true, nil
		}
	}
	return false, nil
}

// extractBearer returns the Bearer token of r, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

// agentThrottle keeps one token bucket per agent.
type agentThrottle struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	every    time.Duration
	burst    int
}

func newAgentThrottle(every time.Duration, burst int) *agentThrottle {
	return &agentThrottle{limiters: make(map[string]*rate.Limiter), every: every, burst: burst}
}

func (t *agentThrottle) allow(agentID string) bool {
	t.mu.Lock()
	l, ok := t.limiters[agentID]
	if !ok {
		l = rate.NewLimiter(rate.Every(t.every), t.burst)
		t.limiters[agentID] = l
	}
	t.mu.Unlock()
	return l.Allow()
}
