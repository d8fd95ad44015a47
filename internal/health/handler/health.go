// Package handler serves the readiness probe for load balancers and Kubernetes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// probeTimeout bounds each dependency check.
const probeTimeout = 2 * time.Second

// Pinger checks database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the decision policy compiles.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server answers GET /healthz. Nil dependencies are skipped, so an in-memory dev server is healthy.
type Server struct {
	pinger Pinger
	policy PolicyChecker
	logger *slog.Logger
}

// NewServer returns a health Server.
func NewServer(pinger Pinger, policy PolicyChecker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{pinger: pinger, policy: policy, logger: logger}
}

type response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ServeHTTP implements http.Handler: 200 {"status":"ok"} or 503 {"status":"degraded"}.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	resp := response{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	check := func(name string, err error) {
		if err == nil {
			resp.Checks[name] = "ok"
			return
		}
		s.logger.Error("health probe failed", "check", name, "error", err)
		resp.Checks[name] = "unavailable"
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	if s.pinger != nil {
		check("database", s.pinger.Ping(ctx))
	}
	if s.policy != nil {
		check("policy", s.policy.HealthCheck(ctx))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
