// Package handler exposes the voice authentication flows and agent validation over HTTP JSON.
package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"merchant-voice-auth/internal/persona"
)

// Dependencies collects what the router serves. Auth and Validations are required.
type Dependencies struct {
	Auth        AuthService
	Validations Validations
	// AgentTokens and Agents authenticate the agent routes. Without them those routes answer 401.
	AgentTokens AgentTokens
	Agents      AgentDirectory
	// Devices serves POST /v1/devices/revoke. Optional.
	Devices DeviceRevoker
	// Catalog voices failed start and answer steps. Defaults to the embedded catalog.
	Catalog *persona.Catalog
	// Health serves GET /healthz. Optional.
	Health http.Handler
	// AllowedOrigins is the CORS allow list; "*" allows any origin.
	AllowedOrigins []string
	// DevCodes exposes GET /dev/validations/{id}/code. Never set in production.
	DevCodes bool
}

// NewRouter wires the HTTP routes.
func NewRouter(logger *slog.Logger, deps Dependencies) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{
		logger:      logger,
		auth:        deps.Auth,
		validations: deps.Validations,
		devices:     deps.Devices,
		origins:     deps.AllowedOrigins,
		throttle:    newAgentThrottle(decideEvery, decideBurst),
		catalog:     deps.Catalog,
	}
	if h.catalog == nil {
		h.catalog = persona.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(logger))
	r.Use(corsMiddleware(deps.AllowedOrigins))

	if deps.Health != nil {
		r.Method(http.MethodGet, "/healthz", deps.Health)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/voice-auth/start", h.start)
		r.Post("/voice-auth/answer", h.answer)
		r.Group(func(r chi.Router) {
			r.Use(agentAuth(deps.AgentTokens, deps.Agents, h))
			r.Post("/validations/decide", h.decide)
			if deps.Devices != nil {
				r.Post("/devices/revoke", h.revokeDevice)
			}
		})
		r.Get("/validations/{id}", h.getValidation)
		r.Get("/validations/{id}/watch", h.watchValidation)
	})
	if deps.DevCodes {
		r.Get("/dev/validations/{id}/code", h.devCode)
	}
	return r
}

type handlers struct {
	logger      *slog.Logger
	auth        AuthService
	validations Validations
	devices     DeviceRevoker
	origins     []string
	throttle    *agentThrottle
	catalog     *persona.Catalog
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// corsMiddleware answers every OPTIONS preflight with 204 and no body. CORS headers are only added for
// allowed origins.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = struct{}{}
		}
	}
	_, anyOrigin := allowed["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if _, ok := allowed[origin]; origin != "" && (ok || anyOrigin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
