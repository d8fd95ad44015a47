// Package server assembles the voice authentication service from configuration: stores,
// scoring, escalation, realtime delivery, telemetry and the HTTP router.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	agentrepo "merchant-voice-auth/internal/agent/repository"
	"merchant-voice-auth/internal/audit"
	auditrepo "merchant-voice-auth/internal/audit/repository"
	"merchant-voice-auth/internal/capture"
	"merchant-voice-auth/internal/challenge"
	"merchant-voice-auth/internal/config"
	devicerepo "merchant-voice-auth/internal/device/repository"
	"merchant-voice-auth/internal/escalation"
	healthhandler "merchant-voice-auth/internal/health/handler"
	merchantrepo "merchant-voice-auth/internal/merchant/repository"
	"merchant-voice-auth/internal/notify"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/policy/engine"
	"merchant-voice-auth/internal/realtime"
	"merchant-voice-auth/internal/registry"
	"merchant-voice-auth/internal/scoring"
	"merchant-voice-auth/internal/security"
	"merchant-voice-auth/internal/seed"
	socialrepo "merchant-voice-auth/internal/socialanswer/repository"
	"merchant-voice-auth/internal/speech"
	"merchant-voice-auth/internal/telemetry"
	telemetryotel "merchant-voice-auth/internal/telemetry/otel"
	"merchant-voice-auth/internal/telemetry/producer"
	validationrepo "merchant-voice-auth/internal/validation/repository"
	"merchant-voice-auth/internal/voiceauth/handler"
	"merchant-voice-auth/internal/voiceauth/service"
)

// sweepInterval is how often overdue validation requests are expired.
const sweepInterval = 30 * time.Second

type auditStore interface {
	auditrepo.DecisionRepository
	auditrepo.AgentActionRepository
}

type stores struct {
	merchants merchantrepo.Repository
	answers   socialrepo.Repository
	devices   devicerepo.Repository
	audit     auditStore
	requests  validationrepo.Repository
	agents    escalation.AgentDirectory
}

// Deps are built outside Build. All fields are optional.
type Deps struct {
	// Pool backs the Postgres stores. Nil runs on in-memory stores seeded with the demo dataset.
	Pool *pgxpool.Pool
	// Providers supply the OTel log pipeline for decision events.
	Providers *telemetryotel.Providers
}

// App is a wired service.
type App struct {
	Handler     http.Handler
	Coordinator *escalation.Coordinator
	Service     *service.Service

	logger  *slog.Logger
	runners []func(ctx context.Context) error
	closers []func() error
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config, deps Deps, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{logger: logger}

	st, err := buildStores(deps.Pool, logger)
	if err != nil {
		return nil, err
	}
	reg := registry.New(st.devices, st.audit, audit.NewLogger(st.audit, logger), logger)

	opa, err := engine.NewOPAEvaluator(ctx, scoring.DecisionFor)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	var transcriber capture.Transcriber
	if cfg.STTBaseURL != "" {
		transcriber = speech.NewHTTPTranscriber(cfg.STTBaseURL, cfg.STTClientID, cfg.STTClientSecret)
	} else {
		logger.Warn("STT_BASE_URL not set; audio capture disabled, spoken text only")
	}
	bridge := capture.NewBridge(transcriber, cfg.CountryCode, cfg.STTCallTimeout(), logger)

	events := app.buildEvents(cfg, deps.Providers)

	sub, pub, err := app.buildRealtime(cfg, st.requests)
	if err != nil {
		return nil, err
	}

	coord := escalation.NewCoordinator(escalation.Options{
		Requests:   st.requests,
		Registry:   reg,
		Agents:     st.agents,
		Dispatcher: buildDispatcher(cfg, logger),
		Subscriber: sub,
		Publisher:  pub,
		Events:     events,
		TTL:        cfg.ValidationLifetime(),
		Logger:     logger,
	})
	app.runners = append(app.runners, func(ctx context.Context) error {
		coord.RunSweeper(ctx, sweepInterval)
		return nil
	})

	signer, pubKey, generated, err := security.LoadSigningKeys(cfg.JWTPrivateKey, cfg.JWTPublicKey)
	if err != nil {
		return nil, fmt.Errorf("session keys: %w", err)
	}
	if generated {
		logger.Warn("JWT keys not configured; using an ephemeral key, sessions will not survive a restart")
	}
	tokens := security.NewTokenProvider(signer, pubKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionLifetime())

	catalog := persona.Default()
	svc := service.New(service.Options{
		Capture:       bridge,
		Scorer:        scoring.NewEngine(st.merchants, reg, opa, cfg.Location(), logger),
		Answers:       challenge.NewEvaluator(st.answers, reg, logger),
		Escalator:     coord,
		Merchants:     st.merchants,
		Questions:     st.answers,
		Registry:      reg,
		Catalog:       catalog,
		Tokens:        tokens,
		Events:        events,
		ValidationTTL: cfg.ValidationLifetime(),
		Logger:        logger,
	})

	var pinger healthhandler.Pinger
	if deps.Pool != nil {
		pinger = deps.Pool
	}
	if cfg.ValidationCodeReturnToClient {
		logger.Warn("validation codes are exposed at /dev/validations/{id}/code")
	}
	app.Handler = handler.NewRouter(logger, handler.Dependencies{
		Auth:           svc,
		Validations:    coord,
		AgentTokens:    tokens,
		Agents:         st.agents,
		Devices:        reg,
		Catalog:        catalog,
		Health:         healthhandler.NewServer(pinger, opa, logger),
		AllowedOrigins: cfg.AllowedOrigins(),
		DevCodes:       cfg.ValidationCodeReturnToClient,
	})
	app.Coordinator = coord
	app.Service = svc
	return app, nil
}

// Run starts the background workers and blocks until ctx is done or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range a.runners {
		g.Go(func() error { return run(ctx) })
	}
	return g.Wait()
}

// Close releases the event stream and realtime clients.
func (a *App) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close", "error", err)
		}
	}
}

func buildStores(pool *pgxpool.Pool, logger *slog.Logger) (*stores, error) {
	if pool != nil {
		return &stores{
			merchants: merchantrepo.NewPostgresRepository(pool),
			answers:   socialrepo.NewPostgresRepository(pool),
			devices:   devicerepo.NewPostgresRepository(pool),
			audit:     auditrepo.NewPostgresRepository(pool),
			requests:  validationrepo.NewPostgresRepository(pool),
			agents:    agentrepo.NewPostgresRepository(pool),
		}, nil
	}
	logger.Warn("DATABASE_URL not set; using in-memory stores with demo data")
	ds := seed.Demo()
	merchants := merchantrepo.NewMemoryRepository()
	answers := socialrepo.NewMemoryRepository()
	if err := ds.LoadMemory(merchants, answers, nil); err != nil {
		return nil, err
	}
	return &stores{
		merchants: merchants,
		answers:   answers,
		devices:   devicerepo.NewMemoryRepository(),
		audit:     auditrepo.NewMemoryRepository(),
		requests:  validationrepo.NewMemoryRepository(),
		agents:    agentrepo.NewMemoryRepository(ds.Agents...),
	}, nil
}

func (a *App) buildEvents(cfg *config.Config, providers *telemetryotel.Providers) telemetry.EventEmitter {
	var multi telemetry.Multi
	if p := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.DecisionKafkaTopic); p != nil {
		multi = append(multi, p)
		a.closers = append(a.closers, p.Close)
		a.logger.Info("decision events streaming to kafka", "topic", cfg.DecisionKafkaTopic)
	}
	if providers != nil {
		multi = append(multi, telemetryotel.NewEventEmitter(providers.LoggerProvider))
	}
	return multi
}

func (a *App) buildRealtime(cfg *config.Config, requests validationrepo.Repository) (realtime.Subscriber, realtime.Publisher, error) {
	switch cfg.RealtimeMode {
	case "pg":
		l := realtime.NewPGListener(cfg.DatabaseURL, requests, a.logger)
		a.runners = append(a.runners, l.Run)
		return l, nil, nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, client.Close)
		bus := realtime.NewRedisBus(client, requests, a.logger)
		a.runners = append(a.runners, bus.Run)
		return bus, bus, nil
	default:
		return realtime.NewPoller(requests, cfg.PollEvery(), a.logger), nil, nil
	}
}

func buildDispatcher(cfg *config.Config, logger *slog.Logger) notify.Dispatcher {
	var primary, secondary notify.Dispatcher
	if cfg.PushBaseURL != "" {
		primary = notify.NewPushClient(cfg.PushBaseURL, cfg.PushAPIKey)
	}
	if cfg.SMSLocalAPIKey != "" {
		secondary = notify.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender)
	}
	switch {
	case primary != nil && secondary != nil:
		return &notify.Fallback{Primary: primary, Secondary: secondary, Logger: logger}
	case primary != nil:
		return primary
	case secondary != nil:
		return secondary
	default:
		return notify.LogDispatcher{Logger: logger}
	}
}
