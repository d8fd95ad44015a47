// Package scoring computes the trust score of an authentication attempt and routes it.
package scoring

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	auditdomain "merchant-voice-auth/internal/audit/domain"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	"merchant-voice-auth/internal/policy/engine"
)

const instrumentation = "merchant-voice-auth/internal/scoring"

// MerchantLookup finds merchants and their market location.
type MerchantLookup interface {
	GetByPhone(ctx context.Context, phone string) (*merchantdomain.Merchant, error)
	GetLocation(ctx context.Context, id string) (*merchantdomain.Location, error)
}

// TrustStore is the part of the registry the engine reads and writes.
type TrustStore interface {
	IsTrustedDevice(ctx context.Context, merchantID, fingerprint string) (bool, error)
	CountFailuresSince(ctx context.Context, merchantID string, since time.Time) (int, error)
	AppendDecision(ctx context.Context, e *auditdomain.DecisionLogEntry) (*auditdomain.DecisionLogEntry, error)
}

// Input describes one attempt. Phone must already be normalized.
type Input struct {
	Phone       string
	Fingerprint string
	Lat, Lng    *float64
	Hour        *int // 0..23; current hour in the engine's zone when nil or out of range
}

// Assessment is the engine's verdict.
type Assessment struct {
	Merchant *merchantdomain.Merchant // nil when the phone is unknown
	Score    int
	Decision auditdomain.Decision
	Reasons  []auditdomain.ReasonCode
	Factors  TrustFactors
	Hour     int
	LogID    string // empty when the decision log could not be written
}

// Engine scores attempts.
type Engine struct {
	merchants MerchantLookup
	trust     TrustStore
	router    engine.Router
	loc       *time.Location
	logger    *slog.Logger
	nowF      func() time.Time
	decisions metric.Int64Counter
}

// NewEngine returns an Engine. router may be nil; then DecisionFor routes directly.
// loc is the zone of the hour bucket when the client sends none.
func NewEngine(merchants MerchantLookup, trust TrustStore, router engine.Router, loc *time.Location, logger *slog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	counter, err := otel.Meter(instrumentation).Int64Counter("voiceauth.decisions",
		metric.WithDescription("Authentication decisions by outcome"))
	if err != nil {
		logger.Warn("scoring: decision counter unavailable", "error", err)
	}
	return &Engine{
		merchants: merchants,
		trust:     trust,
		router:    router,
		loc:       loc,
		logger:    logger,
		nowF:      time.Now,
		decisions: counter,
	}
}

// Evaluate scores the attempt and appends a pending decision log entry. Missing merchant, geo or
// history data never fail the call; only a failed merchant lookup is returned as an error.
func (e *Engine) Evaluate(ctx context.Context, in Input) (*Assessment, error) {
	ctx, span := otel.Tracer(instrumentation).Start(ctx, "scoring.Evaluate")
	defer span.End()

	now := e.nowF()
	a := &Assessment{Hour: e.hourOf(in.Hour, now)}

	m, err := e.merchants.GetByPhone(ctx, in.Phone)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if m == nil {
		a.Decision = auditdomain.DecisionRegister
	} else {
		a.Merchant = m
		a.Factors, a.Reasons = e.factors(ctx, m, in, a.Hour, now)
		a.Score = a.Factors.Total()
		a.Decision = e.route(ctx, a)
	}

	a.LogID = e.appendLog(ctx, in, a, now)
	span.SetAttributes(
		attribute.Int("voiceauth.trust_score", a.Score),
		attribute.String("voiceauth.decision", string(a.Decision)),
	)
	if e.decisions != nil {
		e.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", string(a.Decision))))
	}
	return a, nil
}

func (e *Engine) factors(ctx context.Context, m *merchantdomain.Merchant, in Input, hour int, now time.Time) (TrustFactors, []auditdomain.ReasonCode) {
	var f TrustFactors
	var reasons []auditdomain.ReasonCode

	known, err := e.trust.IsTrustedDevice(ctx, m.ID, in.Fingerprint)
	if err != nil {
		e.logger.Warn("scoring: device lookup failed", "merchant_id", m.ID, "error", err)
		known = false
	}
	f.DeviceKnown = known && in.Fingerprint != ""
	if f.DeviceKnown {
		f.DeviceScore = KnownDevicePoints
	} else {
		f.DeviceScore = NewDevicePenalty
		reasons = append(reasons, auditdomain.ReasonNewDevice)
	}

	if dist, ok := e.distance(ctx, m, in); ok {
		switch {
		case dist <= NearMeters:
			f.GeoMatch = true
			f.GeoScore = NearLocationPoints
		case dist > FarMeters:
			f.GeoScore = FarLocationPenalty
			reasons = append(reasons, auditdomain.ReasonUnusualLocation)
		}
	}

	if hour >= FirstUsualHour && hour <= LastUsualHour {
		f.TimeMatch = true
		f.TimeScore = UsualHourPoints
	} else {
		reasons = append(reasons, auditdomain.ReasonUnusualTime)
	}

	failures, err := e.trust.CountFailuresSince(ctx, m.ID, now.Add(-FailureLookback*time.Hour))
	switch {
	case err != nil:
		e.logger.Warn("scoring: failure history unavailable", "merchant_id", m.ID, "error", err)
	case failures >= ManyFailures:
		f.HistoryScore = ManyFailuresPenalty
		reasons = append(reasons, auditdomain.ReasonManyFails)
	case failures == 0:
		f.HistoryScore = CleanHistoryPoints
	}
	return f, reasons
}

// distance reports the attempt's distance to the merchant's market, when both points are known.
func (e *Engine) distance(ctx context.Context, m *merchantdomain.Merchant, in Input) (float64, bool) {
	if in.Lat == nil || in.Lng == nil || m.LocationID == "" {
		return 0, false
	}
	loc, err := e.merchants.GetLocation(ctx, m.LocationID)
	if err != nil {
		e.logger.Warn("scoring: location lookup failed", "location_id", m.LocationID, "error", err)
		return 0, false
	}
	if loc == nil || !loc.HasCoordinates() {
		return 0, false
	}
	return DistanceMeters(*in.Lat, *in.Lng, *loc.Latitude, *loc.Longitude), true
}

func (e *Engine) route(ctx context.Context, a *Assessment) auditdomain.Decision {
	if e.router == nil {
		return DecisionFor(a.Score)
	}
	d, err := e.router.Route(ctx, engine.Input{MerchantFound: true, Score: a.Score, Reasons: a.Reasons})
	if err != nil {
		e.logger.Warn("scoring: decision policy failed, using thresholds", "error", err)
		return DecisionFor(a.Score)
	}
	return d
}

func (e *Engine) appendLog(ctx context.Context, in Input, a *Assessment, now time.Time) string {
	entry := &auditdomain.DecisionLogEntry{
		SubmittedPhone:    in.Phone,
		DeviceFingerprint: in.Fingerprint,
		Latitude:          in.Lat,
		Longitude:         in.Lng,
		TrustScore:        a.Score,
		Decision:          a.Decision,
		ReasonCodes:       a.Reasons,
		HourBucket:        a.Hour,
		CreatedAt:         now.UTC(),
	}
	if a.Merchant != nil {
		entry.MerchantID = a.Merchant.ID
	}
	saved, err := e.trust.AppendDecision(ctx, entry)
	if err != nil {
		e.logger.Error("scoring: decision log write failed", "decision", a.Decision, "error", err)
		return ""
	}
	return saved.ID
}

func (e *Engine) hourOf(h *int, now time.Time) int {
	if h != nil && *h >= 0 && *h <= 23 {
		return *h
	}
	return now.In(e.loc).Hour()
}
