// Package escalation hands authentication attempts to human agents and tracks their validation.
package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	agentdomain "merchant-voice-auth/internal/agent/domain"
	auditdomain "merchant-voice-auth/internal/audit/domain"
	devicedomain "merchant-voice-auth/internal/device/domain"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	"merchant-voice-auth/internal/notify"
	"merchant-voice-auth/internal/realtime"
	"merchant-voice-auth/internal/telemetry"
	"merchant-voice-auth/internal/validation/domain"
	validationrepo "merchant-voice-auth/internal/validation/repository"
)

var (
	ErrStoreWriteFailed            = errors.New("escalation: store write failed")
	ErrValidationNotFoundOrExpired = errors.New("escalation: validation not found or expired")
)

const tracerName = "merchant-voice-auth/internal/escalation"

// AgentDirectory lists the agents to alert.
type AgentDirectory interface {
	ListActive(ctx context.Context) ([]*agentdomain.Agent, error)
}

// Registry is the part of the audit and device trust registry the coordinator writes to.
type Registry interface {
	UpsertDevice(ctx context.Context, merchantID, fingerprint string) (*devicedomain.TrustRecord, error)
	ResolveDecision(ctx context.Context, id string, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) (bool, error)
	GetDecision(ctx context.Context, id string) (*auditdomain.DecisionLogEntry, error)
	AppendAgentAction(ctx context.Context, agentID, validationRequestID, action, notes string)
}

// Options wires a Coordinator. Requests and Registry are required.
type Options struct {
	Requests   validationrepo.Repository
	Registry   Registry
	Agents     AgentDirectory
	Dispatcher notify.Dispatcher
	// Subscriber delivers changes to sessions. Defaults to polling Requests every 2s.
	Subscriber realtime.Subscriber
	// Publisher announces changes made here (Redis mode). Optional.
	Publisher realtime.Publisher
	Events    telemetry.EventEmitter
	TTL       time.Duration
	Logger    *slog.Logger
}

// Coordinator creates validation requests, alerts agents, applies their decisions and expires
// overdue requests.
type Coordinator struct {
	requests    validationrepo.Repository
	registry    Registry
	agents      AgentDirectory
	dispatcher  notify.Dispatcher
	subscriber  realtime.Subscriber
	publisher   realtime.Publisher
	events      telemetry.EventEmitter
	ttl         time.Duration
	logger      *slog.Logger
	nowF        func() time.Time
	sessionTick time.Duration
}

// NewCoordinator returns a Coordinator.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		requests:    opts.Requests,
		registry:    opts.Registry,
		agents:      opts.Agents,
		dispatcher:  opts.Dispatcher,
		subscriber:  opts.Subscriber,
		publisher:   opts.Publisher,
		events:      opts.Events,
		ttl:         opts.TTL,
		logger:      opts.Logger,
		nowF:        func() time.Time { return time.Now().UTC() },
		sessionTick: time.Second,
	}
	if c.ttl <= 0 {
		c.ttl = validationrepo.DefaultTTL
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.subscriber == nil {
		c.subscriber = realtime.NewPoller(opts.Requests, 0, c.logger)
	}
	return c
}

// RequestValidation creates a pending request for the merchant and alerts every active agent.
// A failed alert is logged; the request still stands. Returns domain.ErrPendingExists when the
// merchant already has a pending request, and ErrStoreWriteFailed when the insert fails.
func (c *Coordinator) RequestValidation(ctx context.Context, m *merchantdomain.Merchant, phone, reason string, typ domain.Type, decisionLogID string) (*domain.Request, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "escalation.RequestValidation")
	defer span.End()

	code, err := GenerateCode()
	if err != nil {
		return nil, fmt.Errorf("escalation: generate code: %w", err)
	}
	if typ == "" {
		typ = domain.TypeEscalation
	}
	now := c.nowF()
	req := &domain.Request{
		ID:            uuid.New().String(),
		Code:          code,
		MerchantID:    m.ID,
		Type:          typ,
		Result:        domain.ResultPending,
		Reason:        reason,
		DecisionLogID: decisionLogID,
		ExpiresAt:     now.Add(c.ttl),
		CreatedAt:     now,
	}
	if err := c.requests.Create(ctx, req); err != nil {
		if errors.Is(err, domain.ErrPendingExists) {
			return nil, err
		}
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	span.SetAttributes(attribute.String("voiceauth.validation_id", req.ID))

	c.alertAgents(ctx, m, phone, req)

	e := telemetry.NewEvent(telemetry.EventValidationRequested)
	e.MerchantID = m.ID
	e.ValidationID = req.ID
	e.DecisionLogID = decisionLogID
	e.Outcome = string(req.Result)
	e.Metadata = map[string]any{"type": string(typ), "reason": reason}
	telemetry.EmitAsync(ctx, c.events, e, c.logger)
	return req, nil
}

// EnsurePending returns the merchant's pending request, creating one when none is open.
// Overdue requests are expired first. reused is true when an existing request was returned.
func (c *Coordinator) EnsurePending(ctx context.Context, m *merchantdomain.Merchant, phone, reason string, typ domain.Type, decisionLogID string) (req *domain.Request, reused bool, err error) {
	now := c.nowF()
	expired, err := c.requests.ExpireDue(ctx, m.ID, now)
	if err != nil {
		c.logger.Warn("escalation: expire before create failed", "merchant_id", m.ID, "error", err)
	}
	for _, r := range expired {
		c.afterExpired(ctx, r)
	}

	if req, err := c.requests.GetPending(ctx, m.ID, now); err != nil {
		return nil, false, fmt.Errorf("escalation: read pending: %w", err)
	} else if req != nil {
		return req, true, nil
	}

	req, err = c.RequestValidation(ctx, m, phone, reason, typ, decisionLogID)
	if errors.Is(err, domain.ErrPendingExists) {
		// Lost the race to a concurrent attempt; reuse the winner's request.
		req, err = c.requests.GetPending(ctx, m.ID, c.nowF())
		if err != nil {
			return nil, false, fmt.Errorf("escalation: read pending: %w", err)
		}
		if req == nil {
			return nil, false, ErrStoreWriteFailed
		}
		return req, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return req, false, nil
}

// ValidateRequest applies an agent's decision to the pending, unexpired request with code.
// It returns false when no such request exists, including when another agent decided it first.
func (c *Coordinator) ValidateRequest(ctx context.Context, code, agentID string, approved bool, notes string) (bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "escalation.ValidateRequest")
	defer span.End()

	code = strings.TrimSpace(code)
	if !ValidCode(code) || agentID == "" {
		return false, nil
	}
	req, err := c.requests.Decide(ctx, code, agentID, approved, notes, c.nowF())
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("%w: %v", ErrStoreWriteFailed, err)
	}
	if req == nil {
		return false, nil
	}
	span.SetAttributes(attribute.String("voiceauth.validation_id", req.ID), attribute.Bool("voiceauth.approved", approved))

	action := auditdomain.ActionReject
	if approved {
		action = auditdomain.ActionApprove
	}
	c.registry.AppendAgentAction(ctx, agentID, req.ID, action, notes)

	if approved {
		c.trustLinkedDevice(ctx, req)
		c.resolveLinked(ctx, req, auditdomain.OutcomeSuccess, "")
	} else {
		c.resolveLinked(ctx, req, auditdomain.OutcomeFailed, "")
	}
	c.announce(ctx, req)

	e := telemetry.NewEvent(telemetry.EventValidationResolved)
	e.MerchantID = req.MerchantID
	e.ValidationID = req.ID
	e.DecisionLogID = req.DecisionLogID
	e.AgentID = agentID
	e.Outcome = string(req.Result)
	telemetry.EmitAsync(ctx, c.events, e, c.logger)
	return true, nil
}

// ExpireDue marks every overdue pending request expired and fails its linked decision log.
// It returns how many requests expired.
func (c *Coordinator) ExpireDue(ctx context.Context) (int, error) {
	expired, err := c.requests.ExpireDue(ctx, "", c.nowF())
	if err != nil {
		return 0, fmt.Errorf("escalation: expire due: %w", err)
	}
	for _, r := range expired {
		c.afterExpired(ctx, r)
	}
	return len(expired), nil
}

// RunSweeper calls ExpireDue every interval until ctx is done.
func (c *Coordinator) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.ExpireDue(ctx)
			if err != nil {
				c.logger.Error("escalation: sweep failed", "error", err)
				continue
			}
			if n > 0 {
				c.logger.Info("escalation: expired validation requests", "count", n)
			}
		}
	}
}

// Get returns the request for id, or ErrValidationNotFoundOrExpired when there is none.
func (c *Coordinator) Get(ctx context.Context, id string) (*domain.Request, error) {
	req, err := c.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("escalation: get request: %w", err)
	}
	if req == nil {
		return nil, ErrValidationNotFoundOrExpired
	}
	return req, nil
}

// Subscribe watches one request. See realtime.Subscriber.
func (c *Coordinator) Subscribe(ctx context.Context, requestID string, onChange func(realtime.Update)) (func(), error) {
	unsubscribe, err := c.subscriber.Subscribe(ctx, requestID, onChange)
	if errors.Is(err, realtime.ErrNotFound) {
		return nil, ErrValidationNotFoundOrExpired
	}
	return unsubscribe, err
}

func (c *Coordinator) afterExpired(ctx context.Context, r *domain.Request) {
	c.registry.AppendAgentAction(ctx, "", r.ID, auditdomain.ActionExpire, "")
	c.resolveLinked(ctx, r, auditdomain.OutcomeFailed, auditdomain.ReasonValidationExpired)
	c.announce(ctx, r)

	e := telemetry.NewEvent(telemetry.EventValidationResolved)
	e.MerchantID = r.MerchantID
	e.ValidationID = r.ID
	e.DecisionLogID = r.DecisionLogID
	e.Outcome = string(domain.ResultExpired)
	e.ReasonCodes = []string{string(auditdomain.ReasonValidationExpired)}
	telemetry.EmitAsync(ctx, c.events, e, c.logger)
}

func (c *Coordinator) resolveLinked(ctx context.Context, r *domain.Request, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) {
	if r.DecisionLogID == "" {
		return
	}
	if _, err := c.registry.ResolveDecision(ctx, r.DecisionLogID, outcome, reason); err != nil {
		c.logger.Warn("escalation: decision log not resolved", "decision_log_id", r.DecisionLogID, "error", err)
	}
}

func (c *Coordinator) trustLinkedDevice(ctx context.Context, r *domain.Request) {
	if r.DecisionLogID == "" {
		return
	}
	entry, err := c.registry.GetDecision(ctx, r.DecisionLogID)
	if err != nil || entry == nil || entry.DeviceFingerprint == "" {
		if err != nil {
			c.logger.Warn("escalation: decision log unreadable", "decision_log_id", r.DecisionLogID, "error", err)
		}
		return
	}
	if _, err := c.registry.UpsertDevice(ctx, r.MerchantID, entry.DeviceFingerprint); err != nil {
		c.logger.Warn("escalation: device trust not recorded", "merchant_id", r.MerchantID, "error", err)
	}
}

func (c *Coordinator) announce(ctx context.Context, r *domain.Request) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, realtime.Update{RequestID: r.ID, Result: r.Result}); err != nil {
		c.logger.Warn("escalation: publish update failed", "validation_id", r.ID, "error", err)
	}
}

func (c *Coordinator) alertAgents(ctx context.Context, m *merchantdomain.Merchant, phone string, req *domain.Request) {
	if c.agents == nil || c.dispatcher == nil {
		return
	}
	agents, err := c.agents.ListActive(ctx)
	if err != nil {
		c.logger.Warn("escalation: agents unavailable, no alert sent", "validation_id", req.ID, "error", err)
		return
	}
	if len(agents) == 0 {
		c.logger.Warn("escalation: no active agent to alert", "validation_id", req.ID)
		return
	}
	to := make([]notify.Recipient, 0, len(agents))
	for _, a := range agents {
		to = append(to, notify.Recipient{UserID: a.ID, Phone: a.Phone})
	}
	msg := notify.Message{
		Title: "Validation marchand",
		Body:  fmt.Sprintf("%s (%s) attend une validation. Code : %s", m.DisplayName, phone, req.Code),
		Data: map[string]string{
			"validation_id": req.ID,
			"merchant_id":   m.ID,
			"code":          req.Code,
			"expires_at":    req.ExpiresAt.Format(time.RFC3339),
		},
	}
	out, err := c.dispatcher.Dispatch(ctx, to, msg)
	if err != nil {
		c.logger.Warn("escalation: agent alert failed", "validation_id", req.ID, "error", err)
		return
	}
	c.logger.Info("escalation: agents alerted", "validation_id", req.ID, "delivered", out.Delivered, "channel", out.Channel)
}
