// Package service runs the Start and Answer steps of voice authentication: capture, scoring, then
// direct access, a challenge, an escalation to an agent, or registration.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	auditdomain "merchant-voice-auth/internal/audit/domain"
	"merchant-voice-auth/internal/capture"
	"merchant-voice-auth/internal/challenge"
	devicedomain "merchant-voice-auth/internal/device/domain"
	"merchant-voice-auth/internal/language"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/scoring"
	"merchant-voice-auth/internal/telemetry"
	validationdomain "merchant-voice-auth/internal/validation/domain"
)

// Sentinel errors; the handler maps them to HTTP statuses.
var (
	ErrInvalidRequest   = errors.New("voiceauth: invalid request")
	ErrMerchantNotFound = errors.New("voiceauth: merchant not found")
)

// LowConfidence is the capture confidence under which the heard number is read back for
// confirmation before any direct access or social question.
const LowConfidence = 0.6

// Session token methods.
const (
	MethodDirect       = "direct"
	MethodConfirmation = "confirmation"
	MethodSocialAnswer = "social_answer"
)

// PhoneCapturer turns audio or an already transcribed utterance into a phone number.
type PhoneCapturer interface {
	Capture(ctx context.Context, audio []byte, lang string) (*capture.Result, error)
	FromText(text, lang string) (*capture.Result, error)
}

// Scorer scores an attempt and writes its pending decision log entry.
type Scorer interface {
	Evaluate(ctx context.Context, in scoring.Input) (*scoring.Assessment, error)
}

// AnswerChecker verifies social answers and records the result.
type AnswerChecker interface {
	Resolve(ctx context.Context, a challenge.Attempt) (*challenge.Verdict, error)
}

// Escalator opens, or reuses, the merchant's pending validation request.
type Escalator interface {
	EnsurePending(ctx context.Context, m *merchantdomain.Merchant, phone, reason string, typ validationdomain.Type, decisionLogID string) (*validationdomain.Request, bool, error)
}

// MerchantReader loads merchants by id.
type MerchantReader interface {
	GetByID(ctx context.Context, id string) (*merchantdomain.Merchant, error)
}

// QuestionKeys lists the social questions a merchant enrolled.
type QuestionKeys interface {
	ListKeys(ctx context.Context, merchantID string) ([]string, error)
}

// TrustRegistry is the part of the registry the flows read and resolve.
type TrustRegistry interface {
	UpsertDevice(ctx context.Context, merchantID, fingerprint string) (*devicedomain.TrustRecord, error)
	ResolveDecision(ctx context.Context, id string, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) (bool, error)
	LatestPendingDecision(ctx context.Context, merchantID, fingerprint string) (*auditdomain.DecisionLogEntry, error)
}

// SessionIssuer signs merchant session tokens.
type SessionIssuer interface {
	IssueSession(merchantID, fingerprint, decisionLogID, method string) (string, time.Time, error)
}

// Options wires a Service. Every field but Tokens, Events and Logger is required.
type Options struct {
	Capture   PhoneCapturer
	Scorer    Scorer
	Answers   AnswerChecker
	Escalator Escalator
	Merchants MerchantReader
	Questions QuestionKeys
	Registry  TrustRegistry
	Catalog   *persona.Catalog
	// Tokens may be nil; DIRECT then carries no session token.
	Tokens SessionIssuer
	Events telemetry.EventEmitter
	// ValidationTTL is only used to tell the merchant how long an agent may take.
	ValidationTTL time.Duration
	Logger        *slog.Logger
}

// Service implements the voice authentication flows.
type Service struct {
	capture   PhoneCapturer
	scorer    Scorer
	answers   AnswerChecker
	escalator Escalator
	merchants MerchantReader
	questions QuestionKeys
	registry  TrustRegistry
	catalog   *persona.Catalog
	tokens    SessionIssuer
	events    telemetry.EventEmitter
	ttl       time.Duration
	logger    *slog.Logger
}

// New returns a Service.
func New(opts Options) *Service {
	s := &Service{
		capture:   opts.Capture,
		scorer:    opts.Scorer,
		answers:   opts.Answers,
		escalator: opts.Escalator,
		merchants: opts.Merchants,
		questions: opts.Questions,
		registry:  opts.Registry,
		catalog:   opts.Catalog,
		tokens:    opts.Tokens,
		events:    opts.Events,
		ttl:       opts.ValidationTTL,
		logger:    opts.Logger,
	}
	if s.catalog == nil {
		s.catalog = persona.Default()
	}
	if s.ttl <= 0 {
		s.ttl = 30 * time.Minute
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Context is the optional client context of an attempt.
type Context struct {
	Lat  *float64
	Lng  *float64
	Hour *int
}

func (s *Service) say(m *merchantdomain.Merchant, lang string, step persona.Step, vars persona.Vars) string {
	p := ""
	if m != nil {
		p = m.Persona
		if vars.Name == "" {
			vars.Name = m.DisplayName
		}
	}
	if vars.Minutes == 0 {
		vars.Minutes = int(s.ttl / time.Minute)
	}
	return s.catalog.Message(p, lang, step, vars)
}

// requestLanguage parses a client language code; empty selects the default.
func requestLanguage(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return language.Default, nil
	}
	code, ok := language.Parse(raw)
	if !ok {
		return "", fmt.Errorf("%w: %q", capture.ErrUnsupportedLanguage, raw)
	}
	return code, nil
}

// merchantLanguage prefers the client's language, then the merchant's, then the default.
func merchantLanguage(raw string, m *merchantdomain.Merchant) string {
	if code, ok := language.Parse(raw); ok {
		return code
	}
	if m != nil && language.Supported(m.PreferredLanguage) {
		return m.PreferredLanguage
	}
	return language.Default
}

// pickQuestion returns the first enrolled key the catalog can ask in lang.
func (s *Service) pickQuestion(ctx context.Context, merchantID, lang string) (key, question string, ok bool) {
	keys, err := s.questions.ListKeys(ctx, merchantID)
	if err != nil {
		s.logger.Warn("voiceauth: social questions unavailable", "merchant_id", merchantID, "error", err)
		return "", "", false
	}
	for _, k := range keys {
		if q, found := s.catalog.Question(k, lang); found {
			return k, q, true
		}
	}
	return "", "", false
}

// grant issues a session token, then trusts the device and resolves the decision log success.
func (s *Service) grant(ctx context.Context, m *merchantdomain.Merchant, fingerprint, logID, method string) (string, error) {
	token, err := s.issue(m.ID, fingerprint, logID, method)
	if err != nil {
		return "", err
	}
	if fingerprint != "" {
		if _, err := s.registry.UpsertDevice(ctx, m.ID, fingerprint); err != nil {
			s.logger.Warn("voiceauth: device trust not recorded", "merchant_id", m.ID, "error", err)
		}
	}
	if logID != "" {
		if _, err := s.registry.ResolveDecision(ctx, logID, auditdomain.OutcomeSuccess, ""); err != nil {
			s.logger.Warn("voiceauth: decision log not resolved", "decision_log_id", logID, "error", err)
		}
	}
	return token, nil
}

func (s *Service) issue(merchantID, fingerprint, logID, method string) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	token, _, err := s.tokens.IssueSession(merchantID, fingerprint, logID, method)
	if err != nil {
		return "", fmt.Errorf("voiceauth: issue session: %w", err)
	}
	return token, nil
}

// escalate opens or reuses the merchant's pending validation request.
func (s *Service) escalate(ctx context.Context, m *merchantdomain.Merchant, logID string, reasons []auditdomain.ReasonCode) (string, error) {
	req, reused, err := s.escalator.EnsurePending(ctx, m, m.Phone, reasonText(reasons), validationType(reasons), logID)
	if err != nil {
		return "", fmt.Errorf("voiceauth: escalate: %w", err)
	}
	if reused {
		s.logger.Info("voiceauth: reusing pending validation", "merchant_id", m.ID, "validation_id", req.ID)
	}
	return req.ID, nil
}

// validationType tells the agent what to look at first.
func validationType(reasons []auditdomain.ReasonCode) validationdomain.Type {
	for _, r := range reasons {
		switch r {
		case auditdomain.ReasonWrongAnswer, auditdomain.ReasonNoStoredAnswer:
			return validationdomain.TypeIdentity
		case auditdomain.ReasonNewDevice:
			return validationdomain.TypeDevice
		case auditdomain.ReasonUnusualLocation:
			return validationdomain.TypeLocation
		}
	}
	return validationdomain.TypeEscalation
}

func reasonText(reasons []auditdomain.ReasonCode) string {
	if len(reasons) == 0 {
		return "LOW_TRUST_SCORE"
	}
	return strings.Join(reasonStrings(reasons), ",")
}

func reasonStrings(reasons []auditdomain.ReasonCode) []string {
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		out = append(out, string(r))
	}
	return out
}

func (s *Service) emit(ctx context.Context, ev *telemetry.Event) {
	telemetry.EmitAsync(ctx, s.events, ev, s.logger)
}
