// Package challenge verifies spoken answers to confirmation and social questions.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	auditdomain "merchant-voice-auth/internal/audit/domain"
	devicedomain "merchant-voice-auth/internal/device/domain"
	"merchant-voice-auth/internal/security"
	"merchant-voice-auth/internal/socialanswer/domain"
	"merchant-voice-auth/internal/textnorm"
)

var (
	ErrNoStoredAnswer = errors.New("challenge: no stored answer")
	ErrWrongAnswer    = errors.New("challenge: wrong answer")
)

// Method names how an answer was checked.
type Method string

const (
	MethodHash   Method = "hash"
	MethodLegacy Method = "legacy"
)

// AnswerStore reads enrolled answers.
type AnswerStore interface {
	Get(ctx context.Context, merchantID, challengeKey string) (*domain.Record, error)
}

// TrustWriter is the part of the registry a resolved challenge writes to.
type TrustWriter interface {
	UpsertDevice(ctx context.Context, merchantID, fingerprint string) (*devicedomain.TrustRecord, error)
	ResolveDecision(ctx context.Context, id string, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) (bool, error)
}

// Verdict is the result of checking one answer.
type Verdict struct {
	Accepted bool
	Score    float64 // 1 on a hash match, the similarity on the legacy path
	Method   Method
}

// Attempt is an answer to resolve against the attempt's decision log entry.
type Attempt struct {
	MerchantID    string
	Fingerprint   string
	DecisionLogID string
	ChallengeKey  string
	Transcript    string
}

// Evaluator checks answers and records the result.
type Evaluator struct {
	answers AnswerStore
	trust   TrustWriter
	logger  *slog.Logger
}

// NewEvaluator returns an Evaluator. trust may be nil when results are not recorded.
func NewEvaluator(answers AnswerStore, trust TrustWriter, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{answers: answers, trust: trust, logger: logger}
}

// Verify checks transcript against the stored answer without side effects.
// Returns ErrNoStoredAnswer when nothing is enrolled for the key.
func (e *Evaluator) Verify(ctx context.Context, merchantID, challengeKey, transcript string) (*Verdict, error) {
	rec, err := e.answers.Get(ctx, merchantID, challengeKey)
	if err != nil {
		return nil, fmt.Errorf("challenge: load answer: %w", err)
	}
	if rec == nil || (rec.AnswerHash == "" && rec.LegacyAnswer == "") {
		return nil, ErrNoStoredAnswer
	}
	normalized := textnorm.Normalize(transcript)
	if rec.AnswerHash != "" && security.AnswerMatches(rec.Salt, normalized, rec.AnswerHash) {
		return &Verdict{Accepted: true, Score: 1, Method: MethodHash}, nil
	}
	if rec.LegacyAnswer == "" {
		return &Verdict{Method: MethodHash}, nil
	}
	score := Similarity(normalized, textnorm.Normalize(rec.LegacyAnswer))
	return &Verdict{Accepted: score >= AcceptThreshold, Score: score, Method: MethodLegacy}, nil
}

// Resolve verifies the answer and writes the outcome back: an accepted answer trusts the device and
// resolves the decision log success; a rejected one resolves it failed with WRONG_ANSWER and returns
// ErrWrongAnswer alongside the verdict. ErrNoStoredAnswer leaves the log pending for escalation.
func (e *Evaluator) Resolve(ctx context.Context, a Attempt) (*Verdict, error) {
	ctx, span := otel.Tracer("merchant-voice-auth/internal/challenge").Start(ctx, "challenge.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("voiceauth.challenge_key", a.ChallengeKey))

	v, err := e.Verify(ctx, a.MerchantID, a.ChallengeKey, a.Transcript)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("voiceauth.accepted", v.Accepted), attribute.String("voiceauth.method", string(v.Method)))

	if !v.Accepted {
		e.resolve(ctx, a.DecisionLogID, auditdomain.OutcomeFailed, auditdomain.ReasonWrongAnswer)
		return v, ErrWrongAnswer
	}
	if e.trust != nil && a.Fingerprint != "" {
		if _, err := e.trust.UpsertDevice(ctx, a.MerchantID, a.Fingerprint); err != nil {
			e.logger.Warn("challenge: device trust not recorded", "merchant_id", a.MerchantID, "error", err)
		}
	}
	e.resolve(ctx, a.DecisionLogID, auditdomain.OutcomeSuccess, "")
	return v, nil
}

func (e *Evaluator) resolve(ctx context.Context, id string, outcome auditdomain.Outcome, reason auditdomain.ReasonCode) {
	if e.trust == nil || id == "" {
		return
	}
	if _, err := e.trust.ResolveDecision(ctx, id, outcome, reason); err != nil {
		e.logger.Warn("challenge: decision log not resolved", "decision_log_id", id, "error", err)
	}
}
