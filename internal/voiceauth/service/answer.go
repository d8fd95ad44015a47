package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	auditdomain "merchant-voice-auth/internal/audit/domain"
	"merchant-voice-auth/internal/challenge"
	merchantdomain "merchant-voice-auth/internal/merchant/domain"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/telemetry"
)

// AnswerInput is the merchant's spoken reply to a challenge. ChallengeKey challenge.ConfirmKey
// selects the yes/no confirmation of the heard phone number.
type AnswerInput struct {
	MerchantID   string
	ChallengeKey string
	AnswerSpoken string
	Fingerprint  string
	Lang         string
}

// AnswerResult tells the client what to do next and what to say.
type AnswerResult struct {
	NextStep     persona.Step
	TrustScore   int
	Message      string
	SessionToken string
	ChallengeKey string
	ValidationID string
}

// answerTurn carries one Answer call through its helpers.
type answerTurn struct {
	in       AnswerInput
	merchant *merchantdomain.Merchant
	lang     string
	logID    string
	decision auditdomain.Decision
	res      *AnswerResult
}

// Answer resolves a challenge on the attempt's pending decision log entry. An accepted answer
// grants access; a wrong or missing stored answer escalates; an unclear confirmation asks again.
func (s *Service) Answer(ctx context.Context, in AnswerInput) (*AnswerResult, error) {
	in.MerchantID = strings.TrimSpace(in.MerchantID)
	in.ChallengeKey = strings.TrimSpace(in.ChallengeKey)
	if in.MerchantID == "" || in.ChallengeKey == "" {
		return nil, fmt.Errorf("%w: merchant_id and challenge_key are required", ErrInvalidRequest)
	}
	m, err := s.merchants.GetByID(ctx, in.MerchantID)
	if err != nil {
		return nil, fmt.Errorf("voiceauth: load merchant: %w", err)
	}
	if m == nil {
		return nil, ErrMerchantNotFound
	}

	t := &answerTurn{in: in, merchant: m, lang: merchantLanguage(in.Lang, m), res: &AnswerResult{}}
	entry, err := s.registry.LatestPendingDecision(ctx, m.ID, in.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("voiceauth: pending decision lookup: %w", err)
	}
	if entry == nil {
		// No scored attempt from this device is waiting for an answer.
		return s.holdForAgent(ctx, t, nil)
	}
	t.logID = entry.ID
	t.decision = entry.Decision
	t.res.TrustScore = entry.TrustScore

	if in.ChallengeKey == challenge.ConfirmKey {
		if t.decision != auditdomain.DecisionDirect && t.decision != auditdomain.DecisionChallenge {
			return s.holdForAgent(ctx, t, entry.ReasonCodes)
		}
		return s.confirm(ctx, t)
	}
	if t.decision != auditdomain.DecisionChallenge {
		return s.holdForAgent(ctx, t, entry.ReasonCodes)
	}
	return s.socialAnswer(ctx, t)
}

// holdForAgent answers a turn that the attempt's decision does not allow, or that has no scored
// attempt at all, by pointing at the merchant's pending validation request. It never grants access.
func (s *Service) holdForAgent(ctx context.Context, t *answerTurn, reasons []auditdomain.ReasonCode) (*AnswerResult, error) {
	id, err := s.escalate(ctx, t.merchant, t.logID, reasons)
	if err != nil {
		return nil, err
	}
	t.res.NextStep = persona.StepEscalate
	t.res.ValidationID = id
	t.res.Message = s.say(t.merchant, t.lang, persona.StepEscalate, persona.Vars{})
	decision := "none"
	if t.decision != "" {
		decision = string(t.decision)
	}
	s.emitChallenge(ctx, t, "escalated", map[string]any{"reason": "no_challenge_pending", "decision": decision})
	return t.res, nil
}

func (s *Service) confirm(ctx context.Context, t *answerTurn) (*AnswerResult, error) {
	confirmed, confidence := challenge.Confirm(t.in.AnswerSpoken, t.lang)
	if confirmed == nil || !*confirmed {
		t.res.NextStep = persona.StepRetry
		t.res.Message = s.say(t.merchant, t.lang, persona.StepRetry, persona.Vars{})
		outcome := "denied"
		if confirmed == nil {
			// Nothing recognised: ask the same question again.
			t.res.ChallengeKey = challenge.ConfirmKey
			outcome = "unclear"
		}
		s.emitChallenge(ctx, t, outcome, map[string]any{"confidence": confidence})
		return t.res, nil
	}

	if t.decision == auditdomain.DecisionDirect {
		token, err := s.grant(ctx, t.merchant, t.in.Fingerprint, t.logID, MethodConfirmation)
		if err != nil {
			return nil, err
		}
		t.res.NextStep = persona.StepDirect
		t.res.SessionToken = token
		t.res.Message = s.say(t.merchant, t.lang, persona.StepDirect, persona.Vars{})
		s.emitChallenge(ctx, t, "success", map[string]any{"confidence": confidence})
		return t.res, nil
	}

	key, question, ok := s.pickQuestion(ctx, t.merchant.ID, t.lang)
	if !ok {
		return s.escalateTurn(ctx, t, auditdomain.ReasonNoStoredAnswer, persona.StepEscalate)
	}
	t.res.NextStep = persona.StepAskSocialQuestion
	t.res.ChallengeKey = key
	t.res.Message = s.say(t.merchant, t.lang, persona.StepAskSocialQuestion, persona.Vars{Question: question})
	s.emitChallenge(ctx, t, "confirmed", map[string]any{"confidence": confidence})
	return t.res, nil
}

func (s *Service) socialAnswer(ctx context.Context, t *answerTurn) (*AnswerResult, error) {
	v, err := s.answers.Resolve(ctx, challenge.Attempt{
		MerchantID:    t.merchant.ID,
		Fingerprint:   t.in.Fingerprint,
		DecisionLogID: t.logID,
		ChallengeKey:  t.in.ChallengeKey,
		Transcript:    t.in.AnswerSpoken,
	})
	switch {
	case err == nil:
		// The evaluator already trusted the device and resolved the log.
		token, err := s.issue(t.merchant.ID, t.in.Fingerprint, t.logID, MethodSocialAnswer)
		if err != nil {
			return nil, err
		}
		t.res.NextStep = persona.StepDirect
		t.res.SessionToken = token
		t.res.Message = s.say(t.merchant, t.lang, persona.StepDirect, persona.Vars{})
		s.emitChallenge(ctx, t, "success", verdictMetadata(v))
		return t.res, nil
	case errors.Is(err, challenge.ErrWrongAnswer):
		s.emitChallenge(ctx, t, "failed", verdictMetadata(v))
		return s.escalateTurn(ctx, t, auditdomain.ReasonWrongAnswer, persona.StepWrongAnswer)
	case errors.Is(err, challenge.ErrNoStoredAnswer):
		return s.escalateTurn(ctx, t, auditdomain.ReasonNoStoredAnswer, persona.StepEscalate)
	default:
		return nil, fmt.Errorf("voiceauth: check answer: %w", err)
	}
}

func (s *Service) escalateTurn(ctx context.Context, t *answerTurn, reason auditdomain.ReasonCode, step persona.Step) (*AnswerResult, error) {
	id, err := s.escalate(ctx, t.merchant, t.logID, []auditdomain.ReasonCode{reason})
	if err != nil {
		return nil, err
	}
	t.res.NextStep = persona.StepEscalate
	t.res.ValidationID = id
	t.res.Message = s.say(t.merchant, t.lang, step, persona.Vars{})
	if reason == auditdomain.ReasonNoStoredAnswer {
		s.emitChallenge(ctx, t, "escalated", map[string]any{"reason": string(reason)})
	}
	return t.res, nil
}

func (s *Service) emitChallenge(ctx context.Context, t *answerTurn, outcome string, meta map[string]any) {
	ev := telemetry.NewEvent(telemetry.EventChallengeResolved).WithScore(t.res.TrustScore)
	ev.MerchantID = t.merchant.ID
	ev.DeviceFingerprint = t.in.Fingerprint
	ev.DecisionLogID = t.logID
	ev.ValidationID = t.res.ValidationID
	ev.Outcome = outcome
	if meta == nil {
		meta = map[string]any{}
	}
	meta["challenge_key"] = t.in.ChallengeKey
	ev.Metadata = meta
	s.emit(ctx, ev)
}

func verdictMetadata(v *challenge.Verdict) map[string]any {
	if v == nil {
		return nil
	}
	return map[string]any{"method": string(v.Method), "similarity": v.Score}
}
