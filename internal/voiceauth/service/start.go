package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	auditdomain "merchant-voice-auth/internal/audit/domain"
	"merchant-voice-auth/internal/capture"
	"merchant-voice-auth/internal/challenge"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/scoring"
	"merchant-voice-auth/internal/telemetry"
)

// StartInput is a spoken identification. Audio wins over PhoneSpoken when both are set.
type StartInput struct {
	Lang        string
	Fingerprint string
	PhoneSpoken string
	Audio       []byte
	Context     Context
}

// StartResult tells the client what to do next and what to say.
type StartResult struct {
	MerchantFound   bool
	NormalizedPhone string
	NextStep        persona.Step
	Message         string
	TrustScore      int
	MerchantID      string
	MerchantName    string
	Persona         string
	ReasonCodes     []string
	ChallengeKey    string
	ValidationID    string
	SessionToken    string
}

// Start captures the phone number, scores the attempt and routes it. A transcription failure or an
// unusable capture is answered with ESCALATE and a prompt to repeat the number, never DIRECT.
func (s *Service) Start(ctx context.Context, in StartInput) (*StartResult, error) {
	lang, err := requestLanguage(in.Lang)
	if err != nil {
		return nil, err
	}
	var heard *capture.Result
	switch {
	case len(in.Audio) > 0:
		heard, err = s.capture.Capture(ctx, in.Audio, lang)
	case strings.TrimSpace(in.PhoneSpoken) != "":
		heard, err = s.capture.FromText(in.PhoneSpoken, lang)
	default:
		return nil, fmt.Errorf("%w: phone_spoken or phone_audio_b64 is required", ErrInvalidRequest)
	}
	if errors.Is(err, capture.ErrTranscriptionUnavailable) {
		return s.unheard(ctx, in, lang, "", auditdomain.ReasonTranscriptionUnavailable), nil
	}
	if err != nil {
		return nil, err
	}
	if !heard.Complete() {
		return s.unheard(ctx, in, lang, heard.Phone, auditdomain.ReasonLowConfidence), nil
	}

	a, err := s.scorer.Evaluate(ctx, scoring.Input{
		Phone:       heard.Phone,
		Fingerprint: in.Fingerprint,
		Lat:         in.Context.Lat,
		Lng:         in.Context.Lng,
		Hour:        in.Context.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("voiceauth: score attempt: %w", err)
	}

	res := &StartResult{
		MerchantFound:   a.Merchant != nil,
		NormalizedPhone: heard.Phone,
		TrustScore:      a.Score,
	}
	reasons := append([]auditdomain.ReasonCode(nil), a.Reasons...)

	m := a.Merchant
	if m == nil {
		res.NextStep = persona.StepRegister
		res.Message = s.say(nil, lang, persona.StepRegister, persona.Vars{})
		s.finish(ctx, in, a, res, reasons)
		return res, nil
	}
	res.MerchantID = m.ID
	res.MerchantName = m.DisplayName
	res.Persona = m.Persona

	unsure := heard.Confidence < LowConfidence
	if unsure {
		reasons = append(reasons, auditdomain.ReasonLowConfidence)
	}

	switch {
	case a.Decision == auditdomain.DecisionDirect && !unsure:
		token, err := s.grant(ctx, m, in.Fingerprint, a.LogID, MethodDirect)
		if err != nil {
			return nil, err
		}
		res.NextStep = persona.StepDirect
		res.SessionToken = token
		res.Message = s.say(m, lang, persona.StepDirect, persona.Vars{})
	case a.Decision == auditdomain.DecisionDirect, a.Decision == auditdomain.DecisionChallenge && unsure:
		res.NextStep = persona.StepAskConfirmPhone
		res.ChallengeKey = challenge.ConfirmKey
		res.Message = s.say(m, lang, persona.StepAskConfirmPhone, persona.Vars{Phone: heard.Phone})
	case a.Decision == auditdomain.DecisionChallenge:
		key, question, ok := s.pickQuestion(ctx, m.ID, lang)
		if ok {
			res.NextStep = persona.StepAskSocialQuestion
			res.ChallengeKey = key
			res.Message = s.say(m, lang, persona.StepAskSocialQuestion, persona.Vars{Question: question})
			break
		}
		reasons = append(reasons, auditdomain.ReasonNoStoredAnswer)
		fallthrough
	default:
		id, err := s.escalate(ctx, m, a.LogID, reasons)
		if err != nil {
			return nil, err
		}
		res.NextStep = persona.StepEscalate
		res.ValidationID = id
		res.Message = s.say(m, lang, persona.StepEscalate, persona.Vars{})
	}
	s.finish(ctx, in, a, res, reasons)
	return res, nil
}

func (s *Service) unheard(ctx context.Context, in StartInput, lang, phone string, reason auditdomain.ReasonCode) *StartResult {
	s.logger.Warn("voiceauth: phone number not captured", "lang", lang, "reason", reason)
	ev := telemetry.NewEvent(telemetry.EventDecisionMade).WithScore(0)
	ev.DeviceFingerprint = in.Fingerprint
	ev.Decision = string(auditdomain.DecisionEscalate)
	ev.ReasonCodes = []string{string(reason)}
	s.emit(ctx, ev)
	return &StartResult{
		NormalizedPhone: phone,
		NextStep:        persona.StepEscalate,
		Message:         s.say(nil, lang, persona.StepTranscriptionUnavailable, persona.Vars{}),
		ReasonCodes:     []string{string(reason)},
	}
}

// finish sets the reason codes and emits decision_made.
func (s *Service) finish(ctx context.Context, in StartInput, a *scoring.Assessment, res *StartResult, reasons []auditdomain.ReasonCode) {
	res.ReasonCodes = reasonStrings(reasons)
	ev := telemetry.NewEvent(telemetry.EventDecisionMade).WithScore(a.Score)
	ev.MerchantID = res.MerchantID
	ev.DeviceFingerprint = in.Fingerprint
	ev.DecisionLogID = a.LogID
	ev.ValidationID = res.ValidationID
	ev.Decision = string(a.Decision)
	ev.ReasonCodes = res.ReasonCodes
	ev.Metadata = map[string]any{"next_step": string(res.NextStep), "hour": a.Hour}
	s.emit(ctx, ev)
}
