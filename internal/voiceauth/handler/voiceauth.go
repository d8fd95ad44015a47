package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"merchant-voice-auth/internal/capture"
	"merchant-voice-auth/internal/escalation"
	"merchant-voice-auth/internal/persona"
	"merchant-voice-auth/internal/voiceauth/service"
)

// AuthService runs the voice authentication steps.
type AuthService interface {
	Start(ctx context.Context, in service.StartInput) (*service.StartResult, error)
	Answer(ctx context.Context, in service.AnswerInput) (*service.AnswerResult, error)
}

type contextDTO struct {
	Lat  *float64 `json:"lat,omitempty"`
	Lng  *float64 `json:"lng,omitempty"`
	Hour *int     `json:"hour,omitempty"`
}

func (c contextDTO) toService() service.Context {
	return service.Context{Lat: c.Lat, Lng: c.Lng, Hour: c.Hour}
}

type startRequest struct {
	Lang              string     `json:"lang"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	PhoneSpoken       string     `json:"phone_spoken"`
	PhoneAudioB64     string     `json:"phone_audio_b64,omitempty"`
	Context           contextDTO `json:"context"`
}

type startResponse struct {
	MerchantFound       bool     `json:"merchant_found"`
	NormalizedPhoneE164 string   `json:"normalized_phone_e164"`
	NextStep            string   `json:"next_step"`
	MessageTTS          string   `json:"message_tts"`
	TrustScore          int      `json:"trust_score"`
	MerchantID          string   `json:"merchant_id,omitempty"`
	MerchantName        string   `json:"merchant_name,omitempty"`
	Persona             string   `json:"persona,omitempty"`
	ReasonCodes         []string `json:"reason_codes"`
	ChallengeKey        string   `json:"challenge_key,omitempty"`
	ValidationID        string   `json:"validation_id,omitempty"`
	SessionToken        string   `json:"session_token,omitempty"`
}

type voiceErrorResponse struct {
	Error      string `json:"error"`
	NextStep   string `json:"next_step"`
	MessageTTS string `json:"message_tts"`
}

type answerRequest struct {
	MerchantID        string     `json:"merchant_id"`
	ChallengeKey      string     `json:"challenge_key"`
	AnswerSpoken      string     `json:"answer_spoken"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	Context           contextDTO `json:"context"`
	Lang              string     `json:"lang,omitempty"`
}

type answerResponse struct {
	NextStep     string `json:"next_step"`
	TrustScore   int    `json:"trust_score"`
	MessageTTS   string `json:"message_tts"`
	SessionToken string `json:"session_token,omitempty"`
	ChallengeKey string `json:"challenge_key,omitempty"`
	ValidationID string `json:"validation_id,omitempty"`
}

func (h *handlers) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failVoice(w, r, req.Lang, err)
		return
	}
	in := service.StartInput{
		Lang:        req.Lang,
		Fingerprint: req.DeviceFingerprint,
		PhoneSpoken: req.PhoneSpoken,
		Context:     req.Context.toService(),
	}
	if req.PhoneAudioB64 != "" {
		audio, err := base64.StdEncoding.DecodeString(req.PhoneAudioB64)
		if err != nil {
			h.failVoice(w, r, req.Lang, fmt.Errorf("%w: phone_audio_b64: %v", service.ErrInvalidRequest, err))
			return
		}
		in.Audio = audio
	}
	res, err := h.auth.Start(r.Context(), in)
	if err != nil {
		h.failVoice(w, r, req.Lang, err)
		return
	}
	reasons := res.ReasonCodes
	if reasons == nil {
		reasons = []string{}
	}
	respondJSON(w, http.StatusOK, startResponse{
		MerchantFound:       res.MerchantFound,
		NormalizedPhoneE164: res.NormalizedPhone,
		NextStep:            string(res.NextStep),
		MessageTTS:          res.Message,
		TrustScore:          res.TrustScore,
		MerchantID:          res.MerchantID,
		MerchantName:        res.MerchantName,
		Persona:             res.Persona,
		ReasonCodes:         reasons,
		ChallengeKey:        res.ChallengeKey,
		ValidationID:        res.ValidationID,
		SessionToken:        res.SessionToken,
	})
}

func (h *handlers) answer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.failVoice(w, r, req.Lang, err)
		return
	}
	res, err := h.auth.Answer(r.Context(), service.AnswerInput{
		MerchantID:   req.MerchantID,
		ChallengeKey: req.ChallengeKey,
		AnswerSpoken: req.AnswerSpoken,
		Fingerprint:  req.DeviceFingerprint,
		Lang:         req.Lang,
	})
	if err != nil {
		h.failVoice(w, r, req.Lang, err)
		return
	}
	respondJSON(w, http.StatusOK, answerResponse{
		NextStep:     string(res.NextStep),
		TrustScore:   res.TrustScore,
		MessageTTS:   res.Message,
		SessionToken: res.SessionToken,
		ChallengeKey: res.ChallengeKey,
		ValidationID: res.ValidationID,
	})
}

// fail maps an error to a status and a machine-readable code. Internal details are only logged.
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := h.classify(r, err)
	writeError(w, status, code)
}

// failVoice answers a failed voice step with the error code plus a prompt and a next step the
// app can act on.
func (h *handlers) failVoice(w http.ResponseWriter, r *http.Request, lang string, err error) {
	status, code := h.classify(r, err)
	step := persona.StepRetry
	if code == "MERCHANT_NOT_FOUND" {
		step = persona.StepRegister
	}
	respondJSON(w, status, voiceErrorResponse{
		Error:      code,
		NextStep:   string(step),
		MessageTTS: h.catalog.Message("", lang, step, persona.Vars{}),
	})
}

func (h *handlers) classify(r *http.Request, err error) (int, string) {
	switch {
	case errors.Is(err, errBadBody), errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, capture.ErrUnsupportedLanguage):
		return http.StatusBadRequest, "UNSUPPORTED_LANGUAGE"
	case errors.Is(err, capture.ErrEmptyAudio):
		return http.StatusBadRequest, "EMPTY_AUDIO"
	case errors.Is(err, capture.ErrAudioTooShort):
		return http.StatusBadRequest, "AUDIO_TOO_SHORT"
	case errors.Is(err, service.ErrMerchantNotFound):
		return http.StatusNotFound, "MERCHANT_NOT_FOUND"
	case errors.Is(err, escalation.ErrValidationNotFoundOrExpired):
		return http.StatusNotFound, "VALIDATION_NOT_FOUND_OR_EXPIRED"
	case errors.Is(err, escalation.ErrStoreWriteFailed):
		h.logger.Error("store write failed", "path", r.URL.Path, "error", err)
		return http.StatusInternalServerError, "STORE_WRITE_FAILED"
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		return http.StatusInternalServerError, "internal error"
	}
}
