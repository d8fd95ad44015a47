// Package capture turns a spoken phone number into a canonical phone string.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"merchant-voice-auth/internal/language"
)

var (
	ErrUnsupportedLanguage      = errors.New("capture: unsupported language")
	ErrEmptyAudio               = errors.New("capture: empty audio")
	ErrAudioTooShort            = errors.New("capture: audio too short")
	ErrTranscriptionUnavailable = errors.New("capture: transcription unavailable")
)

// MinAudioBytes is the smallest payload worth sending to the transcriber.
const MinAudioBytes = 1024

// MinDigits is the shortest digit string treated as a phone number.
const MinDigits = 8

// Transcriber converts audio in the given language to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, lang string) (string, error)
}

// Result is a captured phone number.
type Result struct {
	Transcript string
	Digits     string
	Phone      string // canonical "+<digits>", empty when no digits were heard
	Confidence float64
}

// Complete reports whether enough digits were heard to look the phone up.
func (r *Result) Complete() bool {
	return r != nil && len(r.Digits) >= MinDigits
}

// Bridge runs transcription then extraction.
type Bridge struct {
	transcriber Transcriber
	countryCode string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewBridge returns a Bridge. transcriber may be nil; then only text input is accepted.
func NewBridge(transcriber Transcriber, countryCode string, timeout time.Duration, logger *slog.Logger) *Bridge {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{transcriber: transcriber, countryCode: countryCode, timeout: timeout, logger: logger}
}

// CountryCode returns the calling code applied by Normalize.
func (b *Bridge) CountryCode() string { return b.countryCode }

// Normalize applies NormalizePhone with the bridge's country code.
func (b *Bridge) Normalize(raw string) string {
	return NormalizePhone(raw, b.countryCode)
}

// Capture transcribes audio and extracts the phone number from the transcript.
func (b *Bridge) Capture(ctx context.Context, audio []byte, lang string) (*Result, error) {
	if !language.Supported(lang) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(audio) < MinAudioBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrAudioTooShort, len(audio))
	}
	if b.transcriber == nil {
		return nil, fmt.Errorf("%w: no transcriber configured", ErrTranscriptionUnavailable)
	}
	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	text, err := b.transcriber.Transcribe(callCtx, audio, lang)
	if err != nil {
		b.logger.Warn("capture: transcription failed", "lang", lang, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrTranscriptionUnavailable, err)
	}
	return b.FromText(text, lang)
}

// FromText extracts the phone number from an already transcribed utterance.
func (b *Bridge) FromText(text, lang string) (*Result, error) {
	if !language.Supported(lang) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}
	ex := Extract(text, lang)
	return &Result{
		Transcript: text,
		Digits:     ex.Digits,
		Phone:      b.Normalize(ex.Digits),
		Confidence: ex.Confidence,
	}, nil
}
