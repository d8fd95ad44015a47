// Package speech calls the speech-to-text service.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// errUnauthorized marks a 401 so Transcribe can retry with a fresh token.
var errUnauthorized = errors.New("speech: unauthorized")

// HTTPTranscriber sends audio to a speech-to-text HTTP API authenticated with client credentials.
type HTTPTranscriber struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	tokens *TokenCache
}

// NewHTTPTranscriber returns a transcriber for baseURL. Tokens come from baseURL/oauth/token.
func NewHTTPTranscriber(baseURL, clientID, clientSecret string) *HTTPTranscriber {
	t := &HTTPTranscriber{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient:   &http.Client{Timeout: defaultTimeout},
	}
	t.tokens = NewTokenCache(t.fetchToken)
	return t
}

type transcribeRequest struct {
	AudioB64 string `json:"audio_b64"`
	Language string `json:"language"`
}

type transcribeResponse struct {
	Text string `json:"text"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Transcribe returns the text spoken in audio. A rejected token is refreshed and the call retried once.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, lang string) (string, error) {
	text, err := t.transcribeOnce(ctx, audio, lang)
	if errors.Is(err, errUnauthorized) {
		t.tokens.Invalidate()
		text, err = t.transcribeOnce(ctx, audio, lang)
	}
	return text, err
}

func (t *HTTPTranscriber) transcribeOnce(ctx context.Context, audio []byte, lang string) (string, error) {
	token, err := t.tokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("speech: token: %w", err)
	}
	raw, err := json.Marshal(transcribeRequest{AudioB64: base64.StdEncoding.EncodeToString(audio), Language: lang})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/v1/transcribe", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return "", errUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("speech: transcribe failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("speech: decode transcript: %w", err)
	}
	return out.Text, nil
}

func (t *HTTPTranscriber) fetchToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {t.ClientID},
		"client_secret": {t.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := t.HTTPClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", time.Time{}, fmt.Errorf("speech: token request failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", time.Time{}, err
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return tr.AccessToken, time.Now().Add(ttl), nil
}
