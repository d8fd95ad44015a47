package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SMSLocalClient sends transactional SMS via the SMS Local API.
type SMSLocalClient struct {
	APIKey     string
	BaseURL    string
	Sender     string
	HTTPClient *http.Client
}

// NewSMSLocalClient returns a client that uses the given API key and optional base URL/sender.
func NewSMSLocalClient(apiKey, baseURL, sender string) *SMSLocalClient {
	if baseURL == "" {
		baseURL = "https://www.smslocal.com/dev/bulkV2"
	}
	return &SMSLocalClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		Sender:     sender,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

// SendText sends text to phone. The leading "+" of a canonical phone is dropped.
func (c *SMSLocalClient) SendText(ctx context.Context, phone, text string) error {
	if c.APIKey == "" {
		return ErrNotConfigured
	}
	body := map[string]any{
		"route":   "q",
		"numbers": strings.TrimPrefix(phone, "+"),
		"message": text,
	}
	if c.Sender != "" {
		body["sender_id"] = c.Sender
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.APIKey)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("notify: sms failed status=%d body=%s", resp.StatusCode, string(b))
	}
	return nil
}

// Dispatch texts every recipient with a phone. It fails only when no message went out.
func (c *SMSLocalClient) Dispatch(ctx context.Context, to []Recipient, msg Message) (Outcome, error) {
	text := msg.Body
	if msg.Title != "" {
		text = msg.Title + ": " + msg.Body
	}
	out := Outcome{Channel: "sms"}
	var errs []error
	for _, r := range to {
		if r.Phone == "" {
			continue
		}
		if err := c.SendText(ctx, r.Phone, text); err != nil {
			errs = append(errs, err)
			continue
		}
		out.Delivered++
	}
	if out.Delivered == 0 && len(errs) > 0 {
		return out, errors.Join(errs...)
	}
	return out, nil
}
