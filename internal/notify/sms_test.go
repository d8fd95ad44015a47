package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	client := NewSMSLocalClient("api-key", "", "")
	if client.BaseURL != "https://www.smslocal.com/dev/bulkV2" {
		t.Errorf("BaseURL = %q, want default", client.BaseURL)
	}
	if client.HTTPClient == nil || client.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("HTTPClient = %+v, want timeout %v", client.HTTPClient, defaultTimeout)
	}
}

func TestSMSLocalClient_SendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["numbers"] != "2250700000001" {
			t.Errorf("numbers = %v, want digits without +", body["numbers"])
		}
		if body["sender_id"] != "VOICE" {
			t.Errorf("sender_id = %v", body["sender_id"])
		}
		if !strings.Contains(body["message"].(string), "654321") {
			t.Errorf("message = %v", body["message"])
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewSMSLocalClient("k", server.URL, "VOICE")
	if err := c.SendText(context.Background(), "+2250700000001", "code 654321"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
}

func TestSMSLocalClient_NoAPIKey(t *testing.T) {
	if err := NewSMSLocalClient("", "", "").SendText(context.Background(), "1", "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSMSLocalClient_DispatchPartialFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewSMSLocalClient("k", server.URL, "")
	out, err := c.Dispatch(context.Background(),
		[]Recipient{{Phone: "+1"}, {Phone: "+2"}, {UserID: "no-phone"}}, Message{Body: "hello"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Delivered != 1 {
		t.Errorf("Delivered = %d, want 1", out.Delivered)
	}
}
