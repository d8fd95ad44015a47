package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushClient_Dispatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "push-key" {
			t.Errorf("Authorization = %q, want push-key", r.Header.Get("Authorization"))
		}
		var body pushRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(body.UserIDs) != 2 || body.Title != "Validation" || body.Data["code"] != "123456" {
			t.Errorf("body = %+v", body)
		}
		_ = json.NewEncoder(w).Encode(pushResponse{Delivered: 2})
	}))
	defer server.Close()

	c := NewPushClient(server.URL, "push-key")
	out, err := c.Dispatch(context.Background(),
		[]Recipient{{UserID: "a-1"}, {UserID: "a-2"}, {Phone: "+2250700000000"}},
		Message{Title: "Validation", Body: "Awa Traoré 123456", Data: map[string]string{"code": "123456"}})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if out.Delivered != 2 || out.Channel != "push" {
		t.Errorf("outcome = %+v", out)
	}
}

func TestPushClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewPushClient(server.URL, "").Dispatch(context.Background(), []Recipient{{UserID: "a"}}, Message{}); err == nil {
		t.Error("expected error on 502")
	}
	if _, err := NewPushClient("", "").Dispatch(context.Background(), []Recipient{{UserID: "a"}}, Message{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v, want ErrNotConfigured", err)
	}
}
