package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"merchant-voice-auth/internal/validation/domain"
)

func TestRedisBus_PublishUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	bus := NewRedisBus(client, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := bus.Publish(ctx, Update{RequestID: "v-1", Result: domain.ResultApproved}); err == nil {
		t.Error("Publish to an unreachable server should fail")
	}
}

func TestRedisBus_DeliversReceivedPayloads(t *testing.T) {
	bus := NewRedisBus(nil, nil, nil)
	rec := newRecorder()
	unsubscribe, err := bus.Subscribe(context.Background(), "v-1", rec.on)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer unsubscribe()
	bus.deliverPayload(`{"id":"v-1","result":"approved"}`)
	rec.wait(t, domain.ResultApproved)
}
