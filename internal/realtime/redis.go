package realtime

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisBus publishes updates on a Redis channel and fans received ones out to subscribers, so every
// server instance sees changes made by any other.
type RedisBus struct {
	*hub
	client *redis.Client
}

// NewRedisBus returns a bus on client. Call Run to start receiving.
func NewRedisBus(client *redis.Client, lookup Lookup, logger *slog.Logger) *RedisBus {
	return &RedisBus{hub: newHub(lookup, logger), client: client}
}

// Publish implements Publisher.
func (b *RedisBus) Publish(ctx context.Context, u Update) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, Channel, raw).Err()
}

// Run receives until ctx is done.
func (b *RedisBus) Run(ctx context.Context) error {
	ps := b.client.Subscribe(ctx, Channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return err
	}
	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.deliverPayload(msg.Payload)
		}
	}
}
