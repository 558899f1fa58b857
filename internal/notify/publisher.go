// Package notify broadcasts tree change events so frontends can
// invalidate their cached section trees.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type event struct {
	Event string   `json:"event"`
	IDs   []string `json:"ids"`
	At    string   `json:"at"`
}

// Publisher emits tree_changed events on a redis pub/sub channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) TreeChanged(ctx context.Context, ids []string) error {
	payload, err := json.Marshal(event{
		Event: "tree_changed",
		IDs:   ids,
		At:    time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal tree event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish tree event: %w", err)
	}
	return nil
}

// Noop satisfies the notifier contract when redis is not configured.
type Noop struct{}

func (Noop) TreeChanged(context.Context, []string) error {
	return nil
}
