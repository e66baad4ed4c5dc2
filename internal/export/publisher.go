package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ErrNoSnapshot is returned by Fetch when nothing was published yet
var ErrNoSnapshot = errors.New("no snapshot published")

// Publisher stores snapshots in redis and announces them on a channel
type Publisher struct {
	client  *redis.Client
	key     string
	channel string
}

// PublisherConfig holds configuration for the Publisher
type PublisherConfig struct {
	// Client is the Redis client to use
	Client *redis.Client
	// Key holds the latest snapshot
	Key string
	// Channel receives the snapshot ID after each publish
	Channel string
}

// NewPublisher creates a publisher
func NewPublisher(config PublisherConfig) (*Publisher, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Key == "" {
		return nil, errors.New("snapshot key is required")
	}
	if config.Channel == "" {
		return nil, errors.New("notification channel is required")
	}
	return &Publisher{client: config.Client, key: config.Key, channel: config.Channel}, nil
}

// Publish stores the document under the snapshot key and publishes its ID.
// It returns the number of subscribers that received the notification.
func (p *Publisher) Publish(ctx context.Context, doc *Document) (int64, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.key, payload, 0)
	published := pipe.Publish(ctx, p.channel, doc.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return published.Val(), nil
}

// Fetch reads the latest published snapshot
func (p *Publisher) Fetch(ctx context.Context) (*Document, error) {
	payload, err := p.client.Get(ctx, p.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &doc, nil
}

// Subscribe returns a subscription to snapshot notifications
func (p *Publisher) Subscribe(ctx context.Context) *redis.PubSub {
	return p.client.Subscribe(ctx, p.channel)
}
