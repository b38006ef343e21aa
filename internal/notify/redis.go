// Package notify publishes domain signals for out-of-process consumers
// (dashboard, purchasing alerts).
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/gearbox-erp/gearbox/internal/parts"
)

// Metrics counts published signals. May be nil.
type Metrics interface {
	ObserveLowStock()
}

// RedisPublisher pushes low-stock signals onto a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
	metrics Metrics
}

// NewRedisPublisher constructs a publisher for the given channel.
func NewRedisPublisher(client *redis.Client, channel string, metrics Metrics) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel, metrics: metrics}
}

// PublishLowStock serialises the event and publishes it. Subscribers are
// best-effort consumers; the reservation flow never fails on publish errors.
func (p *RedisPublisher) PublishLowStock(ctx context.Context, evt parts.LowStockEvent) error {
	if p == nil || p.client == nil {
		return errors.New("notify: redis publisher not initialised")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal low stock event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: publish low stock event: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ObserveLowStock()
	}
	return nil
}
