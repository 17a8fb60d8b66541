package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"geno-backend/internal/models"
)

// EventPublisher fans exchange progress out to session subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, sessionID string, msg models.WSMessage) error
}

// SessionChannel is the Redis pub/sub channel carrying a session's events.
func SessionChannel(sessionID string) string {
	return "session_events:" + sessionID
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

// Publish sends a WebSocket update via Redis pub/sub
func (p *RedisPublisher) Publish(ctx context.Context, sessionID string, msg models.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.redis.Publish(ctx, SessionChannel(sessionID), data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}
