package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atelier-market/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// EventPublisher receives every committed ledger batch.
type EventPublisher interface {
	Publish(ctx context.Context, entries []models.LedgerEntry) error
}

// LedgerEvent is the queued message for one committed batch.
type LedgerEvent struct {
	BatchID     string               `json:"batchId"`
	CommittedAt time.Time            `json:"committedAt"`
	Entries     []models.LedgerEntry `json:"entries"`
}

func NewLedgerEvent(entries []models.LedgerEntry) LedgerEvent {
	ev := LedgerEvent{Entries: entries}
	if len(entries) > 0 {
		ev.BatchID = entries[0].BatchID
		ev.CommittedAt = entries[len(entries)-1].CreatedAt
	}
	return ev
}

// RedisPublisher appends events to a Redis list consumed by notification
// and search workers.
type RedisPublisher struct {
	redis *redis.Client
	queue string
}

func NewRedisPublisher(client *redis.Client, queue string) EventPublisher {
	if client == nil {
		return NopPublisher{}
	}
	return &RedisPublisher{redis: client, queue: queue}
}

func (p *RedisPublisher) Publish(ctx context.Context, entries []models.LedgerEntry) error {
	data, err := json.Marshal(NewLedgerEvent(entries))
	if err != nil {
		return err
	}
	return p.redis.RPush(ctx, p.queue, string(data)).Err()
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []models.LedgerEntry) error { return nil }
