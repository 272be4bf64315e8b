package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/line-agent-relay/internal/redis"
)

// EventDeduper recognizes webhook events LINE has already delivered.
type EventDeduper interface {
	// FirstDelivery records eventID and reports whether it was new.
	FirstDelivery(ctx context.Context, eventID string) bool
}

type RedisEventDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisEventDeduper(client *redis.Client, ttl time.Duration) *RedisEventDeduper {
	return &RedisEventDeduper{client: client, ttl: ttl}
}

// FirstDelivery treats events as new when Redis is unreachable.
func (d *RedisEventDeduper) FirstDelivery(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return true
	}

	ok, err := d.client.SetNX(ctx, redisclient.WebhookEventKey(eventID), 1, d.ttl).Result()
	if err != nil {
		log.Warn().Err(err).Str("eventId", eventID).Msg("webhook dedupe check failed, processing event")
		return true
	}
	return ok
}

type MemoryEventDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryEventDeduper(ttl time.Duration) *MemoryEventDeduper {
	return &MemoryEventDeduper{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

func (d *MemoryEventDeduper) FirstDelivery(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return true
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if seenAt, ok := d.seen[eventID]; ok && now.Sub(seenAt) < d.ttl {
		return false
	}
	d.seen[eventID] = now
	return true
}

// DeleteExpired forgets events older than the dedupe window.
func (d *MemoryEventDeduper) DeleteExpired(ctx context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var count int64
	for id, seenAt := range d.seen {
		if now.Sub(seenAt) >= d.ttl {
			delete(d.seen, id)
			count++
		}
	}
	return count, nil
}
