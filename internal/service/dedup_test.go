package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventDeduper(t *testing.T) {
	ctx := context.Background()

	t.Run("second delivery is a duplicate", func(t *testing.T) {
		d := NewMemoryEventDeduper(10 * time.Minute)

		assert.True(t, d.FirstDelivery(ctx, "01H-event"))
		assert.False(t, d.FirstDelivery(ctx, "01H-event"))
		assert.True(t, d.FirstDelivery(ctx, "01H-other"))
	})

	t.Run("empty id is always new", func(t *testing.T) {
		d := NewMemoryEventDeduper(10 * time.Minute)

		assert.True(t, d.FirstDelivery(ctx, ""))
		assert.True(t, d.FirstDelivery(ctx, ""))
	})

	t.Run("expires after the window", func(t *testing.T) {
		d := NewMemoryEventDeduper(time.Minute)
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		d.now = func() time.Time { return now }

		assert.True(t, d.FirstDelivery(ctx, "e1"))
		now = now.Add(2 * time.Minute)

		count, err := d.DeleteExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
		assert.True(t, d.FirstDelivery(ctx, "e1"))
	})
}

func TestRedisEventDeduper(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()
	d := NewRedisEventDeduper(client, time.Minute)

	assert.True(t, d.FirstDelivery(ctx, "01H-event"))
	assert.False(t, d.FirstDelivery(ctx, "01H-event"))

	ttl, err := client.TTL(ctx, "webhook:event:01H-event").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisEventDeduper_GracefulFailure(t *testing.T) {
	invalidClient := redis.NewClient(&redis.Options{Addr: "localhost:9999"})
	defer invalidClient.Close()

	d := NewRedisEventDeduper(invalidClient, time.Minute)
	assert.True(t, d.FirstDelivery(context.Background(), "e1"))
	assert.True(t, d.FirstDelivery(context.Background(), "e1"))
}
