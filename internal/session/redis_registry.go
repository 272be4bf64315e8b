package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/openclaw/line-agent-relay/internal/agent"
	redisclient "github.com/openclaw/line-agent-relay/internal/redis"
	"github.com/openclaw/line-agent-relay/internal/util"
)

// RedisRegistry keeps the user to session mapping in a Redis hash so that
// several relay instances share it.
type RedisRegistry struct {
	appName string
	key     string
	client  *redis.Client
	store   agent.SessionStore
	group   singleflight.Group
}

func NewRedisRegistry(appName string, client *redis.Client, store agent.SessionStore) *RedisRegistry {
	return &RedisRegistry{
		appName: appName,
		key:     redisclient.RegistryKey(appName),
		client:  client,
		store:   store,
	}
}

func (r *RedisRegistry) ResolveOrCreate(ctx context.Context, userID string) (string, error) {
	sessionID, err := r.client.HGet(ctx, r.key, userID).Result()
	if err == nil {
		log.Debug().
			Str("appName", r.appName).
			Str("userId", util.MaskUserID(userID)).
			Str("sessionId", sessionID).
			Msg("using existing session")
		return sessionID, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("lookup session: %w", err)
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		sessionID, err := createSession(ctx, r.store, r.appName, userID)
		if err != nil {
			return "", err
		}
		if err := r.client.HSet(ctx, r.key, userID, sessionID).Err(); err != nil {
			return "", fmt.Errorf("store session mapping: %w", err)
		}
		return sessionID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *RedisRegistry) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.HDel(ctx, r.key, userID).Err(); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	return nil
}
