package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	redisclient "github.com/openclaw/line-agent-relay/internal/redis"
)

const appendTurnMaxRetries = 10

// RedisSessionStore keeps each session as a JSON document whose expiry is
// pushed back by ttl on every write.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (s *RedisSessionStore) CreateSession(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	if err := validateSessionArgs(appName, userID, sessionID); err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:        sessionID,
		AppName:   appName,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal session: %w", err)
	}

	key := redisclient.AgentSessionKey(appName, userID, sessionID)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return session, nil
}

func (s *RedisSessionStore) GetSession(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	key := redisclient.AgentSessionKey(appName, userID, sessionID)

	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.SessionNotFound(appName, userID, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// AppendTurn adds contents with optimistic locking. A concurrent write to the
// same session aborts the transaction, which is then replayed on the fresh
// value up to appendTurnMaxRetries times.
func (s *RedisSessionStore) AppendTurn(ctx context.Context, session *Session, contents ...Content) error {
	key := redisclient.AgentSessionKey(session.AppName, session.UserID, session.ID)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperrors.SessionNotFound(session.AppName, session.UserID, session.ID)
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}

		var stored Session
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		stored.History = append(stored.History, contents...)
		stored.UpdatedAt = time.Now()

		data, err := json.Marshal(&stored)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < appendTurnMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("append turn: %w", redis.TxFailedErr)
}

func (s *RedisSessionStore) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	return s.client.Del(ctx, redisclient.AgentSessionKey(appName, userID, sessionID)).Err()
}
