// Package session maps LINE users to the agent session that holds their
// conversation. The agent's session store remains the source of truth; the
// registry only remembers which id to ask it for.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/openclaw/line-agent-relay/internal/agent"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const sessionIDPrefix = "session_"

// Registry resolves the active agent session id for a user.
type Registry interface {
	// ResolveOrCreate returns the cached session id for userID, or creates
	// one in the agent's session store and caches it.
	ResolveOrCreate(ctx context.Context, userID string) (string, error)
	// Invalidate forgets the mapping for userID. It is a no-op for unknown
	// users.
	Invalidate(ctx context.Context, userID string) error
}

// SessionIDFor is the deterministic session id of a user.
func SessionIDFor(userID string) string {
	return sessionIDPrefix + userID
}

// MemoryRegistry is a process-lifetime map with no eviction. Concurrent
// misses for the same user create the session once.
type MemoryRegistry struct {
	appName string
	store   agent.SessionStore
	group   singleflight.Group

	mu       sync.RWMutex
	sessions map[string]string
}

func NewMemoryRegistry(appName string, store agent.SessionStore) *MemoryRegistry {
	return &MemoryRegistry{
		appName:  appName,
		store:    store,
		sessions: make(map[string]string),
	}
}

func (r *MemoryRegistry) ResolveOrCreate(ctx context.Context, userID string) (string, error) {
	if sessionID, ok := r.lookup(userID); ok {
		log.Debug().
			Str("appName", r.appName).
			Str("userId", util.MaskUserID(userID)).
			Str("sessionId", sessionID).
			Msg("using existing session")
		return sessionID, nil
	}

	v, err, _ := r.group.Do(userID, func() (any, error) {
		if sessionID, ok := r.lookup(userID); ok {
			return sessionID, nil
		}

		sessionID, err := createSession(ctx, r.store, r.appName, userID)
		if err != nil {
			return "", err
		}

		r.mu.Lock()
		r.sessions[userID] = sessionID
		r.mu.Unlock()
		return sessionID, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *MemoryRegistry) Invalidate(ctx context.Context, userID string) error {
	r.mu.Lock()
	delete(r.sessions, userID)
	r.mu.Unlock()
	return nil
}

// Len reports the number of cached users.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *MemoryRegistry) lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessionID, ok := r.sessions[userID]
	return sessionID, ok
}

func createSession(ctx context.Context, store agent.SessionStore, appName, userID string) (string, error) {
	sessionID := SessionIDFor(userID)

	session, err := store.CreateSession(ctx, appName, userID, sessionID)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	log.Info().
		Str("appName", appName).
		Str("userId", util.MaskUserID(userID)).
		Str("sessionId", session.ID).
		Msg("new session created")

	return sessionID, nil
}
