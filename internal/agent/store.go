package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
)

// SessionStore owns agent sessions. GetSession and AppendTurn return a
// SESSION_NOT_FOUND app error for ids that were never created, were deleted
// or have expired.
//
// CreateSession with an id that already exists replaces the stored session
// with an empty one.
type SessionStore interface {
	CreateSession(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	GetSession(ctx context.Context, appName, userID, sessionID string) (*Session, error)
	AppendTurn(ctx context.Context, session *Session, contents ...Content) error
	DeleteSession(ctx context.Context, appName, userID, sessionID string) error
}

func sessionKey(appName, userID, sessionID string) string {
	return appName + ":" + userID + ":" + sessionID
}

func validateSessionArgs(appName, userID, sessionID string) error {
	switch {
	case strings.TrimSpace(appName) == "":
		return apperrors.MissingRequired("appName")
	case strings.TrimSpace(userID) == "":
		return apperrors.MissingRequired("userId")
	case strings.TrimSpace(sessionID) == "":
		return apperrors.MissingRequired("sessionId")
	}
	return nil
}

// MemorySessionStore keeps sessions in process memory. Sessions idle for
// longer than ttl are treated as gone; ttl <= 0 keeps them forever.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemorySessionStore) CreateSession(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	if err := validateSessionArgs(appName, userID, sessionID); err != nil {
		return nil, err
	}

	now := s.now()
	session := &Session{
		ID:        sessionID,
		AppName:   appName,
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	_, replaced := s.sessions[sessionKey(appName, userID, sessionID)]
	s.sessions[sessionKey(appName, userID, sessionID)] = session
	s.mu.Unlock()

	if replaced {
		log.Debug().Str("sessionId", sessionID).Msg("existing agent session replaced")
	}

	return cloneSession(session), nil
}

func (s *MemorySessionStore) GetSession(ctx context.Context, appName, userID, sessionID string) (*Session, error) {
	key := sessionKey(appName, userID, sessionID)

	s.mu.RLock()
	session, ok := s.sessions[key]
	s.mu.RUnlock()

	if !ok {
		return nil, apperrors.SessionNotFound(appName, userID, sessionID)
	}

	if s.expired(session) {
		s.mu.Lock()
		if current, ok := s.sessions[key]; ok && s.expired(current) {
			delete(s.sessions, key)
		}
		s.mu.Unlock()
		return nil, apperrors.SessionNotFound(appName, userID, sessionID)
	}

	return cloneSession(session), nil
}

func (s *MemorySessionStore) AppendTurn(ctx context.Context, session *Session, contents ...Content) error {
	key := sessionKey(session.AppName, session.UserID, session.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[key]
	if !ok || s.expired(stored) {
		return apperrors.SessionNotFound(session.AppName, session.UserID, session.ID)
	}

	stored.History = append(stored.History, contents...)
	stored.UpdatedAt = s.now()
	return nil
}

func (s *MemorySessionStore) DeleteSession(ctx context.Context, appName, userID, sessionID string) error {
	s.mu.Lock()
	delete(s.sessions, sessionKey(appName, userID, sessionID))
	s.mu.Unlock()
	return nil
}

// DeleteExpired drops idle sessions and returns how many were removed.
func (s *MemorySessionStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for key, session := range s.sessions {
		if s.expired(session) {
			delete(s.sessions, key)
			count++
		}
	}
	return count, nil
}

func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemorySessionStore) expired(session *Session) bool {
	return s.ttl > 0 && s.now().Sub(session.UpdatedAt) > s.ttl
}

func cloneSession(s *Session) *Session {
	c := *s
	c.History = append([]Content(nil), s.History...)
	return &c
}
