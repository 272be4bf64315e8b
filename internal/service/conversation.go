package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/agent"
	"github.com/openclaw/line-agent-relay/internal/session"
	"github.com/openclaw/line-agent-relay/internal/util"
)

// ConversationService manages a user's conversation with the agent outside
// of a turn.
type ConversationService struct {
	appName  string
	registry session.Registry
	store    agent.SessionStore
}

func NewConversationService(appName string, registry session.Registry, store agent.SessionStore) *ConversationService {
	return &ConversationService{
		appName:  appName,
		registry: registry,
		store:    store,
	}
}

// Reset forgets the user's session so the next message starts a fresh
// conversation.
func (s *ConversationService) Reset(ctx context.Context, userID string) error {
	if err := s.registry.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}
	if err := s.store.DeleteSession(ctx, s.appName, userID, session.SessionIDFor(userID)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	log.Info().Str("userId", util.MaskUserID(userID)).Msg("conversation reset")
	return nil
}

// History returns the user's stored session, or a SESSION_NOT_FOUND error.
func (s *ConversationService) History(ctx context.Context, userID string) (*agent.Session, error) {
	return s.store.GetSession(ctx, s.appName, userID, session.SessionIDFor(userID))
}
