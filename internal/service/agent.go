package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/agent"
	"github.com/openclaw/line-agent-relay/internal/audit"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/session"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const (
	noFinalResponseText        = "Agent did not produce a final response."
	noFinalResponseRetryText   = "Agent did not produce a final response on retry."
	escalatedPrefix            = "Agent escalated: "
	escalatedRetryPrefix       = "Agent escalated on retry: "
	noEscalationDetailText     = "No specific message."
	errorReplyFormat           = "Sorry, I encountered an error: %v"
	errorAfterSessionIssueText = "Sorry, I encountered an error after a session issue: %v"
)

// AgentService sends one user message to the agent and turns whatever
// happens into reply text.
type AgentService struct {
	registry session.Registry
	runtime  agent.Runtime
	timeout  time.Duration
}

func NewAgentService(registry session.Registry, runtime agent.Runtime, timeout time.Duration) *AgentService {
	return &AgentService{
		registry: registry,
		runtime:  runtime,
		timeout:  timeout,
	}
}

type attemptTexts struct {
	noFinal         string
	escalatedPrefix string
}

var (
	firstAttempt = attemptTexts{noFinal: noFinalResponseText, escalatedPrefix: escalatedPrefix}
	retryAttempt = attemptTexts{noFinal: noFinalResponseRetryText, escalatedPrefix: escalatedRetryPrefix}
)

// Invoke never fails: every error path is rendered as text for the user.
//
// A failure recognized by apperrors.IsSessionNotFound (the structured code or
// the "Session not found" text) means the agent no longer knows the cached
// session. The mapping is dropped, a fresh session is created and the run is
// attempted exactly once more.
func (s *AgentService) Invoke(ctx context.Context, query, userID string) string {
	logger := log.With().Str("userId", util.MaskUserID(userID)).Logger()

	sessionID, err := s.registry.ResolveOrCreate(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to resolve agent session")
		return fmt.Sprintf(errorReplyFormat, err)
	}

	reply, err := s.attempt(ctx, userID, sessionID, query, firstAttempt)
	if err == nil {
		return reply
	}

	if !apperrors.IsSessionNotFound(err) {
		logger.Error().Err(err).Str("sessionId", sessionID).Msg("agent run failed")
		return fmt.Sprintf(errorReplyFormat, err)
	}

	logger.Warn().Err(err).Str("sessionId", sessionID).Msg("agent session not found, recreating")
	audit.Log(ctx, audit.Event{
		Type:    audit.EventSessionRecreate,
		UserID:  util.MaskUserID(userID),
		Details: map[string]interface{}{"sessionId": sessionID},
	})

	if err := s.registry.Invalidate(ctx, userID); err != nil {
		logger.Warn().Err(err).Msg("failed to invalidate agent session")
	}

	sessionID, err = s.registry.ResolveOrCreate(ctx, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to recreate agent session")
		return fmt.Sprintf(errorAfterSessionIssueText, err)
	}

	reply, err = s.attempt(ctx, userID, sessionID, query, retryAttempt)
	if err != nil {
		logger.Error().Err(err).Str("sessionId", sessionID).Msg("agent retry failed")
		return fmt.Sprintf(errorAfterSessionIssueText, err)
	}

	logger.Info().Str("sessionId", sessionID).Msg("agent run succeeded after session recreation")
	return reply
}

// attempt runs one turn and returns the text of the first final event.
// Events after the first final one are never read.
func (s *AgentService) attempt(ctx context.Context, userID, sessionID, query string, texts attemptTexts) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stream := s.runtime.Run(ctx, userID, sessionID, agent.NewUserContent(query))
	defer func() {
		if err := stream.Close(); err != nil {
			log.Debug().Err(err).Str("sessionId", sessionID).Msg("failed to close agent stream")
		}
	}()

	for stream.Next() {
		event := stream.Event()
		if !event.IsFinalResponse() {
			continue
		}

		if event.Content != nil && len(event.Content.Parts) > 0 && event.Content.Parts[0].Text != "" {
			return event.Content.Parts[0].Text, nil
		}
		if event.Actions != nil && event.Actions.Escalate {
			detail := event.ErrorMessage
			if detail == "" {
				detail = noEscalationDetailText
			}
			return texts.escalatedPrefix + detail, nil
		}
		break
	}

	if err := stream.Err(); err != nil {
		return "", err
	}
	return texts.noFinal, nil
}
