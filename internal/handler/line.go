package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/audit"
	"github.com/openclaw/line-agent-relay/internal/service"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const (
	rateLimitedMessage = "Too many messages. Please wait a moment and try again."
	unsupportedMessage = "Sorry, I can only handle text and namecard images."
	resetDoneMessage   = "Conversation reset. Let's start over."
	resetFailedMessage = "Sorry, I couldn't reset the conversation. Please try again."
	helpMessage        = "Send me a photo of a namecard and I'll extract and save its details.\n\n" +
		"You can also ask me anything about your namecards in plain text.\n\n" +
		"Commands:\n" +
		"/reset - start a new conversation\n" +
		"/help - show this message"
)

type Command struct {
	Type string
}

func parseCommand(text string) *Command {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "/reset":
		return &Command{Type: "RESET"}
	case "/help":
		return &Command{Type: "HELP"}
	}
	return nil
}

type ImageProcessor interface {
	Process(ctx context.Context, userID, messageID string) (reply string, ok bool)
}

type ConversationResetter interface {
	Reset(ctx context.Context, userID string) error
}

type LineHandler struct {
	agent   service.Invoker
	images  ImageProcessor
	line    service.LineMessenger
	limiter service.UserLimiter
	deduper service.EventDeduper
	convs   ConversationResetter
}

// NewLineHandler wires the webhook. limiter and deduper may be nil to turn
// the corresponding check off.
func NewLineHandler(
	agent service.Invoker,
	images ImageProcessor,
	line service.LineMessenger,
	limiter service.UserLimiter,
	deduper service.EventDeduper,
	convs ConversationResetter,
) *LineHandler {
	return &LineHandler{
		agent:   agent,
		images:  images,
		line:    line,
		limiter: limiter,
		deduper: deduper,
		convs:   convs,
	}
}

func (h *LineHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req LineWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn().Err(err).Msg("invalid LINE webhook body")
		writeText(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	log.Debug().
		Str("destination", req.Destination).
		Int("events", len(req.Events)).
		Msg("LINE webhook received")

	for i := range req.Events {
		h.handleEvent(r, &req.Events[i])
	}

	writeText(w, http.StatusOK, "OK")
}

func (h *LineHandler) handleEvent(r *http.Request, event *LineEvent) {
	ctx := r.Context()
	userID := event.Source.UserID

	if event.WebhookEventID != "" && h.deduper != nil && !h.deduper.FirstDelivery(ctx, event.WebhookEventID) {
		audit.LogFromRequest(r, audit.Event{
			Type:   audit.EventDuplicateDelivery,
			UserID: util.MaskUserID(userID),
			Details: map[string]interface{}{
				"webhook_event_id": event.WebhookEventID,
				"redelivery":       event.IsRedelivery(),
			},
		})
		return
	}

	if event.Type != LineEventTypeMessage || event.Message == nil {
		log.Info().Str("type", event.Type).Msg("unhandled event type")
		return
	}

	if event.Mode == LineModeStandby {
		log.Debug().Str("userId", util.MaskUserID(userID)).Msg("skipping standby event")
		return
	}

	if userID == "" {
		log.Info().Str("sourceType", event.Source.Type).Msg("message without user id ignored")
		return
	}

	if h.limiter != nil {
		if allowed, resetAt := h.limiter.Allow(ctx, userID); !allowed {
			audit.LogFromRequest(r, audit.Event{
				Type:   audit.EventRateLimitExceed,
				UserID: util.MaskUserID(userID),
				Details: map[string]interface{}{
					"reset_at": resetAt.Unix(),
				},
			})
			h.reply(ctx, event, rateLimitedMessage)
			return
		}
	}

	msg := event.Message
	switch msg.Type {
	case LineMessageTypeText:
		if cmd := parseCommand(msg.Text); cmd != nil {
			h.reply(ctx, event, h.handleCommand(ctx, cmd, userID))
			return
		}

		h.reply(ctx, event, h.agent.Invoke(ctx, msg.Text, userID))

	case LineMessageTypeImage:
		if reply, ok := h.images.Process(ctx, userID, msg.ID); ok {
			h.reply(ctx, event, reply)
		}

	default:
		log.Info().Str("messageType", msg.Type).Str("userId", util.MaskUserID(userID)).Msg("unsupported message type")
		h.reply(ctx, event, unsupportedMessage)
	}
}

func (h *LineHandler) handleCommand(ctx context.Context, cmd *Command, userID string) string {
	switch cmd.Type {
	case "RESET":
		if err := h.convs.Reset(ctx, userID); err != nil {
			log.Error().Err(err).Str("userId", util.MaskUserID(userID)).Msg("failed to reset conversation")
			return resetFailedMessage
		}
		return resetDoneMessage

	case "HELP":
		return helpMessage

	default:
		return unsupportedMessage
	}
}

// reply answers through the reply token and falls back to a push when the
// token is missing or rejected.
func (h *LineHandler) reply(ctx context.Context, event *LineEvent, text string) {
	if event.ReplyToken != "" {
		err := h.line.ReplyText(ctx, event.ReplyToken, text)
		if err == nil {
			return
		}
		log.Warn().Err(err).Str("userId", util.MaskUserID(event.Source.UserID)).Msg("reply failed, falling back to push")
	}

	if err := h.line.PushText(ctx, event.Source.UserID, text); err != nil {
		log.Error().Err(err).Str("userId", util.MaskUserID(event.Source.UserID)).Msg("failed to deliver message")
	}
}
