package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/line-agent-relay/internal/audit"
	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/model"
	"github.com/openclaw/line-agent-relay/internal/repository"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const (
	imageRetrievalFailedText = "Sorry, I couldn't retrieve the image you sent. Please try again."
	namecardParseFailedText  = "Sorry, I couldn't understand the content of the namecard image. Details: %s"
	parseFailureDetailLimit  = 100
)

type NamecardParser interface {
	Parse(ctx context.Context, image []byte) (*model.NameCard, error)
}

// Invoker is the agent entry point the namecard flow hands parsed cards to.
type Invoker interface {
	Invoke(ctx context.Context, query, userID string) string
}

type NamecardService struct {
	line   LineMessenger
	parser NamecardParser
	agent  Invoker
	repo   repository.NameCardRepository
}

// NewNamecardService wires the image flow. parser and repo may be nil: a nil
// parser makes every image a parse failure, a nil repo skips persistence.
func NewNamecardService(line LineMessenger, parser NamecardParser, agent Invoker, repo repository.NameCardRepository) *NamecardService {
	return &NamecardService{
		line:   line,
		parser: parser,
		agent:  agent,
		repo:   repo,
	}
}

// Process turns an image message into agent reply text. When ok is false the
// user has already been told what went wrong by push message and there is
// nothing to reply.
func (s *NamecardService) Process(ctx context.Context, userID, messageID string) (reply string, ok bool) {
	logger := log.With().
		Str("userId", util.MaskUserID(userID)).
		Str("messageId", messageID).
		Logger()

	image, err := s.line.GetMessageContent(ctx, messageID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to get image content")
		s.push(ctx, userID, imageRetrievalFailedText)
		return "", false
	}

	card, err := s.parse(ctx, image)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to parse namecard")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventNamecardParseFail,
			UserID:  util.MaskUserID(userID),
			Details: map[string]interface{}{"messageId": messageID, "code": string(apperrors.GetCode(err))},
		})
		s.push(ctx, userID, fmt.Sprintf(namecardParseFailedText, parseFailureDetail(err)))
		return "", false
	}

	logger.Info().Str("company", card.Company).Msg("namecard parsed")

	if s.repo != nil {
		stored, err := s.repo.Create(ctx, model.CreateNameCardParams{
			OwnerID:   userID,
			MessageID: messageID,
			Card:      *card,
		})
		if err != nil {
			logger.Error().Err(err).Msg("failed to store namecard")
		} else {
			audit.Log(ctx, audit.Event{
				Type:    audit.EventNamecardStored,
				UserID:  util.MaskUserID(userID),
				Details: map[string]interface{}{"namecardId": stored.ID},
			})
		}
	}

	query, err := BuildNamecardQuery(card, userID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build namecard query")
		s.push(ctx, userID, fmt.Sprintf(namecardParseFailedText, parseFailureDetail(err)))
		return "", false
	}

	return s.agent.Invoke(ctx, query, userID), true
}

func (s *NamecardService) parse(ctx context.Context, image []byte) (*model.NameCard, error) {
	if s.parser == nil {
		return nil, apperrors.Unavailable("Namecard parsing")
	}
	return s.parser.Parse(ctx, image)
}

func (s *NamecardService) push(ctx context.Context, userID, text string) {
	if err := s.line.PushText(ctx, userID, text); err != nil {
		log.Error().Err(err).Str("userId", util.MaskUserID(userID)).Msg("failed to push message")
	}
}

// List returns stored cards, all of them when ownerID is empty.
func (s *NamecardService) List(ctx context.Context, ownerID string, limit, offset int) ([]model.StoredNameCard, int, error) {
	if s.repo == nil {
		return nil, 0, apperrors.Unavailable("Namecard storage")
	}

	var (
		cards []model.StoredNameCard
		total int
		err   error
	)
	if ownerID != "" {
		cards, err = s.repo.FindByOwnerID(ctx, ownerID, limit, offset)
		if err == nil {
			total, err = s.repo.CountByOwnerID(ctx, ownerID)
		}
	} else {
		cards, err = s.repo.FindAll(ctx, limit, offset)
		if err == nil {
			total, err = s.repo.CountAll(ctx)
		}
	}
	if err != nil {
		return nil, 0, apperrors.Database(err)
	}
	if cards == nil {
		cards = []model.StoredNameCard{}
	}
	return cards, total, nil
}

func (s *NamecardService) Get(ctx context.Context, id string) (*model.StoredNameCard, error) {
	if s.repo == nil {
		return nil, apperrors.Unavailable("Namecard storage")
	}
	card, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if card == nil {
		return nil, apperrors.NotFound("Namecard")
	}
	return card, nil
}

// BuildNamecardQuery is the agent prompt for a freshly parsed card.
func BuildNamecardQuery(card *model.NameCard, userID string) (string, error) {
	data, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("marshal namecard: %w", err)
	}
	return fmt.Sprintf(
		"A namecard image was processed. Here is the extracted data: %s. "+
			"Please add this namecard information for user %s and confirm with the user.",
		data, userID,
	), nil
}

func parseFailureDetail(err error) string {
	detail := err.Error()
	if appErr, ok := apperrors.AsAppError(err); ok {
		detail = appErr.Message
	}
	runes := []rune(detail)
	if len(runes) > parseFailureDetailLimit {
		detail = string(runes[:parseFailureDetailLimit])
	}
	return detail
}
