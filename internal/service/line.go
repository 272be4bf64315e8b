package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/util"
)

const (
	lineRequestTimeout = 10 * time.Second
	lineContentTimeout = 30 * time.Second

	// MaxLineTextLength is the LINE limit for one text message.
	MaxLineTextLength = 5000

	maxLineContentBytes = 20 << 20
)

// LineMessenger is the part of the LINE Messaging API the relay uses.
type LineMessenger interface {
	ReplyText(ctx context.Context, replyToken, text string) error
	PushText(ctx context.Context, userID, text string) error
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
}

type LineService struct {
	client      *http.Client
	apiBase     string
	dataAPIBase string
	accessToken string
}

func NewLineService(apiBase, dataAPIBase, accessToken string) *LineService {
	return &LineService{
		client:      &http.Client{Timeout: lineContentTimeout},
		apiBase:     strings.TrimRight(apiBase, "/"),
		dataAPIBase: strings.TrimRight(dataAPIBase, "/"),
		accessToken: accessToken,
	}
}

type lineTextMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type lineReplyRequest struct {
	ReplyToken string            `json:"replyToken"`
	Messages   []lineTextMessage `json:"messages"`
}

type linePushRequest struct {
	To       string            `json:"to"`
	Messages []lineTextMessage `json:"messages"`
}

func textMessages(text string) []lineTextMessage {
	runes := []rune(text)
	if len(runes) > MaxLineTextLength {
		text = string(runes[:MaxLineTextLength])
	}
	return []lineTextMessage{{Type: "text", Text: text}}
}

func (s *LineService) ReplyText(ctx context.Context, replyToken, text string) error {
	if replyToken == "" {
		return apperrors.MissingRequired("replyToken")
	}
	return s.post(ctx, "/v2/bot/message/reply", lineReplyRequest{
		ReplyToken: replyToken,
		Messages:   textMessages(text),
	})
}

func (s *LineService) PushText(ctx context.Context, userID, text string) error {
	if userID == "" {
		return apperrors.MissingRequired("userId")
	}
	return s.post(ctx, "/v2/bot/message/push", linePushRequest{
		To:       userID,
		Messages: textMessages(text),
	})
}

func (s *LineService) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, lineRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	start := time.Now()
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		log.Error().
			Err(err).
			Str("path", path).
			Dur("elapsed", elapsed).
			Msg("LINE API request error")
		return apperrors.External("LINE API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		log.Error().
			Str("path", path).
			Int("status", resp.StatusCode).
			Str("body", util.Truncate(string(detail), 200)).
			Dur("elapsed", elapsed).
			Msg("LINE API request failed")
		return apperrors.External("LINE API", fmt.Errorf("status %d: %s", resp.StatusCode, detail))
	}

	log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", elapsed).
		Msg("LINE API request successful")

	return nil
}

// GetMessageContent downloads the binary content of an image message.
func (s *LineService) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	if messageID == "" {
		return nil, apperrors.MissingRequired("messageId")
	}

	url := fmt.Sprintf("%s/v2/bot/message/%s/content", s.dataAPIBase, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("messageId", messageID).Msg("LINE content request error")
		return nil, apperrors.External("LINE content API", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Str("messageId", messageID).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("LINE content request failed")
		return nil, apperrors.External("LINE content API", fmt.Errorf("status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLineContentBytes))
	if err != nil {
		return nil, apperrors.External("LINE content API", err)
	}
	if len(data) == 0 {
		return nil, apperrors.External("LINE content API", fmt.Errorf("empty content for message %s", messageID))
	}

	log.Debug().
		Str("messageId", messageID).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("LINE content downloaded")

	return data, nil
}
