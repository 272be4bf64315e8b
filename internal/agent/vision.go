package agent

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/line-agent-relay/internal/errors"
	"github.com/openclaw/line-agent-relay/internal/model"
)

const namecardPrompt = `Extract the contact details from this business card image.
Reply with a single JSON object and nothing else, using exactly these keys:
"name", "title", "company", "address", "phone", "email", "line_id", "memo".
Use an empty string for any field that is not on the card. Put anything else
worth keeping (slogans, secondary phone numbers, websites) in "memo".`

// NamecardVision reads business cards with a vision-capable chat model.
type NamecardVision struct {
	client openai.Client
	model  string
}

func NewNamecardVision(apiKey, baseURL, model string, opts ...option.RequestOption) *NamecardVision {
	reqOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if trimmed := strings.TrimRight(baseURL, "/"); trimmed != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(trimmed))
	}
	reqOpts = append(reqOpts, opts...)

	return &NamecardVision{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (v *NamecardVision) Parse(ctx context.Context, image []byte) (*model.NameCard, error) {
	if len(image) == 0 {
		return nil, apperrors.ParseFailed("Image is empty.")
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s",
		http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))

	start := time.Now()
	resp, err := v.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(v.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(namecardPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	})
	elapsed := time.Since(start)

	if err != nil {
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("namecard vision request failed")
		return nil, apperrors.External("vision model", err)
	}
	if len(resp.Choices) == 0 {
		return nil, apperrors.ParseFailed("Vision model returned no choices.")
	}

	log.Debug().
		Dur("elapsed", elapsed).
		Int("imageBytes", len(image)).
		Msg("namecard vision request completed")

	return ParseNameCardJSON(resp.Choices[0].Message.Content)
}

// ParseNameCardJSON reads the first JSON object in text. Models often wrap
// the object in a markdown fence or a sentence.
func ParseNameCardJSON(text string) (*model.NameCard, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return nil, apperrors.ParseFailed("No JSON object in model output: " + text)
	}

	var card model.NameCard
	if err := json.Unmarshal([]byte(text[start:end+1]), &card); err != nil {
		return nil, apperrors.ParseFailed("Invalid JSON in model output: " + err.Error()).WithCause(err)
	}
	if card.Empty() {
		return nil, apperrors.ParseFailed("No name, company or contact found on the card.")
	}
	return &card, nil
}
