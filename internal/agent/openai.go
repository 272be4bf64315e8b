package agent

import (
	"context"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
)

// OpenAIModel streams chat completions from OpenAI or any server speaking
// the same API.
type OpenAIModel struct {
	client openai.Client
	model  string
}

func NewOpenAIModel(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIModel {
	reqOpts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if trimmed := strings.TrimRight(baseURL, "/"); trimmed != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(trimmed))
	}
	reqOpts = append(reqOpts, opts...)

	return &OpenAIModel{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

func (m *OpenAIModel) Name() string {
	return m.model
}

func (m *OpenAIModel) Stream(ctx context.Context, req ModelRequest) (ModelStream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: openAIMessages(req),
	}

	return &openAIStream{stream: m.client.Chat.Completions.NewStreaming(ctx, params)}, nil
}

func openAIMessages(req ModelRequest) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.Instruction != "" {
		messages = append(messages, openai.SystemMessage(req.Instruction))
	}

	for _, c := range req.History {
		switch c.Role {
		case RoleModel:
			messages = append(messages, openai.AssistantMessage(c.Text()))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(c.Text()))
		default:
			messages = append(messages, openai.UserMessage(c.Text()))
		}
	}
	return messages
}

type openAIStream struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
	chunk  ModelChunk
}

func (s *openAIStream) Next() bool {
	for s.stream.Next() {
		current := s.stream.Current()
		if len(current.Choices) == 0 {
			continue
		}
		choice := current.Choices[0]
		s.chunk = ModelChunk{
			Text:         choice.Delta.Content,
			FinishReason: choice.FinishReason,
		}
		return true
	}
	return false
}

func (s *openAIStream) Chunk() ModelChunk {
	return s.chunk
}

func (s *openAIStream) Err() error {
	return s.stream.Err()
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}
