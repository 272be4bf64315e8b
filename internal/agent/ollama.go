package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaModel streams chat answers from an Ollama server.
type OllamaModel struct {
	client *api.Client
	model  string
}

func NewOllamaModel(host, model string, httpClient *http.Client) (*OllamaModel, error) {
	base, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &OllamaModel{
		client: api.NewClient(base, httpClient),
		model:  model,
	}, nil
}

func (m *OllamaModel) Name() string {
	return m.model
}

// Stream runs the callback-based chat call in a goroutine and hands the
// chunks over a channel. Close cancels the call and waits for it to return.
func (m *OllamaModel) Stream(ctx context.Context, req ModelRequest) (ModelStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream := true

	chatReq := &api.ChatRequest{
		Model:    m.model,
		Messages: ollamaMessages(req),
		Stream:   &stream,
	}

	s := &ollamaStream{
		chunks: make(chan ModelChunk),
		cancel: cancel,
	}

	go func() {
		defer close(s.chunks)
		s.err = m.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			chunk := ModelChunk{Text: resp.Message.Content}
			if resp.Done {
				chunk.FinishReason = resp.DoneReason
			}
			select {
			case s.chunks <- chunk:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()

	return s, nil
}

func ollamaMessages(req ModelRequest) []api.Message {
	messages := make([]api.Message, 0, len(req.History)+1)
	if req.Instruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: req.Instruction})
	}

	for _, c := range req.History {
		role := "user"
		switch c.Role {
		case RoleModel:
			role = "assistant"
		case RoleSystem:
			role = "system"
		}
		messages = append(messages, api.Message{Role: role, Content: c.Text()})
	}
	return messages
}

type ollamaStream struct {
	chunks chan ModelChunk
	cancel context.CancelFunc
	chunk  ModelChunk
	err    error
	closed bool
}

func (s *ollamaStream) Next() bool {
	chunk, ok := <-s.chunks
	if !ok {
		return false
	}
	s.chunk = chunk
	return true
}

func (s *ollamaStream) Chunk() ModelChunk {
	return s.chunk
}

// Err is valid once Next has returned false.
func (s *ollamaStream) Err() error {
	if s.closed {
		return nil
	}
	return s.err
}

func (s *ollamaStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cancel()
	for range s.chunks {
	}
	return nil
}
