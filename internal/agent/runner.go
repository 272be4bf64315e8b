package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAgentName    = "namecard_agent"
	DefaultHistoryTurns = 20

	DefaultInstruction = "You are a helpful assistant that manages namecards for LINE users. " +
		"When given extracted namecard data, summarize it back to the user and confirm it was saved. " +
		"Answer other questions briefly and in the user's language."

	emptyOutputMessage   = "Model returned an empty response."
	contentFilterMessage = "Model response was blocked by the content filter."
)

// Runtime runs one agent turn for a user's session.
type Runtime interface {
	Run(ctx context.Context, userID, sessionID string, msg Content) EventStream
}

// EventStream yields the events of one turn in emission order. Callers may
// stop before exhaustion but must always call Close.
type EventStream interface {
	Next() bool
	Event() *Event
	Err() error
	Close() error
}

type Runner struct {
	appName      string
	agentName    string
	instruction  string
	historyTurns int
	store        SessionStore
	model        Model
}

type RunnerOption func(*Runner)

func WithInstruction(instruction string) RunnerOption {
	return func(r *Runner) {
		if strings.TrimSpace(instruction) != "" {
			r.instruction = instruction
		}
	}
}

// WithHistoryTurns bounds the user turns sent to the model. n <= 0 sends the
// whole history.
func WithHistoryTurns(n int) RunnerOption {
	return func(r *Runner) {
		r.historyTurns = n
	}
}

func WithAgentName(name string) RunnerOption {
	return func(r *Runner) {
		if name != "" {
			r.agentName = name
		}
	}
}

func NewRunner(appName string, store SessionStore, model Model, opts ...RunnerOption) *Runner {
	r := &Runner{
		appName:      appName,
		agentName:    DefaultAgentName,
		instruction:  DefaultInstruction,
		historyTurns: DefaultHistoryTurns,
		store:        store,
		model:        model,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run returns a lazy stream; nothing touches the store or the model until
// the first call to Next.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg Content) EventStream {
	return &runStream{
		ctx:          ctx,
		runner:       r,
		userID:       userID,
		sessionID:    sessionID,
		msg:          msg,
		invocationID: "e-" + uuid.NewString(),
	}
}

type runStream struct {
	ctx          context.Context
	runner       *Runner
	userID       string
	sessionID    string
	msg          Content
	invocationID string

	started bool
	done    bool
	session *Session
	model   ModelStream
	text    strings.Builder
	finish  string
	event   *Event
	err     error
}

func (s *runStream) Next() bool {
	if s.done {
		return false
	}

	if !s.started {
		s.started = true
		if err := s.start(); err != nil {
			return s.fail(err)
		}
	}

	for s.model.Next() {
		chunk := s.model.Chunk()
		if chunk.FinishReason != "" {
			s.finish = chunk.FinishReason
		}
		if chunk.Text == "" {
			continue
		}
		s.text.WriteString(chunk.Text)
		s.event = s.newEvent(&Content{Role: RoleModel, Parts: []Part{{Text: chunk.Text}}})
		s.event.Partial = true
		return true
	}

	if err := s.model.Err(); err != nil {
		return s.fail(fmt.Errorf("model stream: %w", err))
	}

	s.done = true
	s.event = s.finalEvent()
	return true
}

func (s *runStream) start() error {
	r := s.runner

	session, err := r.store.GetSession(s.ctx, r.appName, s.userID, s.sessionID)
	if err != nil {
		return err
	}
	s.session = session

	history := append(append([]Content(nil), session.History...), s.msg)
	req := ModelRequest{
		Instruction: r.instruction,
		History:     trimHistory(history, r.historyTurns),
	}

	stream, err := r.model.Stream(s.ctx, req)
	if err != nil {
		return fmt.Errorf("open model stream: %w", err)
	}
	s.model = stream

	log.Debug().
		Str("invocationId", s.invocationID).
		Str("sessionId", s.sessionID).
		Str("model", r.model.Name()).
		Int("historyLen", len(req.History)).
		Msg("agent run started")

	return nil
}

func (s *runStream) finalEvent() *Event {
	text := s.text.String()

	if s.finish == FinishReasonContentFilter || strings.TrimSpace(text) == "" {
		message := emptyOutputMessage
		if s.finish == FinishReasonContentFilter {
			message = contentFilterMessage
		}
		s.persist(s.msg)

		event := s.newEvent(nil)
		event.Actions = &EventActions{Escalate: true}
		event.ErrorMessage = message
		event.TurnComplete = true
		return event
	}

	reply := NewModelContent(text)
	s.persist(s.msg, reply)

	event := s.newEvent(&reply)
	event.TurnComplete = true
	return event
}

// persist keeps the turn in the session. A failure is logged and does not
// withhold the answer from the caller.
func (s *runStream) persist(contents ...Content) {
	if err := s.runner.store.AppendTurn(s.ctx, s.session, contents...); err != nil {
		log.Warn().
			Err(err).
			Str("invocationId", s.invocationID).
			Str("sessionId", s.sessionID).
			Msg("failed to persist agent turn")
	}
}

func (s *runStream) newEvent(content *Content) *Event {
	return &Event{
		ID:           uuid.NewString(),
		InvocationID: s.invocationID,
		Author:       s.runner.agentName,
		Content:      content,
		Timestamp:    time.Now(),
	}
}

func (s *runStream) fail(err error) bool {
	s.done = true
	s.event = nil
	s.err = err
	return false
}

func (s *runStream) Event() *Event {
	return s.event
}

func (s *runStream) Err() error {
	return s.err
}

func (s *runStream) Close() error {
	s.done = true
	if s.model == nil {
		return nil
	}
	stream := s.model
	s.model = nil
	return stream.Close()
}

// trimHistory keeps the last maxTurns user turns and whatever follows each
// of them.
func trimHistory(history []Content, maxTurns int) []Content {
	if maxTurns <= 0 {
		return history
	}

	usersSeen := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			usersSeen++
			if usersSeen == maxTurns {
				return history[i:]
			}
		}
	}
	return history
}
