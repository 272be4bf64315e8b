// Package agent implements the conversational agent runtime the relay talks
// to: a session store holding per-user conversation history and a runner that
// streams a chat model's answer as a sequence of events.
package agent

import (
	"strings"
	"time"
)

const (
	RoleUser   = "user"
	RoleModel  = "model"
	RoleSystem = "system"
)

type Part struct {
	Text string `json:"text,omitempty"`
}

// Content is one role-tagged message made of ordered parts.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

func NewUserContent(text string) Content {
	return Content{Role: RoleUser, Parts: []Part{{Text: text}}}
}

func NewModelContent(text string) Content {
	return Content{Role: RoleModel, Parts: []Part{{Text: text}}}
}

// Text joins the text of all parts.
func (c Content) Text() string {
	if len(c.Parts) == 1 {
		return c.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

type EventActions struct {
	Escalate bool `json:"escalate,omitempty"`
}

// Event is one progress item of a run. A run ends with exactly one final
// event unless it fails.
type Event struct {
	ID           string        `json:"id"`
	InvocationID string        `json:"invocationId"`
	Author       string        `json:"author"`
	Content      *Content      `json:"content,omitempty"`
	Actions      *EventActions `json:"actions,omitempty"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	Partial      bool          `json:"partial,omitempty"`
	TurnComplete bool          `json:"turnComplete,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// IsFinalResponse reports whether the event concludes the turn.
func (e *Event) IsFinalResponse() bool {
	if e == nil {
		return false
	}
	if e.Actions != nil && e.Actions.Escalate {
		return true
	}
	return !e.Partial && e.TurnComplete
}

// Session is one conversation between a user and the agent.
type Session struct {
	ID        string    `json:"id"`
	AppName   string    `json:"appName"`
	UserID    string    `json:"userId"`
	History   []Content `json:"history,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
