package agent

import "context"

// FinishReasonContentFilter is reported by backends that refused to answer.
const FinishReasonContentFilter = "content_filter"

// ModelRequest is one chat completion call: the system instruction followed
// by the conversation so far, newest user turn last.
type ModelRequest struct {
	Instruction string
	History     []Content
}

// ModelChunk is one streamed piece of the answer. FinishReason is set on the
// last chunk when the backend reports one.
type ModelChunk struct {
	Text         string
	FinishReason string
}

// ModelStream is a pull iterator over a streamed answer. Close must be
// called exactly once and releases the underlying connection.
type ModelStream interface {
	Next() bool
	Chunk() ModelChunk
	Err() error
	Close() error
}

// Model is a chat model backend.
type Model interface {
	Name() string
	Stream(ctx context.Context, req ModelRequest) (ModelStream, error)
}
