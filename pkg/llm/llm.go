// Package llm abstracts the streaming chat model behind the dispatch loop.
package llm

import "context"

// Message roles follow the OpenAI chat convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chunk is one streamed delta. Reasoning carries chain-of-thought text for
// providers that surface it separately from visible content. Exactly one of
// the terminal fields fires per stream: Done on normal end, Err otherwise.
type Chunk struct {
	Reasoning string
	Content   string
	Done      bool
	Err       error
}

// Streamer produces model output incrementally. The returned channel is
// closed after the terminal chunk. Cancelling ctx aborts the stream; the
// terminal chunk then carries ctx's error.
type Streamer interface {
	Stream(ctx context.Context, messages []Message) (<-chan Chunk, error)
}
