package dispatch

import "encoding/json"

// EventType labels the events a turn emits toward the orchestrator's
// SSE bridge.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventMessage    EventType = "message"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventComplete   EventType = "complete"
	EventError      EventType = "error"
	EventStopped    EventType = "stopped"
)

// ToolCallRecord describes one executed directive and its outcome.
type ToolCallRecord struct {
	ID        string          `json:"id"`
	Server    string          `json:"server"`
	Tool      string          `json:"tool"`
	OK        bool            `json:"ok"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ElapsedMs int64           `json:"elapsedMs"`
}

// Event is one item of the turn's output stream.
type Event struct {
	Type EventType `json:"type"`

	// TurnID identifies the turn on terminal events (complete, error,
	// stopped) so consumers can correlate multiplexed streams.
	TurnID string `json:"turnId,omitempty"`

	// Delta carries incremental text for thinking and message events.
	Delta string `json:"delta,omitempty"`

	// ToolCall is set on tool_call and tool_result events.
	ToolCall *ToolCallRecord `json:"toolCall,omitempty"`

	// FullContent is the accumulated visible text, set on complete and
	// stopped events.
	FullContent string `json:"fullContent,omitempty"`

	// ExtraContent lists every tool-call record of the turn, set on complete.
	ExtraContent []ToolCallRecord `json:"extraContent,omitempty"`

	// Error is set on error events.
	Error string `json:"error,omitempty"`
}
