package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"github.com/mcpgate/mcpgate/pkg/llm"
	"github.com/mcpgate/mcpgate/pkg/rpc"
)

// Gateway is the slice of the facade the loop needs.
type Gateway interface {
	CallTool(ctx context.Context, req *rpc.CallToolRequest) (*rpc.CallToolResponse, error)
	ListTools(ctx context.Context, req *rpc.ServerFilter) (*rpc.ListToolsResponse, error)
}

const (
	// DefaultTurnDeadline bounds one whole turn, tool executions included.
	DefaultTurnDeadline = 5 * time.Minute

	// maxRounds caps LLM round trips per turn so a model stuck in a
	// tool-calling loop cannot spin forever.
	maxRounds = 16
)

// Loop alternates between streaming the model and executing the tool
// directives it emits, until the model answers without asking for a tool.
type Loop struct {
	gateway  Gateway
	streamer llm.Streamer
	logger   *slog.Logger
	deadline time.Duration
}

// Options configures a Loop.
type Options struct {
	Gateway  Gateway
	Streamer llm.Streamer
	Logger   *slog.Logger

	// TurnDeadline replaces DefaultTurnDeadline when positive.
	TurnDeadline time.Duration
}

// NewLoop builds a dispatch loop.
func NewLoop(opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	deadline := opts.TurnDeadline
	if deadline <= 0 {
		deadline = DefaultTurnDeadline
	}
	return &Loop{
		gateway:  opts.Gateway,
		streamer: opts.Streamer,
		logger:   logger.With("component", "dispatch"),
		deadline: deadline,
	}
}

// Run executes one turn: history is the conversation so far (ending with the
// user's message), serverIDs the servers whose tools the model may use. The
// returned channel carries the event stream and closes when the turn ends.
func (l *Loop) Run(ctx context.Context, history []llm.Message, serverIDs []string) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		l.run(ctx, history, serverIDs, events)
	}()
	return events
}

func (l *Loop) run(ctx context.Context, history []llm.Message, serverIDs []string, events chan<- Event) {
	ctx, cancel := context.WithTimeout(ctx, l.deadline)
	defer cancel()

	ctx, span := otel.Tracer("mcpgate/dispatch").Start(ctx, "dispatch.turn")
	defer span.End()

	turnID := uuid.NewString()
	l.logger.Debug("turn started", "turn", turnID, "servers", serverIDs)

	system, err := l.buildSystemPrompt(ctx, serverIDs)
	if err != nil {
		events <- Event{Type: EventError, TurnID: turnID, Error: err.Error()}
		return
	}
	messages := append([]llm.Message{{Role: llm.RoleSystem, Content: system}}, history...)

	var fullContent strings.Builder
	var records []ToolCallRecord

	for round := 0; round < maxRounds; round++ {
		directives, roundContent, err := l.streamRound(ctx, messages, events)
		fullContent.WriteString(roundContent)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				events <- Event{Type: EventStopped, TurnID: turnID, FullContent: fullContent.String()}
			} else {
				events <- Event{Type: EventError, TurnID: turnID, Error: err.Error(), FullContent: fullContent.String()}
			}
			return
		}

		if len(directives) == 0 {
			events <- Event{Type: EventComplete, TurnID: turnID, FullContent: fullContent.String(), ExtraContent: records}
			return
		}

		// The model asked for tools: record its partial output, execute the
		// directives in closing order, splice the results, and go again.
		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: roundContent})
		for _, d := range directives {
			record := l.execute(ctx, d, events)
			records = append(records, record)
			spliced, _ := json.Marshal(record)
			messages = append(messages, llm.Message{
				Role:    llm.RoleUser,
				Content: "Tool result: " + string(spliced),
			})
		}
	}

	events <- Event{Type: EventError, TurnID: turnID, Error: fmt.Sprintf("turn exceeded %d tool rounds", maxRounds), FullContent: fullContent.String()}
}

// streamRound runs one LLM request. It returns as soon as a directive block
// closes, cancelling the in-flight stream so no further message deltas leak
// out while tools run, or when the model finishes cleanly.
func (l *Loop) streamRound(ctx context.Context, messages []llm.Message, events chan<- Event) ([]Directive, string, error) {
	streamCtx, cancelStream := context.WithCancel(ctx)
	defer cancelStream()

	chunks, err := l.streamer.Stream(streamCtx, messages)
	if err != nil {
		return nil, "", err
	}

	var scanner directiveScanner
	var content strings.Builder
	for chunk := range chunks {
		switch {
		case chunk.Err != nil:
			if ctx.Err() != nil {
				return nil, content.String(), ctx.Err()
			}
			return nil, content.String(), chunk.Err

		case chunk.Done:
			return scanner.feed(""), content.String(), nil

		default:
			if chunk.Reasoning != "" {
				// Reasoning is display-only; directives in it never execute.
				events <- Event{Type: EventThinking, Delta: chunk.Reasoning}
			}
			if chunk.Content != "" {
				content.WriteString(chunk.Content)
				events <- Event{Type: EventMessage, Delta: chunk.Content}
				if directives := scanner.feed(chunk.Content); len(directives) > 0 {
					cancelStream()
					for range chunks {
						// Drain whatever the provider already buffered.
					}
					return directives, content.String(), nil
				}
			}
		}
	}
	return nil, content.String(), nil
}

// execute runs one directive through the facade with the turn's remaining
// deadline and reports it on the event stream.
func (l *Loop) execute(ctx context.Context, d Directive, events chan<- Event) ToolCallRecord {
	record := ToolCallRecord{ID: uuid.NewString(), Server: d.ServerName, Tool: d.ToolName}
	events <- Event{Type: EventToolCall, ToolCall: &record}

	start := time.Now()
	resp, err := l.gateway.CallTool(ctx, &rpc.CallToolRequest{
		ServerID:  d.ServerName,
		ToolName:  d.ToolName,
		Arguments: d.Arguments,
	})
	record.ElapsedMs = time.Since(start).Milliseconds()

	switch {
	case err != nil:
		record.Error = err.Error()
		l.logger.Warn("tool call failed", "server", d.ServerName, "tool", d.ToolName, "error", err)
	case !resp.Success:
		record.Error = resp.Error
	default:
		record.OK = true
		record.Result = resp.Result
		record.ElapsedMs = resp.ExecutionTimeMs
	}

	events <- Event{Type: EventToolResult, ToolCall: &record}
	return record
}

// buildSystemPrompt lists every tool of every selected, ready server and
// instructs the model how to request an invocation.
func (l *Loop) buildSystemPrompt(ctx context.Context, serverIDs []string) (string, error) {
	var b strings.Builder
	b.WriteString("You are an assistant with access to external tools.\n\nAvailable tools:\n")

	found := 0
	for _, id := range serverIDs {
		resp, err := l.gateway.ListTools(ctx, &rpc.ServerFilter{ServerID: id})
		if err != nil {
			// A dead server just contributes nothing.
			l.logger.Warn("server excluded from tool catalogue", "server", id, "error", err)
			continue
		}
		for _, t := range resp.Tools {
			found++
			fmt.Fprintf(&b, "\n- serverId: %s\n  toolName: %s\n", t.ServerName, t.Name)
			if t.Description != "" {
				fmt.Fprintf(&b, "  description: %s\n", t.Description)
			}
			if len(t.InputSchema) > 0 {
				fmt.Fprintf(&b, "  inputSchema: %s\n", string(t.InputSchema))
			}
		}
	}
	if found == 0 {
		b.WriteString("\n(none)\n")
	}

	b.WriteString("\nTo invoke a tool, emit a fenced JSON block of exactly this form:\n")
	b.WriteString("```json\n{\"type\":\"mcp_tool_call\",\"server_name\":\"<serverId>\",\"tool_name\":\"<toolName>\",\"arguments\":{}}\n```\n")
	b.WriteString("Emit at most one tool call per block and wait for its result before continuing.\n")
	return b.String(), nil
}
