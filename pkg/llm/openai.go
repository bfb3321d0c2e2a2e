package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig points the client at any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// OpenAIStreamer implements Streamer on the chat completions API.
type OpenAIStreamer struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIStreamer builds a streamer for cfg.
func NewOpenAIStreamer(cfg OpenAIConfig, logger *slog.Logger) *OpenAIStreamer {
	if logger == nil {
		logger = slog.Default()
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIStreamer{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger.With("component", "llm"),
	}
}

// Stream opens a chat completion stream and forwards deltas. Reasoning
// deltas are split out so callers can render thinking separately.
func (s *OpenAIStreamer) Stream(ctx context.Context, messages []Message) (<-chan Chunk, error) {
	req := openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Stream:      true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	stream, err := s.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("opening completion stream: %w", err)
	}

	out := make(chan Chunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				out <- Chunk{Done: true}
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				out <- Chunk{Err: err}
				return
			}
			for _, choice := range resp.Choices {
				chunk := Chunk{
					Reasoning: choice.Delta.ReasoningContent,
					Content:   choice.Delta.Content,
				}
				if chunk.Reasoning == "" && chunk.Content == "" {
					continue
				}
				select {
				case out <- chunk:
				case <-ctx.Done():
					out <- Chunk{Err: ctx.Err()}
					return
				}
			}
		}
	}()
	return out, nil
}
