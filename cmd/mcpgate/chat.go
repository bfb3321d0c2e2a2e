package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcpgate/mcpgate/pkg/dispatch"
	"github.com/mcpgate/mcpgate/pkg/llm"
	"github.com/mcpgate/mcpgate/pkg/logging"
	"github.com/mcpgate/mcpgate/pkg/output"
	"github.com/mcpgate/mcpgate/pkg/registry"
	"github.com/mcpgate/mcpgate/pkg/rpc"
	"github.com/mcpgate/mcpgate/pkg/store"
)

var chatServers []string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model using registered MCP tools",
	Long: `Starts an interactive conversation. Tool-call directives emitted by
the model are executed against the registered MCP servers and their
results spliced back into the conversation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	chatCmd.Flags().StringSliceVar(&chatServers, "server", nil, "Server ids to expose (default: all registered)")
}

func runChat(ctx context.Context) error {
	printer := output.New()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is not configured")
	}
	apiKey := cfg.LLM.APIKey
	if apiKey == "" {
		apiKey, err = promptSecret("LLM API key: ")
		if err != nil {
			return err
		}
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Output: os.Stderr,
	})

	st, err := store.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := registry.New(registry.Options{
		Store:            st,
		Logger:           logger,
		HandshakeTimeout: cfg.SSEHandshakeTimeout(),
		StartupTimeout:   cfg.StdioStartupTimeout(),
	})
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("starting registry: %w", err)
	}
	defer reg.Shutdown()

	serverIDs := chatServers
	if len(serverIDs) == 0 {
		specs, err := reg.ListSpecs(ctx)
		if err != nil {
			return err
		}
		for _, spec := range specs {
			if !spec.Disabled {
				serverIDs = append(serverIDs, spec.ID)
			}
		}
	}

	streamer := llm.NewOpenAIStreamer(llm.OpenAIConfig{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      apiKey,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	}, logger)

	loop := dispatch.NewLoop(dispatch.Options{
		Gateway:  rpc.NewService(reg, logger),
		Streamer: streamer,
		Logger:   logger,
	})

	printer.Banner(version)
	printer.Info("chat ready", "model", cfg.LLM.Model, "servers", strings.Join(serverIDs, ","))
	printer.Println(`Type a message, or "exit" to quit.`)

	var history []llm.Message
	scanner := bufio.NewScanner(os.Stdin)
	for {
		printer.Print("\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		history = append(history, llm.Message{Role: llm.RoleUser, Content: line})
		reply, ok := runTurn(ctx, loop, printer, history, serverIDs)
		if ok {
			history = append(history, llm.Message{Role: llm.RoleAssistant, Content: reply})
		}
	}
}

// runTurn streams one turn to the terminal and returns the assistant's full
// reply. ok is false when the turn errored and nothing should enter history.
func runTurn(ctx context.Context, loop *dispatch.Loop, printer *output.Printer, history []llm.Message, serverIDs []string) (string, bool) {
	for event := range loop.Run(ctx, history, serverIDs) {
		switch event.Type {
		case dispatch.EventMessage:
			printer.Print("%s", event.Delta)
		case dispatch.EventToolCall:
			printer.Println()
			printer.Info("calling tool", "server", event.ToolCall.Server, "tool", event.ToolCall.Tool)
		case dispatch.EventToolResult:
			if event.ToolCall.OK {
				printer.Info("tool finished", "tool", event.ToolCall.Tool, "elapsedMs", event.ToolCall.ElapsedMs)
			} else {
				printer.Warn("tool failed", "tool", event.ToolCall.Tool, "error", event.ToolCall.Error)
			}
		case dispatch.EventComplete:
			printer.Println()
			return event.FullContent, true
		case dispatch.EventStopped:
			printer.Println()
			printer.Warn("turn stopped")
			return event.FullContent, event.FullContent != ""
		case dispatch.EventError:
			printer.Println()
			printer.Error("turn failed", "error", event.Error)
			return "", false
		}
	}
	return "", false
}

// promptSecret reads a secret from the terminal without echo. Falls back to
// a plain line read when stdin is not a TTY (piped input).
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
