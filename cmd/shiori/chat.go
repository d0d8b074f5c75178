package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/harunnryd/shiori/internal/catalog"
	"github.com/harunnryd/shiori/internal/config"
	"github.com/harunnryd/shiori/internal/conversation"
	"github.com/harunnryd/shiori/internal/invoker"
	"github.com/harunnryd/shiori/internal/mcp"
	"github.com/harunnryd/shiori/internal/model"

	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat <sse-url>",
	Short: "Chat with a model that can call tools on a remote MCP server",
	Long: `Connects to an MCP tool provider over SSE (for example http://localhost:8080/sse),
lists its tools and starts an interactive chat in which the model may call them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		signals := NewSignalHandler(cmd.Context())
		signals.Start()
		defer signals.Stop()

		return runChat(signals.Context(), cfg, args[0], os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().String("model", "", "model name (default from MODEL or "+config.DefaultModel+")")
	chatCmd.Flags().String("provider", config.DefaultModelProvider, "model provider (openai, ollama, anthropic, gemini)")
	chatCmd.Flags().String("base-url", "", "model endpoint base URL (default "+config.DefaultOpenRouterBaseURL+" for openai, the provider's own endpoint otherwise)")
	chatCmd.Flags().String("system-prompt", config.DefaultChatSystemPrompt, "system prompt")
	chatCmd.Flags().Int("max-tool-rounds", config.DefaultChatMaxToolRounds, "tool batches allowed per turn (1-3)")
}

func runChat(ctx context.Context, cfg *config.Config, endpoint string, in io.Reader, out io.Writer) error {
	router, err := model.NewModelRouter(cfg.Models)
	if err != nil {
		return fmt.Errorf("failed to initialize model router: %w", err)
	}

	opts, err := sessionOptions(cfg.Transport)
	if err != nil {
		return err
	}
	modelTimeout, err := config.DurationOrDefault(cfg.Chat.ModelTimeout, config.DefaultChatModelTimeout)
	if err != nil {
		return fmt.Errorf("parse chat model timeout: %w", err)
	}

	fmt.Fprintf(out, "Connecting to %s...\n", endpoint)
	session, err := mcp.Open(ctx, endpoint, opts)
	if err != nil {
		return fmt.Errorf("failed to connect to tool provider: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Warn("Tool session close failed", "session_id", session.ID(), "endpoint", session.Endpoint(), "error", err)
		}
	}()
	slog.Info("Connected to tool provider", "session_id", session.ID(), "endpoint", session.Endpoint())

	cat, err := catalog.Build(ctx, session, catalog.Options{RequireTools: cfg.Transport.RequireTools})
	if err != nil {
		return fmt.Errorf("failed to build tool catalog from %s: %w", session.Endpoint(), err)
	}
	printTools(out, cat)

	engine := conversation.New(router, invoker.New(cat, session), cat.Contract(), conversation.Options{
		Model:         cfg.Models.Default,
		SystemPrompt:  cfg.Chat.SystemPrompt,
		MaxToolRounds: cfg.Chat.MaxToolRounds,
		ModelTimeout:  modelTimeout,
		OnToolCall: func(req invoker.ToolCallRequest) {
			fmt.Fprintf(out, "\nCalling tool: %s\nArguments: %s\n", req.ToolName, prettyJSON(req.Arguments))
		},
		OnToolResult: func(req invoker.ToolCallRequest, outcome invoker.Outcome) {
			if outcome.IsSuccess() {
				fmt.Fprintf(out, "Tool succeeded: %s\n", outcome.Payload)
				return
			}
			fmt.Fprintf(out, "Tool failed (%s): %s\n", outcome.Kind, outcome.Message)
		},
	})
	defer engine.Close()

	return NewREPL(engine, cat, in, out, cfg.Chat.TranscriptDir).Run(ctx)
}

func sessionOptions(cfg config.TransportConfig) (mcp.Options, error) {
	openTimeout, err := config.DurationOrDefault(cfg.OpenTimeout, config.DefaultTransportOpenTimeout)
	if err != nil {
		return mcp.Options{}, fmt.Errorf("parse transport open timeout: %w", err)
	}
	listTimeout, err := config.DurationOrDefault(cfg.ListTimeout, config.DefaultTransportListTimeout)
	if err != nil {
		return mcp.Options{}, fmt.Errorf("parse transport list timeout: %w", err)
	}
	invokeTimeout, err := config.DurationOrDefault(cfg.InvokeTimeout, config.DefaultTransportInvokeTimeout)
	if err != nil {
		return mcp.Options{}, fmt.Errorf("parse transport invoke timeout: %w", err)
	}
	return mcp.Options{
		OpenTimeout:   openTimeout,
		ListTimeout:   listTimeout,
		InvokeTimeout: invokeTimeout,
	}, nil
}

func printTools(out io.Writer, cat *catalog.Catalog) {
	fmt.Fprintln(out, "\nTools provided by the server:")
	for _, def := range cat.Schemas() {
		fmt.Fprintf(out, "- %s: %s\n", def.Name, def.Description)
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			slog.Debug("Translated tool schema", "tool", def.Name, "parameters", prettyJSON(mustJSON(def.Parameters)))
		}
	}
	if cat.Len() == 0 {
		fmt.Fprintln(out, "(none)")
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func prettyJSON(raw string) string {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return raw
	}
	return string(b)
}
