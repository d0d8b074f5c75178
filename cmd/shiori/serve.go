package main

import (
	"fmt"

	"github.com/harunnryd/shiori/internal/config"
	"github.com/harunnryd/shiori/internal/server"
	"github.com/harunnryd/shiori/internal/tool"
	_ "github.com/harunnryd/shiori/internal/tool/builtin"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the book search MCP server over SSE",
	Long: `Serves the built-in tools to MCP clients. Clients open GET /sse and post
messages to /messages/?session_id=<id>. /health and /metrics are also exposed.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := builtinOptions(cfg.Tools)
		if err != nil {
			return err
		}
		registry, err := tool.NewBuiltinRegistry(opts)
		if err != nil {
			return fmt.Errorf("failed to initialize tools: %w", err)
		}

		signals := NewSignalHandler(cmd.Context())
		signals.Start()
		defer signals.Stop()

		return server.New(&cfg.Server, registry).Run(signals.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", config.DefaultServerHost, "host address to bind")
	serveCmd.Flags().Int("port", config.DefaultServerPort, "port to listen on")
}

func builtinOptions(cfg config.ToolsConfig) (tool.BuiltinOptions, error) {
	timeout, err := config.DurationOrDefault(cfg.Gutenberg.Timeout, config.DefaultGutenbergTimeout)
	if err != nil {
		return tool.BuiltinOptions{}, fmt.Errorf("parse gutenberg timeout: %w", err)
	}
	return tool.BuiltinOptions{
		GutenbergBaseURL:    cfg.Gutenberg.BaseURL,
		GutenbergTimeout:    timeout,
		GutenbergRateLimit:  cfg.Gutenberg.RateLimit,
		GutenbergRateBurst:  cfg.Gutenberg.RateBurst,
		GutenbergMaxResults: cfg.Gutenberg.MaxResults,
	}, nil
}
