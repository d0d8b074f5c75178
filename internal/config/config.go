package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/shiori/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Chat      ChatConfig      `koanf:"chat"`
	Models    ModelsConfig    `koanf:"models"`
	Transport TransportConfig `koanf:"transport"`
	Server    ServerConfig    `koanf:"server"`
	Tools     ToolsConfig     `koanf:"tools"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

type ChatConfig struct {
	SystemPrompt  string `koanf:"system_prompt"`
	MaxToolRounds int    `koanf:"max_tool_rounds"`
	ModelTimeout  string `koanf:"model_timeout"`
	TranscriptDir string `koanf:"transcript_dir"`
}

type TransportConfig struct {
	OpenTimeout   string `koanf:"open_timeout"`
	ListTimeout   string `koanf:"list_timeout"`
	InvokeTimeout string `koanf:"invoke_timeout"`
	RequireTools  bool   `koanf:"require_tools"`
}

type ModelsConfig struct {
	Default  string          `koanf:"default"`
	Provider string          `koanf:"provider"`
	BaseURL  string          `koanf:"base_url"`
	Fallback string          `koanf:"fallback"`
	Registry []ModelRegistry `koanf:"registry"`
}

type ModelRegistry struct {
	Name     string `koanf:"name"`
	Provider string `koanf:"provider"`
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
}

type ServerConfig struct {
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	ReadTimeout     string `koanf:"read_timeout"`
	IdleTimeout     string `koanf:"idle_timeout"`
	ShutdownTimeout string `koanf:"shutdown_timeout"`
	KeepAlive       string `koanf:"keep_alive"`
}

type ToolsConfig struct {
	Gutenberg GutenbergToolConfig `koanf:"gutenberg"`
}

type GutenbergToolConfig struct {
	BaseURL    string  `koanf:"base_url"`
	Timeout    string  `koanf:"timeout"`
	RateLimit  float64 `koanf:"rate_limit"`
	RateBurst  int     `koanf:"rate_burst"`
	MaxResults int     `koanf:"max_results"`
}

const (
	DefaultLogLevel               = "info"
	DefaultChatSystemPrompt       = "You are a helpful assistant that helps users find and learn about books."
	DefaultChatMaxToolRounds      = 1
	MaxChatToolRounds             = 3
	DefaultChatModelTimeout       = "120s"
	DefaultTransportOpenTimeout   = "30s"
	DefaultTransportListTimeout   = "30s"
	DefaultTransportInvokeTimeout = "60s"
	DefaultTransportRequireTools  = false
	DefaultModel                  = "deepseek/deepseek-chat-v3-0324"
	DefaultModelProvider          = "openai"
	DefaultOpenRouterBaseURL      = "https://openrouter.ai/api/v1"
	DefaultOpenAIBaseURL          = "https://api.openai.com/v1"
	DefaultOllamaBaseURL          = "http://localhost:11434/v1"
	DefaultOllamaAPIKey           = "ollama"
	DefaultServerHost             = "0.0.0.0"
	DefaultServerPort             = 8080
	DefaultServerReadTimeout      = "10s"
	DefaultServerIdleTimeout      = "120s"
	DefaultServerShutdownTimeout  = "5s"
	DefaultServerKeepAlive        = "30s"
	DefaultGutenbergBaseURL       = "https://gutendex.com/books"
	DefaultGutenbergTimeout       = "30s"
	DefaultGutenbergRateLimit     = 2.0
	DefaultGutenbergRateBurst     = 4
	DefaultGutenbergMaxResults    = 32
)

// flagKeys maps plain CLI flag names to config keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"model":           "models.default",
	"provider":        "models.provider",
	"base-url":        "models.base_url",
	"system-prompt":   "chat.system_prompt",
	"max-tool-rounds": "chat.max_tool_rounds",
	"host":            "server.host",
	"port":            "server.port",
}

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	model := strings.TrimSpace(os.Getenv("MODEL"))
	if model == "" {
		model = DefaultModel
	}

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"log.level":                   DefaultLogLevel,
		"chat.system_prompt":          DefaultChatSystemPrompt,
		"chat.max_tool_rounds":        DefaultChatMaxToolRounds,
		"chat.model_timeout":          DefaultChatModelTimeout,
		"chat.transcript_dir":         filepath.Join(os.Getenv("HOME"), ".shiori", "transcripts"),
		"transport.open_timeout":      DefaultTransportOpenTimeout,
		"transport.list_timeout":      DefaultTransportListTimeout,
		"transport.invoke_timeout":    DefaultTransportInvokeTimeout,
		"transport.require_tools":     DefaultTransportRequireTools,
		"models.default":              model,
		"models.provider":             DefaultModelProvider,
		"server.host":                 DefaultServerHost,
		"server.port":                 DefaultServerPort,
		"server.read_timeout":         DefaultServerReadTimeout,
		"server.idle_timeout":         DefaultServerIdleTimeout,
		"server.shutdown_timeout":     DefaultServerShutdownTimeout,
		"server.keep_alive":           DefaultServerKeepAlive,
		"tools.gutenberg.base_url":    DefaultGutenbergBaseURL,
		"tools.gutenberg.timeout":     DefaultGutenbergTimeout,
		"tools.gutenberg.rate_limit":  DefaultGutenbergRateLimit,
		"tools.gutenberg.rate_burst":  DefaultGutenbergRateBurst,
		"tools.gutenberg.max_results": DefaultGutenbergMaxResults,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		expanded, err := pathutil.Expand(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(expanded), yaml.Parser()); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			globalPath := filepath.Join(home, ".shiori", "config.yaml")
			if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
				slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
			}
		}
	}

	// Environment Variables: SHIORI_CHAT__MAX_TOOL_ROUNDS -> chat.max_tool_rounds
	k.Load(env.Provider("SHIORI_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "SHIORI_")), "__", ".")
	}), nil)

	// CLI Flags
	if cmd != nil {
		flags := cmd.Flags()
		k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	normalizeModels(&cfg.Models)
	normalizeChat(&cfg.Chat)

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	injectAPIKeys(&cfg.Models)

	return &cfg, nil
}

// normalizeModels makes sure the default model has a registry entry.
// models.base_url only applies to that synthesized entry.
func normalizeModels(models *ModelsConfig) {
	if models.Provider == "" {
		models.Provider = DefaultModelProvider
	}
	// Other providers fall back to their own endpoint when base_url is unset.
	if models.BaseURL == "" && models.Provider == DefaultModelProvider {
		models.BaseURL = DefaultOpenRouterBaseURL
	}

	hasDefault := false
	for i, m := range models.Registry {
		if m.Provider == "" {
			models.Registry[i].Provider = DefaultModelProvider
		}
		if m.Name == models.Default {
			hasDefault = true
		}
	}

	if !hasDefault && models.Default != "" {
		models.Registry = append(models.Registry, ModelRegistry{
			Name:     models.Default,
			Provider: models.Provider,
			BaseURL:  models.BaseURL,
		})
	}
}

func normalizeChat(chat *ChatConfig) {
	if chat.MaxToolRounds < 1 {
		chat.MaxToolRounds = DefaultChatMaxToolRounds
	}
	if chat.MaxToolRounds > MaxChatToolRounds {
		slog.Warn("chat.max_tool_rounds capped", "requested", chat.MaxToolRounds, "max", MaxChatToolRounds)
		chat.MaxToolRounds = MaxChatToolRounds
	}
}

// injectAPIKeys fills empty registry keys from the standard provider env vars.
func injectAPIKeys(models *ModelsConfig) {
	openRouterKey := os.Getenv("OPENROUTER_API_KEY")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	geminiKey := os.Getenv("GEMINI_API_KEY")

	for i, m := range models.Registry {
		if m.APIKey != "" {
			continue
		}

		switch m.Provider {
		case "openai":
			primary, secondary := openAIKey, openRouterKey
			if m.BaseURL == "" || strings.Contains(m.BaseURL, "openrouter.ai") {
				primary, secondary = openRouterKey, openAIKey
			}
			if primary != "" {
				models.Registry[i].APIKey = primary
			} else {
				models.Registry[i].APIKey = secondary
			}
		case "anthropic":
			models.Registry[i].APIKey = anthropicKey
		case "gemini":
			models.Registry[i].APIKey = geminiKey
		}
	}
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	transcriptDir, err := expandConfiguredPath(cfg.Chat.TranscriptDir)
	if err != nil {
		return err
	}
	if transcriptDir != "" {
		cfg.Chat.TranscriptDir = transcriptDir
	}

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
