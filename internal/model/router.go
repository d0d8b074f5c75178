package model

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/harunnryd/shiori/internal/config"
	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/logger"
	"github.com/harunnryd/shiori/internal/model/contract"
	anthropicProvider "github.com/harunnryd/shiori/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/shiori/internal/model/providers/gemini"
	openaiProvider "github.com/harunnryd/shiori/internal/model/providers/openai"
)

// DefaultModelRouter implements ModelRouter and ChatCompleter.
type DefaultModelRouter struct {
	cfg       config.ModelsConfig
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewModelRouter creates a new model router
func NewModelRouter(cfg config.ModelsConfig) (*DefaultModelRouter, error) {
	router := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider),
	}

	if err := router.initProviders(); err != nil {
		return nil, err
	}

	return router, nil
}

// NewRouterWithProviders builds a router around already constructed providers.
func NewRouterWithProviders(cfg config.ModelsConfig, providers map[string]Provider) *DefaultModelRouter {
	r := &DefaultModelRouter{
		cfg:       cfg,
		providers: make(map[string]Provider, len(providers)),
	}
	for name, p := range providers {
		r.providers[name] = p
	}
	return r
}

// Complete routes to the request's model, or the configured default when empty.
func (r *DefaultModelRouter) Complete(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = r.cfg.Default
	}
	return r.Route(ctx, model, req)
}

// Route routes a completion request to the appropriate provider
func (r *DefaultModelRouter) Route(ctx context.Context, model string, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	turnID := logger.GetTurnID(ctx)

	slog.Debug("Routing completion request", "model", model, "messages", len(req.Messages), "tools", len(req.Tools), "turn_id", turnID)

	resolved, provider, err := r.resolveProvider(ctx, model)
	if err != nil {
		return nil, err
	}

	return r.executeWithFallback(ctx, resolved, provider, req, turnID)
}

// ListModels returns all registered model names
func (r *DefaultModelRouter) ListModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	models := make([]string, 0, len(r.providers))
	for name := range r.providers {
		models = append(models, name)
	}
	sort.Strings(models)

	return models
}

// Health checks the health of the router and its providers
func (r *DefaultModelRouter) Health(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, provider := range r.providers {
		if err := provider.Health(ctx); err != nil {
			slog.Warn("Provider unhealthy", "provider", name, "error", err)
			return apperrors.Transient(fmt.Sprintf("provider %s unhealthy", name))
		}
	}

	return nil
}

// initProviders initializes all providers from configuration
func (r *DefaultModelRouter) initProviders() error {
	for _, entry := range r.cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "model", entry.Name, "error", err)
			continue
		}

		r.providers[entry.Name] = provider
		slog.Debug("Provider initialized", "name", entry.Name, "type", entry.Provider)
	}

	if len(r.providers) == 0 && len(r.cfg.Registry) > 0 {
		return fmt.Errorf("no providers initialized, check API keys: %w", apperrors.ErrInvalidInput)
	}

	return nil
}

// resolveProvider resolves a provider by model name with fallback
func (r *DefaultModelRouter) resolveProvider(ctx context.Context, model string) (string, Provider, error) {
	select {
	case <-ctx.Done():
		return "", nil, fmt.Errorf("provider resolution cancelled: %w: %w", ctx.Err(), apperrors.ErrModelCall)
	default:
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if provider, exists := r.providers[model]; exists {
		return model, provider, nil
	}

	slog.Warn("Model not found", "model", model)

	if r.cfg.Fallback != "" && model != r.cfg.Fallback {
		if fallbackProvider, ok := r.providers[r.cfg.Fallback]; ok {
			slog.Info("Using fallback model", "model", model, "fallback", r.cfg.Fallback)
			return r.cfg.Fallback, fallbackProvider, nil
		}
	}

	return "", nil, fmt.Errorf("model %s not found: %w: %w", model, apperrors.ErrNotFound, apperrors.ErrModelCall)
}

// executeWithFallback tries the resolved model, then the fallback model once.
func (r *DefaultModelRouter) executeWithFallback(ctx context.Context, model string, provider Provider, req contract.CompletionRequest, turnID string) (*contract.CompletionResponse, error) {
	currentModel := model
	currentProvider := provider

	for attempt := 0; attempt < 2; attempt++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("request execution cancelled: %w: %w", ctx.Err(), apperrors.ErrModelCall)
		default:
		}

		req.Model = currentModel
		resp, err := currentProvider.Generate(ctx, req)
		if err == nil {
			if resp == nil {
				return nil, apperrors.ModelCall(fmt.Sprintf("model %s returned no response", currentModel))
			}
			slog.Debug("Request completed", "model", currentModel, "attempt", attempt+1, "tool_calls", len(resp.ToolCalls), "turn_id", turnID)
			return resp, nil
		}

		slog.Error("Provider request failed", "model", currentModel, "attempt", attempt+1, "error", err, "turn_id", turnID)

		if r.cfg.Fallback == "" || currentModel == r.cfg.Fallback || ctx.Err() != nil {
			return nil, apperrors.WrapWithCategory(err, "provider request failed", apperrors.ErrModelCall)
		}

		r.mu.RLock()
		fallbackProvider, exists := r.providers[r.cfg.Fallback]
		r.mu.RUnlock()
		if !exists {
			return nil, apperrors.WrapWithCategory(err, "provider request failed", apperrors.ErrModelCall)
		}

		slog.Info("Attempting fallback", "from", currentModel, "to", r.cfg.Fallback)
		currentModel = r.cfg.Fallback
		currentProvider = fallbackProvider
	}

	return nil, apperrors.ModelCall("fallback exhausted")
}

// createProvider creates a provider instance based on registry entry
func createProvider(entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openai":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOpenRouterBaseURL
		}

		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for OpenAI-compatible provider (set OPENROUTER_API_KEY or OPENAI_API_KEY)")
		}

		return NewProviderAdapter(entry.Name, "openai", openaiProvider.New(entry.APIKey, baseURL, entry.Name)), nil

	case "ollama":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = config.DefaultOllamaBaseURL
		}

		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = config.DefaultOllamaAPIKey
		}

		return NewProviderAdapter(entry.Name, "ollama", openaiProvider.New(apiKey, baseURL, entry.Name)), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Anthropic provider")
		}

		return NewProviderAdapter(entry.Name, "anthropic", anthropicProvider.New(entry.APIKey, entry.BaseURL)), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, apperrors.InvalidInput("API key required for Gemini provider")
		}

		provider, err := geminiProvider.New(entry.APIKey)
		if err != nil {
			return nil, apperrors.WrapWithCategory(err, "failed to create Gemini provider", apperrors.ErrInternal)
		}

		return NewProviderAdapter(entry.Name, "gemini", provider), nil

	default:
		return nil, apperrors.InvalidInput(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
