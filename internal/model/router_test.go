package model

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/shiori/internal/config"
	apperrors "github.com/harunnryd/shiori/internal/errors"
	"github.com/harunnryd/shiori/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	resp   *contract.CompletionResponse
	err    error
	models []string
}

func (s *stubGenerator) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	s.models = append(s.models, req.Model)
	return s.resp, s.err
}

func TestRouter_CompleteUsesDefaultModel(t *testing.T) {
	primary := &stubGenerator{resp: &contract.CompletionResponse{Content: "hello"}}
	r := NewRouterWithProviders(config.ModelsConfig{Default: "primary"}, map[string]Provider{
		"primary": NewProviderAdapter("primary", "openai", primary),
	})

	resp, err := r.Complete(context.Background(), contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, []string{"primary"}, primary.models)
}

func TestRouter_FallbackOnFailure(t *testing.T) {
	primary := &stubGenerator{err: errors.New("502 bad gateway")}
	backup := &stubGenerator{resp: &contract.CompletionResponse{Content: "from backup"}}
	r := NewRouterWithProviders(config.ModelsConfig{Default: "primary", Fallback: "backup"}, map[string]Provider{
		"primary": NewProviderAdapter("primary", "openai", primary),
		"backup":  NewProviderAdapter("backup", "anthropic", backup),
	})

	resp, err := r.Route(context.Background(), "primary", contract.CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from backup", resp.Content)
	assert.Equal(t, []string{"backup"}, backup.models, "request model follows the fallback")
}

func TestRouter_FailureIsModelCallError(t *testing.T) {
	primary := &stubGenerator{err: errors.New("502 bad gateway")}
	r := NewRouterWithProviders(config.ModelsConfig{Default: "primary"}, map[string]Provider{
		"primary": NewProviderAdapter("primary", "openai", primary),
	})

	_, err := r.Complete(context.Background(), contract.CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrModelCall)
	assert.Contains(t, err.Error(), "502 bad gateway")
}

func TestRouter_NilResponseIsModelCallError(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{Default: "primary"}, map[string]Provider{
		"primary": NewProviderAdapter("primary", "openai", &stubGenerator{}),
	})

	_, err := r.Complete(context.Background(), contract.CompletionRequest{})
	assert.ErrorIs(t, err, apperrors.ErrModelCall)
}

func TestRouter_UnknownModel(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{}, nil)

	_, err := r.Route(context.Background(), "ghost", contract.CompletionRequest{})
	assert.ErrorIs(t, err, apperrors.ErrModelCall)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRouter_CancelledContext(t *testing.T) {
	r := NewRouterWithProviders(config.ModelsConfig{Default: "primary"}, map[string]Provider{
		"primary": NewProviderAdapter("primary", "openai", &stubGenerator{resp: &contract.CompletionResponse{}}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Complete(ctx, contract.CompletionRequest{})
	assert.ErrorIs(t, err, apperrors.ErrModelCall)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewModelRouter_FromRegistry(t *testing.T) {
	r, err := NewModelRouter(config.ModelsConfig{
		Default: "deepseek/deepseek-chat-v3-0324",
		Registry: []config.ModelRegistry{
			{Name: "deepseek/deepseek-chat-v3-0324", Provider: "openai", APIKey: "k"},
			{Name: "llama3", Provider: "ollama"},
			{Name: "claude", Provider: "anthropic"},
			{Name: "mystery", Provider: "nope", APIKey: "k"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"deepseek/deepseek-chat-v3-0324", "llama3"}, r.ListModels())
	assert.NoError(t, r.Health(context.Background()))
}

func TestNewModelRouter_NoUsableProvider(t *testing.T) {
	_, err := NewModelRouter(config.ModelsConfig{
		Registry: []config.ModelRegistry{{Name: "m", Provider: "openai"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
