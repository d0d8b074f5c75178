package model

import (
	"context"

	"github.com/harunnryd/shiori/internal/model/contract"
)

type generator interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}

// ProviderAdapter binds a provider-specific client to a registry entry.
type ProviderAdapter struct {
	provider     generator
	name         string
	providerType string
}

func NewProviderAdapter(name, providerType string, provider generator) *ProviderAdapter {
	return &ProviderAdapter{provider: provider, name: name, providerType: providerType}
}

// Generate fills in the registry model name when the request leaves it empty.
func (a *ProviderAdapter) Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if req.Model == "" {
		req.Model = a.name
	}
	return a.provider.Generate(ctx, req)
}

func (a *ProviderAdapter) Name() string {
	return a.name
}

func (a *ProviderAdapter) Type() string {
	return a.providerType
}

func (a *ProviderAdapter) Health(ctx context.Context) error {
	return nil
}
