// Package embedding turns text into fixed-length vectors.
//
// A Provider talks to an embedding backend. The Gateway wraps a provider
// with a per-call timeout, a rate limit and a content-hash cache, and it
// never fails: when the provider cannot answer it substitutes a
// deterministic hash-derived vector flagged as a fallback.
package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Provider generates embeddings from a backend model.
type Provider interface {
	// Embed returns the vector for text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the vector length the provider is configured for.
	Dimensions() int
	// Name identifies the provider in logs.
	Name() string
}

// Provider names accepted in configuration
const (
	ProviderGenAI  = "genai"
	ProviderOllama = "ollama"
	ProviderHash   = "hash"
)

// NewProvider builds the provider named in cfg. The hash provider returns
// nil: the gateway then serves every request from the fallback.
func NewProvider(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderGenAI:
		return NewGenAIProvider(ctx, cfg.APIKey, cfg.Model, cfg.Dimensions)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case ProviderHash, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want genai, ollama or hash)", cfg.Provider)
	}
}
