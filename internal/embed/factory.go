package embed

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProviderType names an embedding backend.
type ProviderType string

const (
	// ProviderOllama calls a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderStatic uses the offline hash embedder.
	ProviderStatic ProviderType = "static"
)

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	BatchSize  int
	Timeout    time.Duration
	Dimensions int
	// CacheSize wraps the embedder in an LRU cache; 0 disables caching.
	CacheSize int
}

// NewEmbedder builds the embedder described by opts.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	var (
		embedder Embedder
		err      error
	)

	switch ProviderType(strings.ToLower(string(opts.Provider))) {
	case ProviderOllama, "":
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:      opts.Host,
			Model:     opts.Model,
			BatchSize: opts.BatchSize,
			Timeout:   opts.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w\n\nTo fix:\n  1. Start Ollama: ollama serve\n  2. Pull the model: ollama pull %s\n  3. Or run offline: --offline (static embeddings)", err, modelOrDefault(opts.Model))
		}
	case ProviderStatic:
		embedder = NewStaticEmbedder(opts.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}

	if opts.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}

func modelOrDefault(m string) string {
	if m == "" {
		return DefaultOllamaModel
	}
	return m
}
