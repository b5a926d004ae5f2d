package embed

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedder_Static(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderStatic, Dimensions: 32})

	require.NoError(t, err)
	assert.IsType(t, &StaticEmbedder{}, e)
	assert.Equal(t, 32, e.Dimensions())
}

func TestNewEmbedder_StaticWithCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{Provider: "STATIC", CacheSize: 10})

	require.NoError(t, err)
	c, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, c.Inner())
}

func TestNewEmbedder_Ollama(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, http.StatusOK, &calls)

	e, err := NewEmbedder(context.Background(), Options{Provider: ProviderOllama, Host: srv.URL})

	require.NoError(t, err)
	assert.Equal(t, 3, e.Dimensions())
}

func TestNewEmbedder_OllamaUnreachable(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: ProviderOllama, Host: "http://127.0.0.1:1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ollama pull all-minilm")
}

func TestNewEmbedder_Unknown(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: "openai"})

	assert.Error(t, err)
}
