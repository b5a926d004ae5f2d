package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fieldrag/internal/embed"
	"github.com/Aman-CERP/fieldrag/internal/index"
)

// mapExtractor serves text from memory keyed by path.
type mapExtractor map[string]string

func (m mapExtractor) ExtractText(_ context.Context, path string) string {
	return m[path]
}

// flakyEmbedder wraps the static embedder and fails texts containing
// failOn. Batches containing such a text fail as a whole.
type flakyEmbedder struct {
	*embed.StaticEmbedder
	failOn string

	mu         sync.Mutex
	batchCalls int
}

func newFlaky(failOn string) *flakyEmbedder {
	return &flakyEmbedder{StaticEmbedder: embed.NewStaticEmbedder(32), failOn: failOn}
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("provider rejected text")
	}
	return f.StaticEmbedder.Embed(ctx, text)
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func words(n int, prefix string) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(w, " ")
}

func newTestPipeline(t *testing.T, e embed.Embedder, docs mapExtractor) (*Pipeline, string) {
	t.Helper()
	indexPath := filepath.Join(t.TempDir(), "index")
	p := New(Config{IndexPath: indexPath, ChunkSize: 150, Workers: 2, BatchSize: 4, Index: index.DefaultConfig()}, e, docs)
	return p, indexPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
