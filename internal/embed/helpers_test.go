package embed

import (
	"context"
	"errors"
	"sync"
)

// countingEmbedder records calls and returns fixed vectors.
type countingEmbedder struct {
	mu         sync.Mutex
	embedCalls int
	batchCalls int
	batchSizes []int
	fail       bool
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.embedCalls++
	if c.fail {
		return nil, errors.New("provider down")
	}
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchCalls++
	c.batchSizes = append(c.batchSizes, len(texts))
	if c.fail {
		return nil, errors.New("provider down")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) Dimensions() int                  { return 2 }
func (c *countingEmbedder) ModelName() string                { return "counting" }
func (c *countingEmbedder) Available(_ context.Context) bool { return true }
func (c *countingEmbedder) Close() error                     { return nil }
