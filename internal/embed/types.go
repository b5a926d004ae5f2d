// Package embed provides text embedding providers for fieldrag.
//
// Providers make a single attempt per call. A failure for one text is
// reported to the caller, which decides whether to skip or abort.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// DefaultBatchSize is the number of texts sent per provider request.
	DefaultBatchSize = 32

	// MaxBatchSize caps request size to bound memory.
	MaxBatchSize = 256

	// DefaultTimeout bounds a single provider request.
	DefaultTimeout = 60 * time.Second

	// StaticDimensions is the vector size of the static embedder.
	StaticDimensions = 256
)

// ErrZeroVector is returned by Normalize for a vector with no magnitude.
var ErrZeroVector = errors.New("embedding has zero norm")

// ErrClosed is returned by an embedder after Close.
var ErrClosed = errors.New("embedder is closed")

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts, preserving order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero (or non-finite)
// magnitude returns ErrZeroVector instead of dividing by zero.
func Normalize(v []float32) ([]float32, error) {
	mag := Norm(v)
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return nil, ErrZeroVector
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / mag)
	}
	return out, nil
}
