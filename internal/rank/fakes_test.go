package rank

import (
	"context"
	"errors"

	"github.com/Aman-CERP/fieldrag/internal/index"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
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

func (f *fakeEmbedder) Dimensions() int                  { return len(f.vec) }
func (f *fakeEmbedder) ModelName() string                { return "fake" }
func (f *fakeEmbedder) Available(_ context.Context) bool { return f.err == nil }
func (f *fakeEmbedder) Close() error                     { return nil }

// fakeSearcher returns fixed candidates and records the k it was asked for.
type fakeSearcher struct {
	candidates []index.Candidate
	err        error
	gotK       int
}

func (f *fakeSearcher) Query(_ context.Context, _ []float32, k int) ([]index.Candidate, error) {
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	if k < len(f.candidates) {
		return f.candidates[:k], nil
	}
	return f.candidates, nil
}

var errProviderDown = errors.New("provider down")
