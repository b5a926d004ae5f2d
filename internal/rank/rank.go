// Package rank turns a query into an ordered list of scored chunks.
//
// The pipeline is fixed: embed the query, take K candidates from the
// index, normalize their scores, boost chunks that contain the query's
// numeric literals, drop anything under the minimum score, and sort.
package rank

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/fieldrag/internal/embed"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/index"
)

// Defaults applied by NewQuery.
const (
	DefaultK           = 5
	DefaultMinScore    = 0.7
	DefaultBoostFactor = 1.2
)

// Query is one retrieval request.
type Query struct {
	Text string
	// K is the number of candidates taken from the index.
	K int
	// MinScore drops matches scoring below it, after boosting.
	MinScore float64
	// BoostFactor multiplies the score per matched number; 1 disables boosting.
	BoostFactor float64
}

// NewQuery returns a query for text with default parameters.
func NewQuery(text string) Query {
	return Query{Text: text, K: DefaultK, MinScore: DefaultMinScore, BoostFactor: DefaultBoostFactor}
}

// Validate checks the query parameters.
func (q Query) Validate() error {
	switch {
	case q.K <= 0:
		return ragerrors.MalformedQuery(fmt.Sprintf("k must be positive, got %d", q.K))
	case q.MinScore < 0:
		return ragerrors.MalformedQuery(fmt.Sprintf("min_score must be non-negative, got %g", q.MinScore))
	case q.BoostFactor < 1:
		return ragerrors.MalformedQuery(fmt.Sprintf("boost_factor must be at least 1, got %g", q.BoostFactor))
	case strings.TrimSpace(q.Text) == "":
		return ragerrors.New(ragerrors.ErrCodeQueryEmpty, "query text is empty", nil).
			WithSuggestion("Provide the words or numbers to search for")
	}
	return nil
}

// ScoredMatch is a chunk with its final score.
type ScoredMatch struct {
	Source   string  `json:"source"`
	Text     string  `json:"text"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Engine runs queries against the current index.
type Engine struct {
	embedder embed.Embedder

	mu       sync.RWMutex
	searcher index.Searcher
}

// New creates an engine. searcher may be nil until an index exists.
func New(embedder embed.Embedder, searcher index.Searcher) *Engine {
	return &Engine{embedder: embedder, searcher: searcher}
}

// SetSearcher swaps the index queried by subsequent searches.
func (e *Engine) SetSearcher(s index.Searcher) {
	e.mu.Lock()
	e.searcher = s
	e.mu.Unlock()
}

func (e *Engine) currentSearcher() index.Searcher {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.searcher
}

// Search runs q and returns matches with score >= q.MinScore, best first.
// No qualifying match is an empty slice, not an error.
func (e *Engine) Search(ctx context.Context, q Query) ([]ScoredMatch, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	searcher := e.currentSearcher()
	if searcher == nil {
		return nil, ragerrors.IndexUnavailable("no index has been built yet", nil)
	}

	start := time.Now()

	raw, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, ragerrors.Embedding("failed to embed query", err)
	}
	vec, err := embed.Normalize(raw)
	if err != nil {
		return nil, ragerrors.Embedding("query embedding is empty", err)
	}

	candidates, err := searcher.Query(ctx, vec, q.K)
	if err != nil {
		if ragerrors.HasCode(err, ragerrors.ErrCodeDimensionMismatch) {
			return nil, ragerrors.IndexUnavailable("index does not match the embedding model", err)
		}
		return nil, ragerrors.Wrap(ragerrors.ErrCodeSearchFailed, err)
	}

	numbers := ExtractNumbers(q.Text)
	matches := make([]ScoredMatch, 0, len(candidates))
	for _, c := range candidates {
		score := NormalizeScore(c.RawScore, c.Kind)
		score = Boost(score, c.Text, numbers, q.BoostFactor)
		if score < q.MinScore {
			continue
		}
		matches = append(matches, ScoredMatch{
			Source:   c.Source,
			Text:     c.Text,
			Position: c.Position,
			Score:    score,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	slog.Debug("search_completed",
		slog.Int("candidates", len(candidates)),
		slog.Int("matches", len(matches)),
		slog.Int("numbers", len(numbers)),
		slog.Duration("duration", time.Since(start)))

	return matches, nil
}
