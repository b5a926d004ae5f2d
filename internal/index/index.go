// Package index holds fieldrag's vector index: an HNSW graph for
// approximate nearest-neighbour search plus the chunk records it points to.
//
// An Index lives in memory. Persist writes it to a directory containing
// records.db (SQLite) and vectors.hnsw (the exported graph); Load reads it
// back. SaveAtomic stages a write next to the target and swaps it in with
// a rename, so readers never observe a half-written index.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/coder/hnsw"

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
)

// ScoreKind says how a Candidate's RawScore must be read.
type ScoreKind int

const (
	// ScoreKindCosineDistance is 1 - cosine similarity; lower is better.
	ScoreKindCosineDistance ScoreKind = iota
	// ScoreKindL2Distance is Euclidean distance; lower is better.
	ScoreKindL2Distance
	// ScoreKindSimilarity is already a similarity; higher is better.
	ScoreKindSimilarity
)

// String returns the kind's name.
func (k ScoreKind) String() string {
	switch k {
	case ScoreKindCosineDistance:
		return "cosine_distance"
	case ScoreKindL2Distance:
		return "l2_distance"
	case ScoreKindSimilarity:
		return "similarity"
	default:
		return fmt.Sprintf("ScoreKind(%d)", int(k))
	}
}

// Record is a chunk with its unit-normalized embedding.
type Record struct {
	Text     string
	Source   string
	Position int
	Vector   []float32
}

// Candidate is a raw nearest-neighbour hit.
type Candidate struct {
	Text     string
	Source   string
	Position int
	RawScore float32
	Kind     ScoreKind
}

// Searcher is the read side of the index used by ranking.
type Searcher interface {
	Query(ctx context.Context, vec []float32, k int) ([]Candidate, error)
}

// SourceStat counts the chunks of one document.
type SourceStat struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
}

// Stats describes an index.
type Stats struct {
	Chunks     int          `json:"chunks"`
	Sources    []SourceStat `json:"sources"`
	Dimensions int          `json:"dimensions"`
	Model      string       `json:"model"`
	Orphans    int          `json:"orphans"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// Config tunes the HNSW graph.
type Config struct {
	M        int
	EfSearch int
}

// DefaultConfig returns coder/hnsw's recommended parameters.
func DefaultConfig() Config {
	return Config{M: 16, EfSearch: 20}
}

type entry struct {
	text     string
	source   string
	position int
	vector   []float32
}

// Index is an in-memory vector index. It is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	cfg    Config
	graph  *hnsw.Graph[uint64]
	nodes  int // nodes in graph, including lazily deleted ones
	live   map[uint64]*entry
	order  []uint64 // insertion order of keys, for stable listing
	next   uint64
	dims   int
	model  string
	create time.Time
	update time.Time
}

var _ Searcher = (*Index)(nil)

// New creates an empty index. dims may be 0, in which case the first
// Write fixes it.
func New(dims int, model string, cfg Config) *Index {
	if cfg.M <= 0 {
		cfg.M = DefaultConfig().M
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultConfig().EfSearch
	}
	now := time.Now().UTC()
	return &Index{
		cfg:    cfg,
		graph:  newGraph(cfg),
		live:   make(map[uint64]*entry),
		dims:   dims,
		model:  model,
		create: now,
		update: now,
	}
}

func newGraph(cfg Config) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Write appends records. Every vector must have the index dimension.
func (ix *Index) Write(records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dims := ix.dims
	if dims == 0 {
		dims = len(records[0].Vector)
	}
	for i, r := range records {
		if r.Text == "" {
			return ragerrors.ValidationError(fmt.Sprintf("record %d has empty text", i), nil)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dims {
			return ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("record %d has dimension %d, index expects %d", i, len(r.Vector), dims), nil)
		}
	}
	ix.dims = dims

	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)

		key := ix.next
		ix.next++
		ix.graph.Add(hnsw.MakeNode(key, vec))
		ix.nodes++
		ix.live[key] = &entry{text: r.Text, source: r.Source, position: r.Position, vector: vec}
		ix.order = append(ix.order, key)
	}
	ix.update = time.Now().UTC()
	return nil
}

// Query returns up to k nearest live records, closest first.
func (ix *Index) Query(_ context.Context, vec []float32, k int) ([]Candidate, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if k <= 0 || len(ix.live) == 0 {
		return []Candidate{}, nil
	}
	if len(vec) != ix.dims {
		return nil, ragerrors.New(ragerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has dimension %d, index expects %d", len(vec), ix.dims), nil)
	}

	// Lazily deleted nodes can occupy result slots; over-fetch by their count.
	nodes := ix.graph.Search(vec, k+(ix.nodes-len(ix.live)))

	out := make([]Candidate, 0, k)
	for _, n := range nodes {
		e, ok := ix.live[n.Key]
		if !ok {
			continue
		}
		out = append(out, Candidate{
			Text:     e.text,
			Source:   e.source,
			Position: e.position,
			RawScore: ix.graph.Distance(vec, n.Value),
			Kind:     ScoreKindCosineDistance,
		})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// RemoveSources drops every record whose source is in sources and returns
// how many were removed. Graph nodes are orphaned, not deleted, and are
// compacted away on the next Clone or Persist.
func (ix *Index) RemoveSources(sources ...string) int {
	if len(sources) == 0 {
		return 0
	}
	drop := make(map[string]bool, len(sources))
	for _, s := range sources {
		drop[s] = true
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	kept := ix.order[:0]
	for _, key := range ix.order {
		if e := ix.live[key]; e != nil && drop[e.source] {
			delete(ix.live, key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	ix.order = kept
	if removed > 0 {
		ix.update = time.Now().UTC()
	}
	return removed
}

// Clone returns an independent, compacted copy of the index.
func (ix *Index) Clone() *Index {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	c := New(ix.dims, ix.model, ix.cfg)
	c.create = ix.create
	for _, key := range ix.order {
		e := ix.live[key]
		vec := make([]float32, len(e.vector))
		copy(vec, e.vector)
		c.addLocked(&entry{text: e.text, source: e.source, position: e.position, vector: vec})
	}
	c.update = ix.update
	return c
}

func (ix *Index) addLocked(e *entry) {
	key := ix.next
	ix.next++
	ix.graph.Add(hnsw.MakeNode(key, e.vector))
	ix.nodes++
	ix.live[key] = e
	ix.order = append(ix.order, key)
}

// Count returns the number of live records.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.live)
}

// Sources returns per-document chunk counts sorted by name.
func (ix *Index) Sources() []SourceStat {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.sourcesLocked()
}

func (ix *Index) sourcesLocked() []SourceStat {
	counts := make(map[string]int)
	for _, e := range ix.live {
		counts[e.source]++
	}
	out := make([]SourceStat, 0, len(counts))
	for name, n := range counts {
		out = append(out, SourceStat{Name: name, Chunks: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dimensions returns the vector dimension, or 0 for an empty index that
// has not been given one.
func (ix *Index) Dimensions() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}

// Model returns the embedding model the vectors came from.
func (ix *Index) Model() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.model
}

// Stats returns a snapshot of the index.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return Stats{
		Chunks:     len(ix.live),
		Sources:    ix.sourcesLocked(),
		Dimensions: ix.dims,
		Model:      ix.model,
		Orphans:    ix.nodes - len(ix.live),
		CreatedAt:  ix.create,
		UpdatedAt:  ix.update,
	}
}

// Records returns the live records in insertion order.
func (ix *Index) Records() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	out := make([]Record, 0, len(ix.order))
	for _, key := range ix.order {
		e := ix.live[key]
		out = append(out, Record{Text: e.text, Source: e.source, Position: e.position, Vector: e.vector})
	}
	return out
}
