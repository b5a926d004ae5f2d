// Package service holds the long-lived fieldrag handles: the embedder,
// the loaded index and the ingestion pipeline. CLI commands, the MCP
// server and the watcher all go through one Service.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/Aman-CERP/fieldrag/internal/config"
	"github.com/Aman-CERP/fieldrag/internal/embed"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/extract"
	"github.com/Aman-CERP/fieldrag/internal/index"
	"github.com/Aman-CERP/fieldrag/internal/ingest"
	"github.com/Aman-CERP/fieldrag/internal/rank"
)

// Result is one search hit as returned to callers.
type Result struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Preview controls how much chunk text a Result carries.
type Preview struct {
	// MaxChars keeps the first MaxChars runes followed by "...".
	// 0 keeps the full text.
	MaxChars int
}

// FullText returns chunk text untruncated.
var FullText = Preview{}

// Apply truncates text according to the policy.
func (p Preview) Apply(text string) string {
	if p.MaxChars <= 0 || utf8.RuneCountInString(text) <= p.MaxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:p.MaxChars]) + "..."
}

// Option configures Open.
type Option func(*options)

type options struct {
	embedder  embed.Embedder
	extractor extract.Extractor
	offline   bool
}

// WithEmbedder uses e instead of building one from the config.
func WithEmbedder(e embed.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

// WithExtractor replaces the file extractor.
func WithExtractor(x extract.Extractor) Option {
	return func(o *options) { o.extractor = x }
}

// WithOffline forces the static embedder.
func WithOffline() Option {
	return func(o *options) { o.offline = true }
}

// Service is safe for concurrent use.
type Service struct {
	cfg      *config.Config
	embedder embed.Embedder
	engine   *rank.Engine
	pipeline *ingest.Pipeline

	mu    sync.RWMutex
	index *index.Index
}

// Open builds the embedder and loads the persisted index. A missing index
// is not an error; searches fail with IndexUnavailable until the first
// ingestion. A corrupt index is.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Service, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	embedder := o.embedder
	if embedder == nil {
		var err error
		if embedder, err = NewEmbedder(ctx, cfg, o.offline); err != nil {
			return nil, err
		}
	}

	extractor := o.extractor
	if extractor == nil {
		extractor = extract.New()
	}

	s := &Service{
		cfg:      cfg,
		embedder: embedder,
		engine:   rank.New(embedder, nil),
		pipeline: ingest.New(ingest.Config{
			IndexPath:  cfg.IndexPath(),
			SourceRoot: cfg.CorpusPath(),
			ChunkSize:  cfg.Chunking.ChunkSize,
			Workers:    cfg.Ingestion.Workers,
			BatchSize:  cfg.Embeddings.BatchSize,
			Index:      index.DefaultConfig(),
		}, embedder, extractor),
	}

	if err := s.Reload(ctx); err != nil {
		_ = embedder.Close()
		return nil, err
	}

	slog.Info("service_opened",
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()),
		slog.String("index", cfg.IndexPath()),
		slog.Bool("index_loaded", s.currentIndex() != nil))
	return s, nil
}

// NewEmbedder builds the embedder configured in cfg, or the static one
// when offline is set.
func NewEmbedder(ctx context.Context, cfg *config.Config, offline bool) (embed.Embedder, error) {
	provider := embed.ProviderType(cfg.Embeddings.Provider)
	if offline {
		provider = embed.ProviderStatic
	}
	e, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   provider,
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.OllamaHost,
		BatchSize:  cfg.Embeddings.BatchSize,
		Timeout:    cfg.Embeddings.Timeout,
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, ragerrors.Embedding("failed to initialize embedder", err)
	}
	return e, nil
}

// Reload re-reads the persisted index, picking up writes by other
// processes.
func (s *Service) Reload(ctx context.Context) error {
	var loadErr error
	s.pipeline.Exclusive(func() {
		ix, err := index.Load(ctx, s.cfg.IndexPath(), s.embedder.Dimensions())
		if err != nil && !errors.Is(err, index.ErrNotFound) {
			loadErr = err
			return
		}
		if err != nil {
			slog.Debug("index_not_found", slog.String("path", s.cfg.IndexPath()))
			ix = nil
		}
		s.setIndex(ix)
	})
	return loadErr
}

func (s *Service) setIndex(ix *index.Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = ix

	if ix == nil {
		s.engine.SetSearcher(nil)
		return
	}
	s.engine.SetSearcher(ix)
}

func (s *Service) currentIndex() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

// DefaultQuery returns a query for text using the configured retrieval
// parameters.
func (s *Service) DefaultQuery(text string) rank.Query {
	return rank.Query{
		Text:        text,
		K:           s.cfg.Retrieval.TopK,
		MinScore:    s.cfg.Retrieval.MinScore,
		BoostFactor: s.cfg.Retrieval.BoostFactor,
	}
}

// DefaultPreview returns the configured preview policy.
func (s *Service) DefaultPreview() Preview {
	return Preview{MaxChars: s.cfg.Retrieval.PreviewChars}
}

// Search runs text with the configured parameters and preview policy.
// No qualifying match returns an empty slice.
func (s *Service) Search(ctx context.Context, text string) ([]Result, error) {
	return s.SearchWith(ctx, s.DefaultQuery(text), s.DefaultPreview())
}

// SearchWith runs q and renders matches with preview.
func (s *Service) SearchWith(ctx context.Context, q rank.Query, preview Preview) ([]Result, error) {
	matches, err := s.engine.Search(ctx, q)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "search_failed", ragerrors.LogAttrs(err)...)
		return nil, err
	}

	results := make([]Result, len(matches))
	for i, m := range matches {
		results[i] = Result{Source: m.Source, Content: preview.Apply(m.Text), Score: m.Score}
	}
	return results, nil
}

// Ingest indexes documents. An empty path rebuilds the index from the
// corpus directory. A directory merges every supported file in it and a
// file path merges that one document.
func (s *Service) Ingest(ctx context.Context, path string) (*ingest.Report, error) {
	req, err := s.request(ctx, path)
	if err != nil {
		return nil, err
	}

	req.Commit = s.setIndex
	report, err := s.pipeline.Run(ctx, req)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelError, "ingest_failed", ragerrors.LogAttrs(err)...)
		return nil, err
	}
	return report, nil
}

func (s *Service) request(ctx context.Context, path string) (ingest.Request, error) {
	if path == "" {
		files, err := s.collect(ctx, s.cfg.CorpusPath())
		if err != nil {
			return ingest.Request{}, err
		}
		return ingest.Request{Paths: files, Mode: ingest.ModeRebuild}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return ingest.Request{}, ragerrors.New(ragerrors.ErrCodeFileNotFound,
			fmt.Sprintf("cannot read %s", path), err)
	}
	if info.IsDir() {
		files, err := s.collect(ctx, path)
		if err != nil {
			return ingest.Request{}, err
		}
		return ingest.Request{Paths: files, Mode: ingest.ModeMerge}, nil
	}
	return ingest.Request{Paths: []string{path}, Mode: ingest.ModeMerge}, nil
}

func (s *Service) collect(ctx context.Context, dir string) ([]string, error) {
	files, err := ingest.CollectFiles(ctx, dir, s.cfg.HasExtension)
	if err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeInvalidPath,
			fmt.Sprintf("cannot read corpus directory %s", dir), err).
			WithSuggestion("Set paths.corpus_dir in .fieldrag.yaml or pass a path")
	}
	if len(files) == 0 {
		return nil, ragerrors.EmptyCorpus(
			fmt.Sprintf("no %v documents found in %s", s.cfg.Paths.Extensions, dir), nil)
	}
	return files, nil
}

// Status describes the service state.
type Status struct {
	Ready     bool   `json:"ready"`
	IndexPath string `json:"index_path"`
	Provider  string `json:"provider"`
	index.Stats
}

// Stats reports on the loaded index. Ready is false before the first
// ingestion.
func (s *Service) Stats() Status {
	st := Status{IndexPath: s.cfg.IndexPath(), Provider: s.cfg.Embeddings.Provider}
	ix := s.currentIndex()
	if ix == nil {
		st.Model = s.embedder.ModelName()
		st.Dimensions = s.embedder.Dimensions()
		st.Sources = []index.SourceStat{}
		return st
	}
	st.Ready = true
	st.Stats = ix.Stats()
	return st
}

// Available reports whether the embedding provider is reachable.
func (s *Service) Available(ctx context.Context) bool {
	return s.embedder.Available(ctx)
}

// Embedder returns the service's embedder.
func (s *Service) Embedder() embed.Embedder {
	return s.embedder
}

// Config returns the configuration the service was opened with.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Close releases the embedder.
func (s *Service) Close() error {
	return s.embedder.Close()
}
