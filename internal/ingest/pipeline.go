// Package ingest turns documents into a persisted vector index.
//
// A run extracts text, chunks it, embeds and unit-normalizes every chunk,
// writes the records into a staging index and swaps that index in
// atomically. Runs are serialized within the process by a mutex and
// across processes by a lock file next to the index directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/fieldrag/internal/chunk"
	"github.com/Aman-CERP/fieldrag/internal/embed"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/extract"
	"github.com/Aman-CERP/fieldrag/internal/index"
)

// Mode selects how a run treats the existing index.
type Mode int

const (
	// ModeRebuild replaces the index with the run's documents only.
	ModeRebuild Mode = iota
	// ModeMerge keeps the existing index and replaces the chunks of the
	// run's documents.
	ModeMerge
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeMerge {
		return "merge"
	}
	return "rebuild"
}

// Request names the documents of a run.
type Request struct {
	Paths []string
	Mode  Mode

	// Commit, when set, receives the new index while the write lock is
	// still held, so callers publishing it in memory observe runs in the
	// same order as the disk.
	Commit func(*index.Index)
}

// Config configures a Pipeline.
type Config struct {
	IndexPath string
	// SourceRoot is the directory document sources are named relative to.
	// Documents outside it are named by their base name.
	SourceRoot string
	ChunkSize  int
	Workers   int
	BatchSize int
	Index     index.Config
}

// Pipeline runs ingestion. It is safe for concurrent use; runs execute
// one at a time.
type Pipeline struct {
	cfg       Config
	embedder  embed.Embedder
	extractor extract.Extractor
	chunker   *chunk.Chunker

	mu   sync.Mutex
	lock *FileLock
}

// New creates a pipeline writing to cfg.IndexPath.
func New(cfg Config, embedder embed.Embedder, extractor extract.Extractor) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embed.DefaultBatchSize
	}
	if cfg.BatchSize > embed.MaxBatchSize {
		cfg.BatchSize = embed.MaxBatchSize
	}
	return &Pipeline{
		cfg:       cfg,
		embedder:  embedder,
		extractor: extractor,
		chunker:   chunk.New(cfg.ChunkSize),
		lock:      NewFileLock(cfg.IndexPath),
	}
}

// Run ingests req.Paths. On any error the persisted index is left as it
// was. The returned report carries the new index on success.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := slog.With(slog.String("run_id", runID), slog.String("mode", req.Mode.String()))

	log.Info("ingest_started", slog.Int("files", len(req.Paths)))

	texts, err := p.extractAll(ctx, req.Paths)
	if err != nil {
		return nil, err
	}

	report := &Report{RunID: runID, IndexPath: p.cfg.IndexPath}
	var chunks []chunk.Chunk
	for i, path := range req.Paths {
		docChunks := p.chunker.Chunk(SourceName(p.cfg.SourceRoot, path), texts[i])
		if len(docChunks) == 0 {
			log.Warn("document_skipped", slog.String("path", path), slog.String("reason", "no extractable text"))
			report.FilesSkipped++
			report.Skipped = append(report.Skipped, path)
			continue
		}
		report.FilesIndexed++
		chunks = append(chunks, docChunks...)
	}

	if len(chunks) == 0 {
		return nil, ragerrors.EmptyCorpus(
			fmt.Sprintf("no text could be extracted from %d document(s)", len(req.Paths)), nil)
	}

	records, failures := p.embedChunks(ctx, log, chunks)
	report.EmbeddingFailures = failures
	if len(records) == 0 {
		return nil, ragerrors.Embedding(fmt.Sprintf("all %d chunks failed to embed", len(chunks)), nil).
			WithDetail("model", p.embedder.ModelName())
	}

	ix, err := p.write(ctx, req, records)
	if err != nil {
		return nil, err
	}

	report.Status = StatusOK
	report.Index = ix
	report.NumDocs = len(records)
	report.Duration = time.Since(start)
	report.DurationMS = report.Duration.Milliseconds()
	report.Message = fmt.Sprintf("Indexed %d chunks from %d file(s)", report.NumDocs, report.FilesIndexed)

	log.Info("ingest_completed",
		slog.Int("chunks", report.NumDocs),
		slog.Int("files_indexed", report.FilesIndexed),
		slog.Int("files_skipped", report.FilesSkipped),
		slog.Int("embedding_failures", report.EmbeddingFailures),
		slog.Int("index_chunks", ix.Count()),
		slog.Duration("duration", report.Duration))

	return report, nil
}

// extractAll extracts every path in parallel. texts[i] belongs to paths[i].
func (p *Pipeline) extractAll(ctx context.Context, paths []string) ([]string, error) {
	texts := make([]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			texts[i] = p.extractor.ExtractText(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return texts, nil
}

// embedChunks embeds chunks batch by batch. A failed batch is retried one
// chunk at a time so a single bad chunk costs only itself. Chunks whose
// embedding fails or has zero norm are skipped and counted.
func (p *Pipeline) embedChunks(ctx context.Context, log *slog.Logger, chunks []chunk.Chunk) ([]index.Record, int) {
	records := make([]index.Record, 0, len(chunks))
	failures := 0

	for start := 0; start < len(chunks); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil || len(vectors) != len(batch) {
			if err == nil {
				err = fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), len(batch))
			}
			log.Warn("embed_batch_failed", slog.Int("size", len(batch)), slog.String("error", err.Error()))
			vectors = make([][]float32, len(batch))
			for i, text := range texts {
				v, err := p.embedder.Embed(ctx, text)
				if err != nil {
					log.Warn("embed_chunk_failed",
						slog.String("source", batch[i].Source),
						slog.Int("position", batch[i].Position),
						slog.String("error", err.Error()))
					continue
				}
				vectors[i] = v
			}
		}

		for i, c := range batch {
			if vectors[i] == nil {
				failures++
				continue
			}
			unit, err := embed.Normalize(vectors[i])
			if err != nil {
				log.Warn("embed_chunk_failed",
					slog.String("source", c.Source),
					slog.Int("position", c.Position),
					slog.String("error", err.Error()))
				failures++
				continue
			}
			records = append(records, index.Record{
				Text:     c.Text,
				Source:   c.Source,
				Position: c.Position,
				Vector:   unit,
			})
		}
	}
	return records, failures
}

// Exclusive runs fn while no run of this pipeline is writing.
func (p *Pipeline) Exclusive(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn()
}

// write builds the new index and swaps it in under both locks.
func (p *Pipeline) write(ctx context.Context, req Request, records []index.Record) (*index.Index, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.lock.Lock(ctx); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeIndexLocked, "index is locked by another writer", err).
			WithDetail("lock", p.lock.Path())
	}
	defer func() {
		if err := p.lock.Unlock(); err != nil {
			slog.Warn("index_unlock_failed", slog.String("error", err.Error()))
		}
	}()

	dims := len(records[0].Vector)
	model := p.embedder.ModelName()

	var ix *index.Index
	if req.Mode == ModeMerge {
		loaded, err := index.Load(ctx, p.cfg.IndexPath, dims)
		switch {
		case errors.Is(err, index.ErrNotFound):
			ix = index.New(dims, model, p.cfg.Index)
		case err != nil:
			return nil, err
		default:
			ix = loaded
			ix.RemoveSources(sourcesOf(records)...)
		}
	} else {
		ix = index.New(dims, model, p.cfg.Index)
	}

	if err := ix.Write(records); err != nil {
		return nil, err
	}
	if err := index.SaveAtomic(ctx, ix, p.cfg.IndexPath); err != nil {
		return nil, ragerrors.New(ragerrors.ErrCodeIndexFailed, "failed to save index", err).
			WithDetail("path", p.cfg.IndexPath)
	}
	if req.Commit != nil {
		req.Commit(ix)
	}
	return ix, nil
}

// SourceName names a document by its slash-separated path under root, so
// same-named files in different folders stay distinct. Without a root, or
// for paths outside it, the base name is used.
func SourceName(root, path string) string {
	if root == "" {
		return filepath.Base(path)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.Base(path)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.Base(path)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

func sourcesOf(records []index.Record) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.Source] {
			seen[r.Source] = true
			out = append(out, r.Source)
		}
	}
	return out
}
