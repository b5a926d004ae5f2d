package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fieldrag/internal/config"
	"github.com/Aman-CERP/fieldrag/internal/embed"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/index"
	"github.com/Aman-CERP/fieldrag/internal/rank"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.ProjectDir = t.TempDir()
	cfg.Embeddings.Provider = "static"
	cfg.Ingestion.Workers = 2
	return cfg
}

func writeDoc(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	path := filepath.Join(cfg.CorpusPath(), name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func openTest(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	s, err := Open(context.Background(), cfg, WithEmbedder(embed.NewStaticEmbedder(64)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_WithoutIndex(t *testing.T) {
	// Given: a project with no index
	s := openTest(t, testConfig(t))

	// Then: the service is not ready and search reports the missing index
	st := s.Stats()
	assert.False(t, st.Ready)
	assert.Equal(t, "static-64", st.Model)
	assert.Empty(t, st.Sources)

	_, err := s.Search(context.Background(), "total")
	assert.True(t, ragerrors.HasCode(err, ragerrors.ErrCodeIndexUnavailable))
}

func TestOpen_CorruptIndexIsFatal(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.IndexPath(), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.IndexPath(), index.RecordsFile), []byte("this is not sqlite"), 0o644))

	_, err := Open(context.Background(), cfg, WithEmbedder(embed.NewStaticEmbedder(64)))

	require.Error(t, err)
	assert.True(t, ragerrors.IsFatal(err))
}

func TestIngestAndSearch(t *testing.T) {
	// Given: a corpus with an invoice and an unrelated note
	cfg := testConfig(t)
	writeDoc(t, cfg, "nf-001.txt", "Total geral 76.871,20")
	writeDoc(t, cfg, "notes.md", "reunião de planejamento trimestral com a diretoria")
	writeDoc(t, cfg, "photo.png", "binary")
	s := openTest(t, cfg)

	// When: rebuilding from the corpus directory
	report, err := s.Ingest(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, report.FilesIndexed)
	assert.Equal(t, 2, report.NumDocs)

	// Then: a query for the total finds the invoice, boosted
	results, err := s.Search(context.Background(), "total geral 76.871,20")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "nf-001.txt", results[0].Source)
	assert.Equal(t, "Total geral 76.871,20", results[0].Content)
	assert.InDelta(t, 1.2, results[0].Score, 1e-4)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, cfg.Retrieval.MinScore)
	}

	st := s.Stats()
	assert.True(t, st.Ready)
	assert.Equal(t, 2, st.Chunks)
}

func TestSearch_NothingQualifiesIsEmpty(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "a.txt", "alpha beta gamma")
	s := openTest(t, cfg)
	_, err := s.Ingest(context.Background(), "")
	require.NoError(t, err)

	q := s.DefaultQuery("zzzz qqqq")
	q.MinScore = 0.99
	results, err := s.SearchWith(context.Background(), q, FullText)

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearchWith_Preview(t *testing.T) {
	cfg := testConfig(t)
	long := strings.Repeat("palavra ", 100)
	writeDoc(t, cfg, "long.txt", long)
	s := openTest(t, cfg)
	_, err := s.Ingest(context.Background(), "")
	require.NoError(t, err)

	q := rank.Query{Text: long, K: 1, MinScore: 0, BoostFactor: 1}

	short, err := s.SearchWith(context.Background(), q, Preview{MaxChars: 10})
	require.NoError(t, err)
	require.Len(t, short, 1)
	assert.Equal(t, "palavra pa...", short[0].Content)

	full, err := s.SearchWith(context.Background(), q, FullText)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(long), full[0].Content)
}

func TestIngest_FileMerges(t *testing.T) {
	cfg := testConfig(t)
	writeDoc(t, cfg, "a.txt", "primeiro documento")
	s := openTest(t, cfg)
	_, err := s.Ingest(context.Background(), "")
	require.NoError(t, err)

	// Given: a new document outside the corpus directory
	extra := filepath.Join(t.TempDir(), "upload.txt")
	require.NoError(t, os.WriteFile(extra, []byte("documento enviado"), 0o644))

	// When: ingesting just that file
	report, err := s.Ingest(context.Background(), extra)

	// Then: both documents are indexed
	require.NoError(t, err)
	assert.Equal(t, 1, report.NumDocs)
	assert.Equal(t, []index.SourceStat{{Name: "a.txt", Chunks: 1}, {Name: "upload.txt", Chunks: 1}}, s.Stats().Sources)
}

func TestIngest_SameNameInOtherFolderSurvivesMerge(t *testing.T) {
	// Given: a corpus with two notes sharing a file name
	cfg := testConfig(t)
	writeDoc(t, cfg, filepath.Join("2023", "nota.txt"), "nota fiscal de janeiro")
	newer := writeDoc(t, cfg, filepath.Join("2024", "nota.txt"), "nota fiscal de fevereiro")
	s := openTest(t, cfg)
	_, err := s.Ingest(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 2, s.Stats().Chunks)

	// When: the 2024 note is re-ingested
	_, err = s.Ingest(context.Background(), newer)

	// Then: the 2023 note is still indexed
	require.NoError(t, err)
	assert.Equal(t, []index.SourceStat{
		{Name: "2023/nota.txt", Chunks: 1},
		{Name: "2024/nota.txt", Chunks: 1},
	}, s.Stats().Sources)
}

// pauseHandler drops log records and blocks the first goroutine that logs
// msg until release is closed.
type pauseHandler struct {
	msg     string
	once    *sync.Once
	paused  chan struct{}
	release chan struct{}
}

func (h pauseHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h pauseHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Message != h.msg {
		return nil
	}
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.paused)
		<-h.release
	}
	return nil
}

func (h pauseHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h pauseHandler) WithGroup(string) slog.Handler      { return h }

func TestIngest_ConcurrentMergesLeaveMemoryMatchingDisk(t *testing.T) {
	// Given: two documents ingested at the same time, the first one held
	// after it has been written to disk
	cfg := testConfig(t)
	first := writeDoc(t, cfg, "a.txt", "primeiro documento")
	second := writeDoc(t, cfg, "b.txt", "segundo documento")
	s := openTest(t, cfg)

	h := pauseHandler{
		msg:     "ingest_completed",
		once:    &sync.Once{},
		paused:  make(chan struct{}),
		release: make(chan struct{}),
	}
	prev := slog.Default()
	slog.SetDefault(slog.New(h))
	t.Cleanup(func() { slog.SetDefault(prev) })

	// When: the second ingest runs while the first is held
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := s.Ingest(context.Background(), first)
		assert.NoError(t, err)
	}()
	<-h.paused
	go func() {
		defer wg.Done()
		_, err := s.Ingest(context.Background(), second)
		assert.NoError(t, err)
	}()
	time.Sleep(100 * time.Millisecond)
	close(h.release)
	wg.Wait()

	// Then: the served index holds what the disk holds
	loaded, err := index.Load(context.Background(), cfg.IndexPath(), 64)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Count())
	assert.Equal(t, loaded.Sources(), s.Stats().Sources)
	assert.Equal(t, loaded.Count(), s.Stats().Chunks)
}

func TestIngest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, cfg *config.Config) string
		code  string
	}{
		{"missing file", func(t *testing.T, cfg *config.Config) string {
			return filepath.Join(cfg.ProjectDir, "missing.pdf")
		}, ragerrors.ErrCodeFileNotFound},
		{"missing corpus dir", func(t *testing.T, cfg *config.Config) string {
			return ""
		}, ragerrors.ErrCodeInvalidPath},
		{"corpus without documents", func(t *testing.T, cfg *config.Config) string {
			writeDoc(t, cfg, "image.png", "x")
			return ""
		}, ragerrors.ErrCodeEmptyCorpus},
		{"empty document", func(t *testing.T, cfg *config.Config) string {
			return writeDoc(t, cfg, "blank.txt", "  \n ")
		}, ragerrors.ErrCodeEmptyCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			path := tt.setup(t, cfg)
			s := openTest(t, cfg)

			report, err := s.Ingest(context.Background(), path)

			assert.Nil(t, report)
			assert.True(t, ragerrors.HasCode(err, tt.code), "got %v", err)
			assert.False(t, s.Stats().Ready)
		})
	}
}

func TestReload_SeesOtherWriters(t *testing.T) {
	// Given: two services over the same project
	cfg := testConfig(t)
	writeDoc(t, cfg, "a.txt", "conteudo compartilhado")
	reader := openTest(t, cfg)
	writer := openTest(t, cfg)

	// When: one ingests and the other reloads
	_, err := writer.Ingest(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, reader.Stats().Ready)
	require.NoError(t, reader.Reload(context.Background()))

	// Then: the reader sees the new index
	assert.True(t, reader.Stats().Ready)
	assert.Equal(t, 1, reader.Stats().Chunks)
}

func TestPreview_Apply(t *testing.T) {
	tests := []struct {
		name string
		max  int
		text string
		want string
	}{
		{"full text", 0, "abcdef", "abcdef"},
		{"shorter than limit", 10, "abc", "abc"},
		{"exact limit", 3, "abc", "abc"},
		{"truncated", 3, "abcdef", "abc..."},
		{"multibyte runes", 2, "ãéíõ", "ãé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview{MaxChars: tt.max}.Apply(tt.text))
		})
	}
}
