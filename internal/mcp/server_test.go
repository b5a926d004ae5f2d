package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/index"
	"github.com/Aman-CERP/fieldrag/internal/ingest"
	"github.com/Aman-CERP/fieldrag/internal/rank"
	"github.com/Aman-CERP/fieldrag/internal/service"
)

// fakeBackend records the last query and returns canned results.
type fakeBackend struct {
	results   []service.Result
	searchErr error
	report    *ingest.Report
	ingestErr error
	status    service.Status
	available bool

	gotQuery   rank.Query
	gotPreview service.Preview
	gotPath    string
}

func (f *fakeBackend) SearchWith(_ context.Context, q rank.Query, p service.Preview) ([]service.Result, error) {
	f.gotQuery, f.gotPreview = q, p
	return f.results, f.searchErr
}

func (f *fakeBackend) DefaultQuery(text string) rank.Query {
	return rank.Query{Text: text, K: 5, MinScore: 0.7, BoostFactor: 1.2}
}

func (f *fakeBackend) DefaultPreview() service.Preview { return service.Preview{MaxChars: 500} }

func (f *fakeBackend) Ingest(_ context.Context, path string) (*ingest.Report, error) {
	f.gotPath = path
	return f.report, f.ingestErr
}

func (f *fakeBackend) Stats() service.Status            { return f.status }
func (f *fakeBackend) Available(_ context.Context) bool { return f.available }

func newTestServer(t *testing.T, b *fakeBackend) *Server {
	t.Helper()
	s, err := NewServer(b)
	require.NoError(t, err)
	return s
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)
}

func TestSearch_FormatsSourceBlocks(t *testing.T) {
	// Given: two results from the backend
	b := &fakeBackend{results: []service.Result{
		{Source: "nf-001.pdf", Content: "Total geral 76.871,20", Score: 0.78},
		{Source: "boleto.pdf", Content: "Vencimento 10/05", Score: 0.71},
	}}
	s := newTestServer(t, b)

	// When: searching
	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "total 76.871,20"})

	// Then: text content has a Source header per result and the structured output matches
	require.NoError(t, err)
	assert.Equal(t, "Source: nf-001.pdf\nTotal geral 76.871,20\n\nSource: boleto.pdf\nVencimento 10/05", textOf(t, res))
	require.Len(t, out.Results, 2)
	assert.Equal(t, 0.78, out.Results[0].Score)
	assert.Equal(t, 500, b.gotPreview.MaxChars)
	assert.Equal(t, 5, b.gotQuery.K)
}

func TestSearch_EmptyReturnsSentinel(t *testing.T) {
	s := newTestServer(t, &fakeBackend{results: []service.Result{}})

	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "nada"})

	require.NoError(t, err)
	assert.Equal(t, NoResultsText, textOf(t, res))
	assert.Empty(t, out.Results)
}

func TestSearch_Overrides(t *testing.T) {
	b := &fakeBackend{}
	s := newTestServer(t, b)
	minScore := 0.0

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "x", K: 12, MinScore: &minScore, Full: true})

	require.NoError(t, err)
	assert.Equal(t, 12, b.gotQuery.K)
	assert.Equal(t, 0.0, b.gotQuery.MinScore)
	assert.Equal(t, 1.2, b.gotQuery.BoostFactor)
	assert.Equal(t, service.FullText, b.gotPreview)
}

func TestSearch_BlankQuery(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "  "})

	var mErr *MCPError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, ErrCodeInvalidParams, mErr.Code)
}

func TestSearch_IndexUnavailable(t *testing.T) {
	s := newTestServer(t, &fakeBackend{searchErr: ragerrors.IndexUnavailable("no index has been built yet", nil)})

	_, _, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "x"})

	var mErr *MCPError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mErr.Code)
	assert.Contains(t, mErr.Message, "fieldrag index")
}

func TestIngest_Success(t *testing.T) {
	b := &fakeBackend{report: &ingest.Report{Status: ingest.StatusOK, Message: "Indexed 2 chunks from 1 file(s)", NumDocs: 2, FilesIndexed: 1}}
	s := newTestServer(t, b)

	res, out, err := s.handleIngest(context.Background(), nil, IngestInput{Path: "/tmp/nf.pdf"})

	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "/tmp/nf.pdf", b.gotPath)
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, 2, out.NumDocs)
	assert.Equal(t, "Indexed 2 chunks from 1 file(s)", textOf(t, res))
}

func TestIngest_FailureBecomesReport(t *testing.T) {
	// Given: an ingestion that finds no text
	s := newTestServer(t, &fakeBackend{ingestErr: ragerrors.EmptyCorpus("no text could be extracted from 1 document(s)", nil)})

	// When: the agent ingests
	res, out, err := s.handleIngest(context.Background(), nil, IngestInput{Path: "scan.pdf"})

	// Then: the failure is reported in the result, not as a protocol error
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, ingest.StatusError, out.Status)
	assert.Equal(t, ragerrors.ErrCodeEmptyCorpus, out.Code)
	assert.Contains(t, textOf(t, res), "no text could be extracted")
}

func TestIndexStatus(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := &fakeBackend{
		available: true,
		status: service.Status{
			Ready:     true,
			IndexPath: "/p/.fieldrag/index",
			Provider:  "static",
			Stats: index.Stats{
				Chunks:     3,
				Sources:    []index.SourceStat{{Name: "a.pdf", Chunks: 3}},
				Dimensions: 384,
				Model:      "static-384",
				UpdatedAt:  updated,
			},
		},
	}
	s := newTestServer(t, b)

	_, out, err := s.handleIndexStatus(context.Background(), nil, IndexStatusInput{})

	require.NoError(t, err)
	assert.True(t, out.Ready)
	assert.Equal(t, 3, out.Chunks)
	assert.Equal(t, "ready", out.Embeddings.Status)
	assert.Equal(t, "low", out.Embeddings.SemanticQuality)
	assert.Equal(t, "2026-03-01T12:00:00Z", out.UpdatedAt)
}

func TestServer_OverInMemoryTransport(t *testing.T) {
	// Given: a server connected to a client in memory
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := newTestServer(t, &fakeBackend{results: []service.Result{{Source: "nf.pdf", Content: "total", Score: 0.9}}})
	serverT, clientT := mcp.NewInMemoryTransports()
	ss, err := s.MCPServer().Connect(ctx, serverT, nil)
	require.NoError(t, err)
	defer func() { _ = ss.Close() }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	defer func() { _ = cs.Close() }()

	// When: listing tools and calling search_documents
	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(tools.Tools))
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSearchDocuments,
		Arguments: map[string]any{"query": "total"},
	})

	// Then: all three tools are exposed and the search text comes back
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{ToolSearchDocuments, ToolIngestDocuments, ToolIndexStatus}, names)
	assert.False(t, res.IsError)
	assert.Equal(t, "Source: nf.pdf\ntotal", textOf(t, res))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"index unavailable", ragerrors.IndexUnavailable("gone", nil), ErrCodeIndexUnavailable},
		{"embedding", ragerrors.Embedding("provider down", nil), ErrCodeEmbeddingFailed},
		{"empty corpus", ragerrors.EmptyCorpus("nothing", nil), ErrCodeEmptyCorpus},
		{"file not found", ragerrors.New(ragerrors.ErrCodeFileNotFound, "missing", nil), ErrCodeFileNotFound},
		{"malformed query", ragerrors.MalformedQuery("k must be positive"), ErrCodeInvalidParams},
		{"network", ragerrors.New(ragerrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))
}

func TestFormatResults(t *testing.T) {
	assert.Equal(t, NoResultsText, FormatResults(nil))
	assert.Equal(t, "Source: a.txt\nx", FormatResults([]service.Result{{Source: "a.txt", Content: "x"}}))
}
