package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/fieldrag/internal/ingest"
	"github.com/Aman-CERP/fieldrag/internal/rank"
	"github.com/Aman-CERP/fieldrag/internal/service"
	"github.com/Aman-CERP/fieldrag/pkg/version"
)

// ServerName is the implementation name announced to clients.
const ServerName = "fieldrag"

// Backend is the part of service.Service the server needs.
type Backend interface {
	SearchWith(ctx context.Context, q rank.Query, preview service.Preview) ([]service.Result, error)
	DefaultQuery(text string) rank.Query
	DefaultPreview() service.Preview
	Ingest(ctx context.Context, path string) (*ingest.Report, error)
	Stats() service.Status
	Available(ctx context.Context) bool
}

// Server is the MCP server for fieldrag.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger
}

// NewServer creates a server with all tools registered.
func NewServer(backend Backend) (*Server, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	s := &Server{
		backend: backend,
		logger:  slog.Default(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version.Version,
	}, nil)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Serve runs the server over the stdio transport until the client
// disconnects or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolSearchDocuments,
		Description: "Search the indexed documents (invoices, contracts, reports) by meaning. " +
			"Numbers in the query, such as totals or document numbers, boost chunks that contain them verbatim. " +
			"Each result is a 'Source: <file>' header followed by the matching text.",
	}, s.handleSearch)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name: ToolIngestDocuments,
		Description: "Add a document or directory to the index, replacing earlier versions of the same files. " +
			"Without a path, rebuilds the whole index from the corpus directory.",
	}, s.handleIngest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report whether the index is ready, how many chunks it holds per document, and which embedding model is active.",
	}, s.handleIndexStatus)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	requestID := uuid.NewString()
	start := time.Now()

	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query parameter is required")
	}

	q := s.backend.DefaultQuery(input.Query)
	if input.K != 0 {
		q.K = input.K
	}
	if input.MinScore != nil {
		q.MinScore = *input.MinScore
	}
	preview := s.backend.DefaultPreview()
	if input.Full {
		preview = service.FullText
	}

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", input.Query),
		slog.Int("k", q.K))

	results, err := s.backend.SearchWith(ctx, q, preview)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", time.Since(start)),
		slog.Int("result_count", len(results)))

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatResults(results)}},
	}, toSearchOutput(results), nil
}

func (s *Server) handleIngest(ctx context.Context, _ *mcp.CallToolRequest, input IngestInput) (
	*mcp.CallToolResult,
	IngestOutput,
	error,
) {
	requestID := uuid.NewString()
	s.logger.Info("ingest_requested",
		slog.String("request_id", requestID),
		slog.String("path", input.Path))

	report, err := s.backend.Ingest(ctx, input.Path)
	if err != nil {
		s.logger.Error("ingest_request_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		failure := ingest.FailureReport(err)
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{&mcp.TextContent{Text: MapError(err).Message}},
		}, toIngestOutput(failure), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: report.Message}},
	}, toIngestOutput(report), nil
}

func (s *Server) handleIndexStatus(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	IndexStatusOutput,
	error,
) {
	st := s.backend.Stats()

	out := IndexStatusOutput{
		Ready:     st.Ready,
		IndexPath: st.IndexPath,
		Chunks:    st.Chunks,
		Sources:   st.Sources,
		Embeddings: EmbeddingInfo{
			Provider:        st.Provider,
			Model:           st.Model,
			Dimensions:      st.Dimensions,
			Status:          "unavailable",
			SemanticQuality: "high",
		},
	}
	if s.backend.Available(ctx) {
		out.Embeddings.Status = "ready"
	}
	if strings.HasPrefix(st.Model, "static") {
		out.Embeddings.SemanticQuality = "low"
	}
	if !st.UpdatedAt.IsZero() {
		out.UpdatedAt = st.UpdatedAt.Format(time.RFC3339)
	}
	return nil, out, nil
}
