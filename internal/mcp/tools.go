package mcp

import (
	"github.com/Aman-CERP/fieldrag/internal/index"
	"github.com/Aman-CERP/fieldrag/internal/ingest"
)

// Tool names.
const (
	ToolSearchDocuments = "search_documents"
	ToolIngestDocuments = "ingest_documents"
	ToolIndexStatus     = "index_status"
)

// SearchInput defines the input schema for the search_documents tool.
type SearchInput struct {
	Query    string   `json:"query" jsonschema:"the question or keywords to search for; numbers such as invoice totals are matched literally"`
	K        int      `json:"k,omitempty" jsonschema:"number of candidates to consider, default from config"`
	MinScore *float64 `json:"min_score,omitempty" jsonschema:"minimum score a result must reach, default from config"`
	Full     bool     `json:"full,omitempty" jsonschema:"return full chunk text instead of a preview"`
}

// SearchOutput defines the output schema for the search_documents tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"matching chunks, best first"`
}

// SearchResultOutput is a single search result.
type SearchResultOutput struct {
	Source  string  `json:"source" jsonschema:"file name of the document"`
	Content string  `json:"content" jsonschema:"chunk text or its preview"`
	Score   float64 `json:"score" jsonschema:"relevance score after number boosting"`
}

// IngestInput defines the input schema for the ingest_documents tool.
type IngestInput struct {
	Path string `json:"path,omitempty" jsonschema:"file or directory to add; empty rebuilds the index from the corpus directory"`
}

// IngestOutput defines the output schema for the ingest_documents tool.
type IngestOutput struct {
	Status            string   `json:"status"`
	Message           string   `json:"message,omitempty"`
	Code              string   `json:"code,omitempty"`
	RunID             string   `json:"run_id,omitempty"`
	IndexPath         string   `json:"index_path,omitempty"`
	NumDocs           int      `json:"num_docs"`
	FilesIndexed      int      `json:"files_indexed"`
	FilesSkipped      int      `json:"files_skipped"`
	Skipped           []string `json:"skipped,omitempty"`
	EmbeddingFailures int      `json:"embedding_failures"`
	DurationMS        int64    `json:"duration_ms"`
}

func toIngestOutput(r *ingest.Report) IngestOutput {
	return IngestOutput{
		Status:            r.Status,
		Message:           r.Message,
		Code:              r.Code,
		RunID:             r.RunID,
		IndexPath:         r.IndexPath,
		NumDocs:           r.NumDocs,
		FilesIndexed:      r.FilesIndexed,
		FilesSkipped:      r.FilesSkipped,
		Skipped:           r.Skipped,
		EmbeddingFailures: r.EmbeddingFailures,
		DurationMS:        r.DurationMS,
	}
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Ready      bool               `json:"ready" jsonschema:"true once an index has been built"`
	IndexPath  string             `json:"index_path"`
	Chunks     int                `json:"chunks"`
	Sources    []index.SourceStat `json:"sources"`
	Embeddings EmbeddingInfo      `json:"embeddings"`
	UpdatedAt  string             `json:"updated_at,omitempty"`
}

// EmbeddingInfo describes the active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	// Status is "ready" or "unavailable".
	Status string `json:"status"`
	// SemanticQuality is "low" for the static hash embedder.
	SemanticQuality string `json:"semantic_quality"`
}
