package ingest

import (
	"time"

	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/index"
)

// Report statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Report summarizes one ingestion run.
type Report struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	// Code is the error code of a failed run.
	Code              string        `json:"code,omitempty"`
	RunID             string        `json:"run_id,omitempty"`
	IndexPath         string        `json:"index_path,omitempty"`
	NumDocs           int           `json:"num_docs"`
	FilesIndexed      int           `json:"files_indexed"`
	FilesSkipped      int           `json:"files_skipped"`
	Skipped           []string      `json:"skipped,omitempty"`
	EmbeddingFailures int           `json:"embedding_failures"`
	Duration          time.Duration `json:"-"`
	DurationMS        int64         `json:"duration_ms"`

	// Index is the index that was persisted. Callers swap it in.
	Index *index.Index `json:"-"`
}

// FailureReport converts a failed run into a report.
func FailureReport(err error) *Report {
	return &Report{
		Status:  StatusError,
		Message: err.Error(),
		Code:    ragerrors.GetCode(err),
	}
}

// OK reports whether the run succeeded.
func (r *Report) OK() bool {
	return r != nil && r.Status == StatusOK
}
