package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/fieldrag/internal/config"
	"github.com/Aman-CERP/fieldrag/internal/embed"
	"github.com/Aman-CERP/fieldrag/internal/index"
	"github.com/Aman-CERP/fieldrag/internal/ingest"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the status as its lower-case name.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs the checks for one project.
type Checker struct {
	cfg *config.Config
	// embedder may be nil when it could not be built.
	embedder    embed.Embedder
	embedderErr error
}

// New creates a checker. embedderErr is the error from building the
// embedder, reported by CheckEmbedder when embedder is nil.
func New(cfg *config.Config, embedder embed.Embedder, embedderErr error) *Checker {
	return &Checker{cfg: cfg, embedder: embedder, embedderErr: embedderErr}
}

// RunAll runs every check in order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	return []CheckResult{
		c.CheckCorpus(ctx),
		c.CheckWritePermissions(),
		c.CheckDiskSpace(),
		c.CheckEmbedder(ctx),
		c.CheckIndex(ctx),
	}
}

// CheckCorpus counts the supported documents in the corpus directory. An
// empty corpus is a warning: merging single files still works.
func (c *Checker) CheckCorpus(ctx context.Context) CheckResult {
	result := CheckResult{Name: "corpus"}
	root := c.cfg.CorpusPath()

	files, err := ingest.CollectFiles(ctx, root, c.cfg.HasExtension)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("corpus directory unreadable: %s", root)
		result.Details = err.Error()
	case len(files) == 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("no %s files in %s", strings.Join(c.cfg.Paths.Extensions, "/"), root)
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d document(s) in %s", len(files), root)
	}
	return result
}

// CheckWritePermissions verifies a file can be created next to the index.
func (c *Checker) CheckWritePermissions() CheckResult {
	result := CheckResult{Name: "write_permissions", Required: true}
	dir := filepath.Dir(c.cfg.IndexPath())

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s", dir)
		result.Details = err.Error()
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not writable", dir)
		result.Details = err.Error()
		return result
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s is writable", dir)
	return result
}

// CheckEmbedder reports whether the embedding provider answers.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}
	if c.embedder == nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s provider unavailable", c.cfg.Embeddings.Provider)
		if c.embedderErr != nil {
			result.Details = c.embedderErr.Error()
		}
		return result
	}
	if !c.embedder.Available(ctx) {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is not responding", c.embedder.ModelName())
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", c.embedder.ModelName(), c.embedder.Dimensions())
	return result
}

// CheckIndex loads the persisted index. A missing index is a warning; a
// corrupt one, or one built with other dimensions, fails.
func (c *Checker) CheckIndex(ctx context.Context) CheckResult {
	result := CheckResult{Name: "index", Required: true}

	dims := 0
	if c.embedder != nil {
		dims = c.embedder.Dimensions()
	}
	ix, err := index.Load(ctx, c.cfg.IndexPath(), dims)
	switch {
	case errors.Is(err, index.ErrNotFound):
		result.Status = StatusWarn
		result.Message = "no index yet; run 'fieldrag index'"
	case err != nil:
		result.Status = StatusFail
		result.Message = "index cannot be used"
		result.Details = err.Error()
	default:
		st := ix.Stats()
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d chunk(s) from %d source(s), model %s", st.Chunks, len(st.Sources), st.Model)
	}
	return result
}

// HasCriticalFailures returns true if any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns "failed", "ready_with_warnings" or "ready".
func SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status == StatusWarn || r.Status == StatusFail {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// existingAncestor returns path or its nearest existing parent.
func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
