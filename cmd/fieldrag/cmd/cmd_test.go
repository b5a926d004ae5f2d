package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/fieldrag/internal/config"
	ragerrors "github.com/Aman-CERP/fieldrag/internal/errors"
	"github.com/Aman-CERP/fieldrag/internal/ingest"
	"github.com/Aman-CERP/fieldrag/internal/service"
	"github.com/Aman-CERP/fieldrag/pkg/version"
)

const harvestText = "the harvest report lists soybean yield per hectare for the northern plot"

// newProject returns a project directory with an isolated home and user
// config, plus a data/ corpus holding files.
func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "data", name), []byte(content), 0o644))
	}
	return dir
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	stdout := &bytes.Buffer{}
	root.SetOut(stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	// Given: an isolated home
	newProject(t, nil)

	// When: printing the short version
	out, err := run(t, "version", "--short")

	// Then: only the version number is printed
	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	newProject(t, nil)

	out, err := run(t, "version", "--json")

	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestIndexThenSearch(t *testing.T) {
	// Given: a corpus with two text documents
	dir := newProject(t, map[string]string{
		"harvest.txt": harvestText,
		"freight.txt": "freight invoice for cattle transport paid in full",
	})

	// When: indexing offline
	out, err := run(t, "index", "--dir", dir, "--offline", "--json")

	// Then: the report covers both files
	require.NoError(t, err)
	var report ingest.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, ingest.StatusOK, report.Status)
	assert.Equal(t, 2, report.FilesIndexed)
	assert.Equal(t, 2, report.NumDocs)

	// When: searching for the text of one document
	out, err = run(t, "search", "--dir", dir, "--offline", "--format", "json", "--min-score", "0", harvestText)

	// Then: that document ranks first with a near-perfect score
	require.NoError(t, err)
	var results []service.Result
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.NotEmpty(t, results)
	assert.Equal(t, "harvest.txt", results[0].Source)
	assert.InDelta(t, 1.0, results[0].Score, 1e-3)
}

func TestSearch_TextOutput(t *testing.T) {
	dir := newProject(t, map[string]string{"harvest.txt": harvestText})
	_, err := run(t, "index", "--dir", dir, "--offline")
	require.NoError(t, err)

	out, err := run(t, "search", "--dir", dir, "--offline", harvestText)

	require.NoError(t, err)
	assert.Contains(t, out, "1. harvest.txt (")
	assert.Contains(t, out, harvestText)
}

func TestSearch_NothingQualifies(t *testing.T) {
	// Given: an index and a minimum score no result can reach
	dir := newProject(t, map[string]string{"harvest.txt": harvestText})
	_, err := run(t, "index", "--dir", dir, "--offline")
	require.NoError(t, err)

	// When: searching in JSON
	out, err := run(t, "search", "--dir", dir, "--offline", "--format", "json", "--min-score", "5", "unrelated words")

	// Then: an empty list is printed, not an error
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestSearch_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no index yet", []string{"search", "soybean"}, ragerrors.ErrCodeIndexUnavailable},
		{"unknown format", []string{"search", "--format", "xml", "soybean"}, ragerrors.ErrCodeInvalidInput},
		{"invalid k", []string{"search", "-k", "0", "soybean"}, ragerrors.ErrCodeInvalidQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newProject(t, nil)
			args := append([]string{tt.args[0], "--dir", dir, "--offline"}, tt.args[1:]...)

			_, err := run(t, args...)

			require.Error(t, err)
			assert.Equal(t, tt.code, ragerrors.GetCode(err))
		})
	}
}

func TestIndex_EmptyCorpusPrintsFailureReport(t *testing.T) {
	// Given: a corpus with no supported files
	dir := newProject(t, map[string]string{"notes.csv": "a,b"})

	// When: indexing with --json
	out, err := run(t, "index", "--dir", dir, "--offline", "--json")

	// Then: the command fails and the failure report is printed
	require.Error(t, err)
	assert.Equal(t, ragerrors.ErrCodeEmptyCorpus, ragerrors.GetCode(err))
	var report ingest.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, ingest.StatusError, report.Status)
	assert.Equal(t, ragerrors.ErrCodeEmptyCorpus, report.Code)
}

func TestInfo(t *testing.T) {
	dir := newProject(t, map[string]string{"harvest.txt": harvestText})

	// Before the first ingestion the index is not ready.
	out, err := run(t, "info", "--dir", dir, "--offline", "--json")
	require.NoError(t, err)
	var st service.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.False(t, st.Ready)

	_, err = run(t, "index", "--dir", dir, "--offline")
	require.NoError(t, err)

	out, err = run(t, "info", "--dir", dir, "--offline", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.True(t, st.Ready)
	assert.Equal(t, 1, st.Chunks)
	require.Len(t, st.Sources, 1)
	assert.Equal(t, "harvest.txt", st.Sources[0].Name)
}

func TestConfigInit(t *testing.T) {
	// Given: a project without configuration
	dir := newProject(t, nil)
	path := filepath.Join(dir, config.ProjectConfigName)

	// When: running config init
	_, err := run(t, "config", "init", "--dir", dir)

	// Then: the template is written and loads cleanly
	require.NoError(t, err)
	assert.FileExists(t, path)
	_, err = config.Load(dir)
	require.NoError(t, err)

	// When: running it again without --force
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  chunk_size: 42\n"), 0o644))
	out, err := run(t, "config", "init", "--dir", dir)

	// Then: the existing file is kept
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size: 42")

	// When: forcing
	_, err = run(t, "config", "init", "--dir", dir, "--force")

	// Then: a backup holds the previous content
	require.NoError(t, err)
	backups, err := config.ListBackups(path)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err = os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "chunk_size: 42")
}

func TestConfigShow_JSON(t *testing.T) {
	dir := newProject(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ProjectConfigName),
		[]byte("retrieval:\n  min_score: 0.5\n"), 0o644))

	out, err := run(t, "config", "show", "--dir", dir, "--json")

	require.NoError(t, err)
	var cfg config.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, 0.5, cfg.Retrieval.MinScore)
}

func TestDoctor_JSON(t *testing.T) {
	// Given: an indexed project
	dir := newProject(t, map[string]string{"harvest.txt": harvestText})
	_, err := run(t, "index", "--dir", dir, "--offline")
	require.NoError(t, err)

	// When: running the checks
	out, err := run(t, "doctor", "--dir", dir, "--offline", "--json")

	// Then: every check passes
	require.NoError(t, err)
	var got struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ready", got.Status)
	assert.Len(t, got.Checks, 5)
}

func TestRoot_ProfilingFlags(t *testing.T) {
	dir := newProject(t, nil)
	heap := filepath.Join(t.TempDir(), "heap.prof")

	_, err := run(t, "version", "--dir", dir, "--profile-mem", heap)

	require.NoError(t, err)
	assert.FileExists(t, heap)
}
