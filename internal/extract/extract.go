// Package extract turns document files into plain text for ingestion.
//
// Extraction never fails loudly: an unreadable or image-only document
// yields an empty string and a logged warning, and ingestion records it
// as skipped.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

// Extractor returns the plain text of a document.
type Extractor interface {
	// ExtractText returns the document text, or "" when none can be extracted.
	ExtractText(ctx context.Context, path string) string
}

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// FileExtractor dispatches on file extension.
type FileExtractor struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
	maxBytes int64
}

// Option configures a FileExtractor.
type Option func(*FileExtractor)

// WithCommandRunner replaces the runner used for the pdftotext fallback.
func WithCommandRunner(r CommandRunner) Option {
	return func(e *FileExtractor) {
		e.runner = r
		e.lookPath = func(name string) (string, error) { return name, nil }
	}
}

// WithoutFallback disables the pdftotext fallback.
func WithoutFallback() Option {
	return func(e *FileExtractor) {
		e.runner = nil
	}
}

// WithMaxBytes caps how much of a plain-text file is read.
func WithMaxBytes(n int64) Option {
	return func(e *FileExtractor) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

// New returns a FileExtractor for .txt, .md and .pdf files.
func New(opts ...Option) *FileExtractor {
	e := &FileExtractor{
		runner:   execRunner{},
		lookPath: exec.LookPath,
		maxBytes: 64 << 20,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SupportedExtensions lists the extensions ExtractText understands.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".md"}
}

// ExtractText implements Extractor.
func (e *FileExtractor) ExtractText(ctx context.Context, path string) string {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		text, err = e.readPlain(path)
	case ".pdf":
		text, err = e.readPDF(ctx, path)
	default:
		err = fmt.Errorf("unsupported extension %q", filepath.Ext(path))
	}

	if err != nil {
		slog.Warn("text_extraction_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return ""
	}
	if strings.TrimSpace(text) == "" {
		slog.Warn("text_extraction_empty", slog.String("path", path))
		return ""
	}
	return text
}

func (e *FileExtractor) readPlain(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, e.maxBytes+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > e.maxBytes {
		data = data[:e.maxBytes]
		// Cut at the last whitespace so no word or rune is split.
		if i := bytes.LastIndexFunc(data, unicode.IsSpace); i > 0 {
			data = data[:i]
		}
		slog.Warn("text_truncated",
			slog.String("path", path),
			slog.Int64("limit_bytes", e.maxBytes),
			slog.Int("kept_bytes", len(data)))
	}
	return string(data), nil
}

func (e *FileExtractor) readPDF(ctx context.Context, path string) (string, error) {
	text, err := readPDFText(path)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}

	if e.runner != nil {
		if bin, lerr := e.lookPath("pdftotext"); lerr == nil {
			out, rerr := e.runner.Run(ctx, bin, "-layout", "-enc", "UTF-8", path, "-")
			if rerr == nil {
				slog.Debug("pdf_extracted_with_pdftotext", slog.String("path", path))
				return string(out), nil
			}
			if err == nil {
				err = rerr
			}
		}
	}
	return text, err
}

// readPDFText reads the text layer with the pure-Go reader. The reader
// panics on some malformed files, so panics are converted to errors.
func readPDFText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
