package watcher

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/fieldrag/internal/ingest"
)

// Ingester merges one document into the index.
type Ingester interface {
	Ingest(ctx context.Context, path string) (*ingest.Report, error)
}

// Run merges the documents of every batch from w until ctx is done or
// the watcher stops. Created and modified documents are ingested one by
// one so a bad file does not block the rest. Deleted documents keep their
// chunks until the next full rebuild.
func Run(ctx context.Context, w *Watcher, ing Ingester) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-w.Errors():
			if ok {
				slog.Warn("watch_error", slog.String("error", err.Error()))
			}
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			Apply(ctx, batch, ing)
		}
	}
}

// Apply ingests the created or modified documents of batch and returns
// how many succeeded.
func Apply(ctx context.Context, batch []FileEvent, ing Ingester) int {
	ok := 0
	for _, e := range batch {
		if e.Operation == OpDelete {
			slog.Info("document_removed",
				slog.String("path", e.Path),
				slog.String("note", "chunks stay until the next rebuild"))
			continue
		}

		report, err := ing.Ingest(ctx, e.Path)
		if err != nil {
			slog.Warn("watch_ingest_failed",
				slog.String("path", e.Path),
				slog.String("operation", e.Operation.String()),
				slog.String("error", err.Error()))
			continue
		}
		ok++
		slog.Info("watch_ingested",
			slog.String("path", e.Path),
			slog.Int("chunks", report.NumDocs),
			slog.String("run_id", report.RunID))
	}
	return ok
}
