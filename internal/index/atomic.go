package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// SaveAtomic persists ix to target without exposing a partial write.
//
// The index is written to a staging directory beside target, then the
// staging directory is renamed over target. The previous index is moved
// aside first and removed only after the swap succeeds; if the swap fails
// it is moved back.
func SaveAtomic(ctx context.Context, ix *Index, target string) error {
	parent := filepath.Dir(target)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("failed to create index parent: %w", err)
	}

	staging, err := os.MkdirTemp(parent, "."+filepath.Base(target)+".staging-*")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	if err := ix.Persist(ctx, staging); err != nil {
		return fmt.Errorf("failed to write staging index: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var backup string
	if _, err := os.Stat(target); err == nil {
		backup = fmt.Sprintf("%s.old-%d", target, time.Now().UnixNano())
		if err := os.Rename(target, backup); err != nil {
			return fmt.Errorf("failed to move previous index aside: %w", err)
		}
	}

	if err := os.Rename(staging, target); err != nil {
		if backup != "" {
			if rerr := os.Rename(backup, target); rerr != nil {
				slog.Error("index_restore_failed",
					slog.String("backup", backup),
					slog.String("error", rerr.Error()))
			}
		}
		return fmt.Errorf("failed to swap in new index: %w", err)
	}
	committed = true

	if backup != "" {
		if err := os.RemoveAll(backup); err != nil {
			slog.Warn("index_backup_cleanup_failed",
				slog.String("backup", backup),
				slog.String("error", err.Error()))
		}
	}
	return nil
}
