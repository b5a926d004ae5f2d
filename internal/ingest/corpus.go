package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// CollectFiles walks root and returns the regular files accepted by match,
// sorted by path. Hidden directories and files are skipped, as are
// entries that cannot be read.
func CollectFiles(ctx context.Context, root string, match func(path string) bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if path == root {
			return nil
		}

		hidden := strings.HasPrefix(d.Name(), ".")
		if d.IsDir() {
			if hidden {
				return filepath.SkipDir
			}
			return nil
		}
		if hidden || !d.Type().IsRegular() {
			return nil
		}
		if match == nil || match(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
