package preflight

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinDiskSpaceBytes is the floor for free space on the index filesystem.
const MinDiskSpaceBytes = 100 << 20

// CheckDiskSpace verifies the index filesystem can hold a staged copy of
// the index beside the live one.
func (c *Checker) CheckDiskSpace() CheckResult {
	target := existingAncestor(c.cfg.IndexPath())
	need := requiredSpace(indexSize(c.cfg.IndexPath()))

	free, err := freeSpace(target)
	if err != nil {
		return CheckResult{
			Name:     "disk_space",
			Required: true,
			Status:   StatusFail,
			Message:  fmt.Sprintf("cannot stat filesystem at %s", target),
			Details:  err.Error(),
		}
	}

	res := CheckResult{
		Name:     "disk_space",
		Required: true,
		Status:   StatusPass,
		Message:  fmt.Sprintf("%s free at %s, %s needed", humanize.IBytes(free), target, humanize.IBytes(need)),
	}
	if free < need {
		res.Status = StatusFail
		res.Details = "an ingest stages a full index copy before swapping it in"
	}
	return res
}

// requiredSpace is twice the current index, never below MinDiskSpaceBytes.
func requiredSpace(current uint64) uint64 {
	return max(2*current, MinDiskSpaceBytes)
}

// indexSize sums the files under the index directory; a missing index
// counts as zero.
func indexSize(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, ierr := d.Info(); ierr == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

func freeSpace(path string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
