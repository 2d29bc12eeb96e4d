package infra

import (
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/jpaulw/macmaint/internal/domain"
)

// WalkDiskUsage implements domain.DiskUsage by walking the tree.
// Unreadable entries are ignored so a partial size still comes back.
type WalkDiskUsage struct{}

// NewDiskUsage creates a new disk usage reporter.
func NewDiskUsage() domain.DiskUsage {
	return WalkDiskUsage{}
}

// SizeKB returns the recursive size of path in kilobytes, or -1 when
// the root itself cannot be read.
func (WalkDiskUsage) SizeKB(path string) int64 {
	var total int64
	seenRoot := false

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == path {
				return err
			}
			return nil // Skip unreadable children
		}
		seenRoot = true
		if d.Type().IsRegular() {
			if info, ierr := d.Info(); ierr == nil {
				total += info.Size()
			}
		}
		return nil
	})
	if err != nil || !seenRoot {
		return -1
	}
	return total / 1024
}

// HumanSizeKB renders a kilobyte count the way the report shows sizes.
func HumanSizeKB(kb int64) string {
	if kb < 0 {
		return "unknown"
	}
	gb := float64(kb) / 1024 / 1024
	return fmt.Sprintf("%.2f GB", gb)
}

// Ensure WalkDiskUsage implements domain.DiskUsage.
var _ domain.DiskUsage = WalkDiskUsage{}
