package domain

import (
	"errors"
	"fmt"
)

// ErrTimeout marks a command that exceeded its deadline. Recorded in
// the result, never fatal to the task.
var ErrTimeout = errors.New("command timed out")

// PathValidationError refuses a single action whose target escaped the
// authorized root or matched the skip pattern. The task continues.
type PathValidationError struct {
	Path   string
	Root   string
	Reason string
}

func (e *PathValidationError) Error() string {
	return fmt.Sprintf("path %q rejected: %s", e.Path, e.Reason)
}

// ArchiveIntegrityError means an archive write produced an empty or
// unreadable file. The original directory must not be removed.
type ArchiveIntegrityError struct {
	ArchivePath string
	Reason      string
}

func (e *ArchiveIntegrityError) Error() string {
	return fmt.Sprintf("archive %q failed integrity check: %s", e.ArchivePath, e.Reason)
}

// ScanError wraps a directory that could not be read during a scan.
// The candidate is skipped and the scan continues.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %q: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
