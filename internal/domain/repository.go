package domain

import (
	"context"
	"time"
)

// CommandRunner executes one external program with a timeout and
// returns a normalized result. It is purely a mechanism: it never
// inspects the run mode, and a non-zero exit is data for the caller,
// not an error.
type CommandRunner interface {
	// Run executes the spec and always returns a result; errors past
	// this boundary are folded into the result itself.
	Run(ctx context.Context, spec CommandSpec) CommandResult
}

// PathValidator decides whether a filesystem target may be touched.
// Side-effect free and safe to call in any mode.
type PathValidator interface {
	// Validate resolves path to its canonical form and returns a
	// *PathValidationError if it escapes root or matches the
	// configured skip pattern.
	Validate(path, root string) error
}

// Journal is the append-only record of every gated decision.
// Entries are immutable once appended; corrections are new entries.
type Journal interface {
	// Append records one decision.
	Append(mode RunMode, action, detail string, outcome JournalOutcome)

	// Entries returns a snapshot of all entries in append order.
	Entries() []JournalEntry
}

// Clock abstracts time so tests can simulate arbitrary dates without
// touching the system clock.
type Clock interface {
	Now() time.Time
}

// Archiver compresses an orphan directory into a single archive file.
type Archiver interface {
	// Archive writes sourceDir into archivePath and verifies the
	// result is non-empty and readable before returning. The source
	// directory is not removed here.
	Archive(sourceDir, archivePath string) error
}

// ProcessManager handles OS process operations.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByPattern returns PIDs of processes whose name or command
	// line contains the pattern (case-insensitive).
	FindByPattern(pattern string) ([]int32, error)

	// Terminate sends SIGTERM to a process.
	Terminate(pid int32) error

	// Kill sends SIGKILL to a process.
	Kill(pid int32) error
}

// DiskUsage reports filesystem sizes for display.
type DiskUsage interface {
	// SizeKB returns the recursive size of path in kilobytes,
	// or -1 when it cannot be determined.
	SizeKB(path string) int64
}
