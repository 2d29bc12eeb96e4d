// Package task implements the maintenance tasks behind --task and the
// closed registry that dispatches them.
package task

import (
	"context"

	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/usecase"
)

// Task IDs as accepted on the command line.
const (
	IDReport          = "report-html"
	IDBrew            = "brew-maintenance"
	IDFindOrphans     = "find-orphans"
	IDArchiveOrphans  = "archive-orphans"
	IDCleanupArchives = "cleanup-archives"
	IDChrome          = "chrome-cleanup"
	IDCopy            = "copy-speed-test"
)

// Task is one gated maintenance operation. Implementations never
// decide mode semantics themselves; every mutation goes through the
// run context's gate.
type Task interface {
	// ID returns the identifier used with --task.
	ID() string

	// Name returns a human-readable name for display.
	Name() string

	// Run executes the task under the run context's mode. A returned
	// error means the task failed irrecoverably; individual command
	// failures inside the task are recorded, not returned.
	Run(ctx context.Context, rc *usecase.RunContext) (*domain.TaskResult, error)
}
