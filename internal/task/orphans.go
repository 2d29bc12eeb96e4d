package task

import (
	"context"
	"time"

	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/usecase"
)

// FindOrphansTask lists application-support directories with no
// matching installed application bundle. Read-only in every mode.
type FindOrphansTask struct{}

// NewFindOrphansTask creates the find-orphans task.
func NewFindOrphansTask() *FindOrphansTask { return &FindOrphansTask{} }

func (t *FindOrphansTask) ID() string   { return IDFindOrphans }
func (t *FindOrphansTask) Name() string { return "Find orphaned support directories" }

func (t *FindOrphansTask) Run(_ context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}

	gate := usecase.NewGate(rc)
	mgr := newOrphanManager(rc, gate)

	summary, err := mgr.Scan()
	if err != nil {
		result.Failed = true
		result.AddNote("scan failed: %v", err)
		result.Duration = time.Since(start)
		return result, err
	}

	result.AddNote("found %d potential orphaned folders (%d shown, %d skipped by pattern)",
		summary.Total, len(summary.Candidates), summary.Skipped)
	if summary.Errors > 0 {
		result.AddNote("%d entries were unreadable and skipped", summary.Errors)
	}
	for _, c := range summary.Candidates {
		result.AddNote("  %s (%s, last modified: %s)",
			c.Name, infra.HumanSizeKB(c.SizeKB), c.Modified.Format("2006-01-02"))
	}

	result.Duration = time.Since(start)
	return result, nil
}

// ArchiveOrphansTask compresses orphan directories into dated
// archives and removes the originals in apply mode.
type ArchiveOrphansTask struct{}

// NewArchiveOrphansTask creates the archive-orphans task.
func NewArchiveOrphansTask() *ArchiveOrphansTask { return &ArchiveOrphansTask{} }

func (t *ArchiveOrphansTask) ID() string   { return IDArchiveOrphans }
func (t *ArchiveOrphansTask) Name() string { return "Archive orphaned support directories" }

func (t *ArchiveOrphansTask) Run(_ context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}

	gate := usecase.NewGate(rc)
	mgr := newOrphanManager(rc, gate)

	entries, err := mgr.Archive(rc.Config.ArchiveFolders)
	if err != nil {
		result.Failed = true
		result.AddNote("archive failed: %v", err)
		result.Duration = time.Since(start)
		return result, err
	}

	verb := usecase.Describe(rc.Mode, "archive")
	result.AddNote("delete date set to %s (%d day retention)",
		rc.Clock.Now().AddDate(0, 0, rc.Config.ArchiveDays).Format("2006-01-02"),
		rc.Config.ArchiveDays)
	for _, e := range entries {
		result.AddNote("%s: %s -> %s", verb, e.SourcePath, e.ArchivePath)
	}
	if len(entries) == 0 {
		result.AddNote("no folders to archive")
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupArchivesTask deletes archives whose name-encoded delete date
// has passed.
type CleanupArchivesTask struct{}

// NewCleanupArchivesTask creates the cleanup-archives task.
func NewCleanupArchivesTask() *CleanupArchivesTask { return &CleanupArchivesTask{} }

func (t *CleanupArchivesTask) ID() string   { return IDCleanupArchives }
func (t *CleanupArchivesTask) Name() string { return "Clean up expired archives" }

func (t *CleanupArchivesTask) Run(_ context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}

	gate := usecase.NewGate(rc)
	mgr := newOrphanManager(rc, gate)

	eligible, malformed, err := mgr.Cleanup()
	if err != nil {
		result.Failed = true
		result.AddNote("cleanup failed: %v", err)
		result.Duration = time.Since(start)
		return result, err
	}

	for _, name := range malformed {
		result.AddNote("malformed archive name, kept: %s", name)
	}
	if len(eligible) == 0 {
		result.AddNote("no archives eligible for deletion")
	} else {
		result.AddNote("%d archive(s) eligible for deletion", len(eligible))
		verb := usecase.Describe(rc.Mode, "delete")
		for _, e := range eligible {
			result.AddNote("%s: %s (expired %s)", verb, e.ArchivePath, e.DeleteAfter.Format("2006-01-02"))
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// newOrphanManager wires the lifecycle manager with the real archiver.
func newOrphanManager(rc *usecase.RunContext, gate *usecase.Gate) *usecase.OrphanManager {
	return usecase.NewOrphanManager(rc, gate, infra.NewZipArchiver(rc.Logger))
}
