package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
)

// OrphanManager drives the lifecycle of orphaned application-support
// directories: discovery, timed archival, and expiry cleanup. All
// mutations go through the gate.
type OrphanManager struct {
	rc       *RunContext
	gate     *Gate
	archiver domain.Archiver
}

// NewOrphanManager creates a lifecycle manager.
func NewOrphanManager(rc *RunContext, gate *Gate, archiver domain.Archiver) *OrphanManager {
	return &OrphanManager{rc: rc, gate: gate, archiver: archiver}
}

// normalizeName folds case (and optionally applies NFC) so bundle
// names compare the way Finder displays them. Matching is exact
// equality after normalization: a substring hit is not a match.
func normalizeName(name string, nfc bool) string {
	if nfc {
		name = norm.NFC.String(name)
	}
	return cases.Fold().String(name)
}

// installedBundleNames returns the normalized names of *.app bundles
// under the applications directory, suffix stripped.
func (m *OrphanManager) installedBundleNames() (map[string]struct{}, error) {
	entries, err := os.ReadDir(m.rc.Config.ApplicationsDir)
	if err != nil {
		return nil, &domain.ScanError{Path: m.rc.Config.ApplicationsDir, Err: err}
	}
	installed := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".app") {
			continue
		}
		key := normalizeName(strings.TrimSuffix(name, ".app"), m.rc.Config.NormalizeUnicode)
		installed[key] = struct{}{}
	}
	return installed, nil
}

// Scan enumerates immediate subdirectories of the application-support
// root and returns those with no exactly-matching installed bundle and
// no skip-pattern hit. Safe in any mode; the filesystem is untouched.
func (m *OrphanManager) Scan() (domain.ScanSummary, error) {
	var summary domain.ScanSummary
	cfg := m.rc.Config

	installed, err := m.installedBundleNames()
	if err != nil {
		return summary, err
	}

	entries, err := os.ReadDir(cfg.AppSupportDir)
	if err != nil {
		return summary, &domain.ScanError{Path: cfg.AppSupportDir, Err: err}
	}

	var candidates []domain.OrphanCandidate
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if cfg.SkipRe().MatchString(name) {
			summary.Skipped++
			continue
		}
		if _, ok := installed[normalizeName(name, cfg.NormalizeUnicode)]; ok {
			continue
		}

		full := filepath.Join(cfg.AppSupportDir, name)
		info, err := e.Info()
		if err != nil {
			summary.Errors++
			m.rc.Logger.Warn("unreadable support directory",
				zap.String("path", full), zap.Error(err))
			continue
		}
		candidates = append(candidates, domain.OrphanCandidate{
			Name:     name,
			Path:     full,
			Modified: info.ModTime(),
			SizeKB:   -1,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	summary.Total = len(candidates)
	if len(candidates) > cfg.OrphansLimit {
		candidates = candidates[:cfg.OrphansLimit]
	}
	// Sizes only for the displayed slice; a full walk of every
	// candidate would dominate scan time.
	for i := range candidates {
		candidates[i].SizeKB = m.rc.Disk.SizeKB(candidates[i].Path)
	}
	summary.Candidates = candidates
	return summary, nil
}

// Archive compresses each named orphan directory into the archive dir
// with a delete-after date encoded in the file name, then removes the
// original. Report mode lists, dry-run journals intent, apply does it.
// When folders is empty the current scan's candidates are used.
func (m *OrphanManager) Archive(folders []string) ([]domain.ArchiveEntry, error) {
	cfg := m.rc.Config

	if len(folders) == 0 {
		summary, err := m.Scan()
		if err != nil {
			return nil, err
		}
		for _, c := range summary.Candidates {
			folders = append(folders, c.Name)
		}
	}

	now := m.rc.Clock.Now()
	deleteAfter := now.AddDate(0, 0, cfg.ArchiveDays)

	// The archive directory must live under home before anything is
	// created there, in any mode.
	if err := m.rc.Validator.Validate(cfg.ArchiveDir, cfg.Home); err != nil {
		m.gate.Refuse("create archive dir", "path rejected: "+err.Error())
		return nil, err
	}

	if m.rc.Mode == domain.ModeApply {
		if err := os.MkdirAll(cfg.ArchiveDir, 0o755); err != nil {
			return nil, fmt.Errorf("create archive dir: %w", err)
		}
	}

	var entries []domain.ArchiveEntry
	for _, name := range folders {
		source := filepath.Join(cfg.AppSupportDir, name)
		if info, err := os.Stat(source); err != nil || !info.IsDir() {
			m.rc.Logger.Info("skip (not found)", zap.String("folder", name))
			continue
		}

		archivePath := filepath.Join(cfg.ArchiveDir, infra.EncodeArchiveName(name, deleteAfter))
		entry := domain.ArchiveEntry{
			ArchivePath: archivePath,
			SourcePath:  source,
			CreatedAt:   now,
			DeleteAfter: deleteAfter,
		}

		// The source must live under the support root; the archive
		// must land under the user's home. Both are checked before
		// any mode decides anything.
		if err := m.rc.Validator.Validate(source, cfg.AppSupportDir); err != nil {
			m.gate.Refuse("archive "+name, "path rejected: "+err.Error())
			continue
		}

		action := "archive " + name
		intent := fmt.Sprintf("would archive %s to %s (expires %s)",
			name, archivePath, deleteAfter.Format("2006-01-02"))

		_, err := m.gate.Mutate(action, archivePath, cfg.Home, intent, true, func() error {
			if err := m.archiver.Archive(source, archivePath); err != nil {
				return err
			}
			// Remove the original only after the archive verified.
			return os.RemoveAll(source)
		})
		if err != nil {
			m.rc.Logger.Warn("archive failed", zap.String("folder", name), zap.Error(err))
			continue
		}
		if m.rc.Mode == domain.ModeReport {
			// Refused by the gate; not part of the outcome list.
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Cleanup deletes archives whose encoded delete-after date is on or
// before today. Eligibility is recomputed from file names alone, so
// the operation is idempotent across invocations. Malformed names are
// returned, reported, and never deleted.
func (m *OrphanManager) Cleanup() (deleted []domain.ArchiveEntry, malformed []string, err error) {
	cfg := m.rc.Config

	dirEntries, err := os.ReadDir(cfg.ArchiveDir)
	if err != nil {
		if os.IsNotExist(err) {
			m.rc.Logger.Info("archive directory not found", zap.String("dir", cfg.ArchiveDir))
			return nil, nil, nil
		}
		return nil, nil, &domain.ScanError{Path: cfg.ArchiveDir, Err: err}
	}

	today := m.rc.Clock.Now().Format("20060102")

	for _, e := range dirEntries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		deleteDate, ok := infra.ParseDeleteDate(e.Name())
		if !ok {
			malformed = append(malformed, e.Name())
			m.rc.Logger.Warn("malformed archive name", zap.String("file", e.Name()))
			continue
		}
		if deleteDate.Format("20060102") > today {
			continue
		}

		path := filepath.Join(cfg.ArchiveDir, e.Name())
		entry := domain.ArchiveEntry{
			ArchivePath: path,
			DeleteAfter: deleteDate,
		}

		action := "delete archive " + e.Name()
		intent := "would delete " + path
		performed, err := m.gate.Mutate(action, path, cfg.ArchiveDir, intent, true, func() error {
			return os.Remove(path)
		})
		if err != nil {
			m.rc.Logger.Warn("delete failed", zap.String("archive", path), zap.Error(err))
			continue
		}
		entry.Deleted = performed
		deleted = append(deleted, entry)
	}
	return deleted, malformed, nil
}
