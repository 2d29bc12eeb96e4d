package infra

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/domain"
)

// archiveDateLayout is the date form embedded in archive file names.
const archiveDateLayout = "20060102"

// archiveNameRe matches `<name>__DELETE-YYYYMMDD.zip`. The encoded
// date is the only state needed to decide deletion eligibility.
var archiveNameRe = regexp.MustCompile(`^(.+)__DELETE-([0-9]{8})\.zip$`)

// EncodeArchiveName builds the archive file name for an orphan
// directory. Spaces are flattened so the name survives shell handling.
func EncodeArchiveName(sourceName string, deleteAfter time.Time) string {
	base := strings.ReplaceAll(sourceName, " ", "_")
	return fmt.Sprintf("%s__DELETE-%s.zip", base, deleteAfter.Format(archiveDateLayout))
}

// ParseDeleteDate recovers the encoded delete-after date from an
// archive file name. ok is false for names that do not follow the
// contract; such archives are reported as malformed, never deleted.
func ParseDeleteDate(fileName string) (time.Time, bool) {
	m := archiveNameRe.FindStringSubmatch(fileName)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(archiveDateLayout, m[2])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ZipArchiver implements domain.Archiver with archive/zip.
type ZipArchiver struct {
	logger *zap.Logger
}

// NewZipArchiver creates a new archiver.
func NewZipArchiver(logger *zap.Logger) *ZipArchiver {
	return &ZipArchiver{logger: logger}
}

// Archive compresses sourceDir into archivePath and verifies the
// written file is non-empty and re-openable. On any failure the
// partial archive is removed and an ArchiveIntegrityError returned;
// the source directory is never touched here.
func (a *ZipArchiver) Archive(sourceDir, archivePath string) error {
	if err := a.writeZip(sourceDir, archivePath); err != nil {
		_ = os.Remove(archivePath)
		return &domain.ArchiveIntegrityError{ArchivePath: archivePath, Reason: err.Error()}
	}
	if err := verifyZip(archivePath); err != nil {
		_ = os.Remove(archivePath)
		return &domain.ArchiveIntegrityError{ArchivePath: archivePath, Reason: err.Error()}
	}
	a.logger.Info("archive written",
		zap.String("source", sourceDir),
		zap.String("archive", archivePath))
	return nil
}

func (a *ZipArchiver) writeZip(sourceDir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	base := filepath.Base(sourceDir)

	walkErr := filepath.WalkDir(sourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(sourceDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, err = zw.Create(name + "/")
			return err
		}
		if !d.Type().IsRegular() {
			// Sockets, pipes and symlinks are dropped from the snapshot.
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		hdr.Name = name
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	})
	if walkErr != nil {
		zw.Close()
		return walkErr
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return out.Sync()
}

// verifyZip confirms the archive is non-empty and readable before the
// caller is allowed to remove the original directory.
func verifyZip(archivePath string) error {
	info, err := os.Stat(archivePath)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("archive is empty")
	}
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("archive unreadable: %w", err)
	}
	defer r.Close()
	if len(r.File) == 0 {
		return fmt.Errorf("archive contains no entries")
	}
	return nil
}

// Ensure ZipArchiver implements domain.Archiver.
var _ domain.Archiver = (*ZipArchiver)(nil)
