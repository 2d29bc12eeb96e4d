//go:build integration

package integration

import (
	"archive/zip"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/usecase"
)

// settableClock implements domain.Clock for simulated passage of time
type settableClock struct {
	now time.Time
}

func (c *settableClock) Now() time.Time { return c.now }

var _ = Describe("Orphan Lifecycle", func() {
	var (
		home    string
		cfg     *config.Config
		clock   *settableClock
		journal *infra.ActionJournal
		mgr     *usecase.OrphanManager
		rc      *usecase.RunContext
	)

	newManager := func(mode domain.RunMode) *usecase.OrphanManager {
		logger := zap.NewNop()
		journal = infra.NewActionJournal(clock, logger)
		rc = &usecase.RunContext{
			Mode:      mode,
			Config:    cfg,
			Journal:   journal,
			Runner:    infra.NewExecutor(logger),
			Validator: infra.NewPathGuard(nil),
			Clock:     clock,
			Disk:      infra.NewDiskUsage(),
			Logger:    logger,
			RunID:     "integration-run",
		}
		return usecase.NewOrphanManager(rc, usecase.NewGate(rc), infra.NewZipArchiver(logger))
	}

	BeforeEach(func() {
		var err error
		home, err = os.MkdirTemp("", "macmaint-integration-*")
		Expect(err).NotTo(HaveOccurred())

		cfg = config.Default(home)
		cfg.AppSupportDir = filepath.Join(home, "Library", "Application Support")
		cfg.ApplicationsDir = filepath.Join(home, "Applications")
		cfg.ArchiveDir = filepath.Join(home, "Desktop", "Archives")
		cfg.ArchiveDays = 30
		Expect(os.MkdirAll(cfg.AppSupportDir, 0o755)).To(Succeed())
		Expect(os.MkdirAll(cfg.ApplicationsDir, 0o755)).To(Succeed())
		Expect(cfg.Finalize()).To(Succeed())

		clock = &settableClock{now: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	})

	AfterEach(func() {
		os.RemoveAll(home)
	})

	addOrphan := func(name string) string {
		dir := filepath.Join(cfg.AppSupportDir, name)
		Expect(os.MkdirAll(filepath.Join(dir, "sub"), 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "settings.json"), []byte(`{"k":1}`), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "sub", "cache.bin"), []byte("cache"), 0o644)).To(Succeed())
		return dir
	}

	Describe("full round trip", func() {
		Context("discover, archive, wait, clean up", func() {
			It("should archive on day 0 and delete the archive only after the retention window", func() {
				source := addOrphan("FooApp")
				mgr = newManager(domain.ModeApply)

				By("discovering the orphan")
				summary, err := mgr.Scan()
				Expect(err).NotTo(HaveOccurred())
				Expect(summary.Candidates).To(HaveLen(1))
				Expect(summary.Candidates[0].Name).To(Equal("FooApp"))

				By("archiving it with the delete date in the name")
				entries, err := mgr.Archive(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(filepath.Base(entries[0].ArchivePath)).To(Equal("FooApp__DELETE-20260131.zip"))
				Expect(entries[0].ArchivePath).To(BeAnExistingFile())
				Expect(source).NotTo(BeAnExistingFile())

				By("verifying the archive content survived")
				r, err := zip.OpenReader(entries[0].ArchivePath)
				Expect(err).NotTo(HaveOccurred())
				names := map[string]bool{}
				for _, f := range r.File {
					names[f.Name] = true
				}
				r.Close()
				Expect(names).To(HaveKey("FooApp/settings.json"))
				Expect(names).To(HaveKey("FooApp/sub/cache.bin"))

				By("keeping the archive before the delete date")
				clock.now = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
				deleted, malformed, err := mgr.Cleanup()
				Expect(err).NotTo(HaveOccurred())
				Expect(deleted).To(BeEmpty())
				Expect(malformed).To(BeEmpty())
				Expect(entries[0].ArchivePath).To(BeAnExistingFile())

				By("deleting the archive once the date has passed")
				clock.now = time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
				deleted, _, err = mgr.Cleanup()
				Expect(err).NotTo(HaveOccurred())
				Expect(deleted).To(HaveLen(1))
				Expect(deleted[0].Deleted).To(BeTrue())
				Expect(entries[0].ArchivePath).NotTo(BeAnExistingFile())
			})
		})

		Context("dry-run first, then apply", func() {
			It("should leave everything untouched until apply mode", func() {
				source := addOrphan("OldTool")

				mgr = newManager(domain.ModeDryRun)
				entries, err := mgr.Archive(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(source).To(BeADirectory())
				Expect(cfg.ArchiveDir).NotTo(BeADirectory())

				wouldPerform := 0
				for _, e := range journal.Entries() {
					if e.Outcome == domain.OutcomeWouldPerform {
						wouldPerform++
					}
				}
				Expect(wouldPerform).To(BeNumerically(">", 0))

				mgr = newManager(domain.ModeApply)
				entries, err = mgr.Archive(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(source).NotTo(BeAnExistingFile())
			})
		})

		Context("installed applications", func() {
			It("should never archive a folder whose app bundle exists", func() {
				Expect(os.MkdirAll(filepath.Join(cfg.ApplicationsDir, "Keeper.app"), 0o755)).To(Succeed())
				addOrphan("Keeper")
				orphanDir := addOrphan("Gone App")

				mgr = newManager(domain.ModeApply)
				entries, err := mgr.Archive(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(HaveLen(1))
				Expect(entries[0].SourcePath).To(Equal(orphanDir))
				Expect(filepath.Join(cfg.AppSupportDir, "Keeper")).To(BeADirectory())
			})
		})

		Context("report mode", func() {
			It("should only observe", func() {
				addOrphan("Lonely")
				mgr = newManager(domain.ModeReport)

				entries, err := mgr.Archive(nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(entries).To(BeEmpty())
				Expect(filepath.Join(cfg.AppSupportDir, "Lonely")).To(BeADirectory())

				refused := 0
				for _, e := range journal.Entries() {
					if e.Outcome == domain.OutcomeRefused {
						refused++
					}
				}
				Expect(refused).To(Equal(1))
			})
		})
	})
})
