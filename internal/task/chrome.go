package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/usecase"
)

const chromeProcessPattern = "Google Chrome Beta"

// profileDirRe matches Chrome's per-profile directory names.
var profileDirRe = regexp.MustCompile(`^(Default|Profile \d+)$`)

// ChromeTask clears per-profile browser cache directories. The browser
// must not be running while its profile data is modified, so the task
// detects running processes first and only terminates them when the
// kill flag was explicitly supplied.
type ChromeTask struct {
	procs domain.ProcessManager
}

// NewChromeTask creates the chrome-cleanup task.
func NewChromeTask() *ChromeTask {
	return &ChromeTask{procs: infra.NewProcessManager()}
}

// NewChromeTaskWithProcs is the test seam for process detection.
func NewChromeTaskWithProcs(procs domain.ProcessManager) *ChromeTask {
	return &ChromeTask{procs: procs}
}

func (t *ChromeTask) ID() string   { return IDChrome }
func (t *ChromeTask) Name() string { return "Chrome Beta profile cleanup" }

func (t *ChromeTask) Run(ctx context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}
	gate := usecase.NewGate(rc)

	if _, err := os.Stat(rc.Config.ChromeDir); os.IsNotExist(err) {
		result.AddNote("chrome profile directory not found: %s", rc.Config.ChromeDir)
		result.Duration = time.Since(start)
		return result, nil
	}

	running, err := t.procs.FindByPattern(chromeProcessPattern)
	if err != nil {
		rc.Logger.Warn("process scan failed", zap.Error(err))
	}
	if len(running) > 0 {
		if !t.shutdown(ctx, rc, gate, running, result) {
			result.Duration = time.Since(start)
			return result, nil
		}
	}

	cleaned, failed := t.cleanProfiles(rc, gate, result)
	result.AddNote("%d cache directories %s, %d failed",
		cleaned, usecase.Describe(rc.Mode, "removed"), failed)
	result.Failed = failed > 0

	result.Duration = time.Since(start)
	return result, nil
}

// shutdown quits the browser, escalating from AppleScript to SIGTERM
// to SIGKILL. Returns false when the browser is still running and the
// cleanup must not proceed.
func (t *ChromeTask) shutdown(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, pids []int32, result *domain.TaskResult) bool {
	result.AddNote("%d running process(es) detected", len(pids))

	if !rc.Config.KillChrome {
		gate.Refuse("quit chrome", "browser running and kill flag not set")
		result.AddNote("browser is running; pass the kill flag to close it")
		return false
	}

	quit := domain.CommandSpec{
		Title:   "quit chrome",
		Program: "osascript",
		Args:    []string{"-e", fmt.Sprintf(`tell application %q to quit`, chromeProcessPattern)},
		Timeout: rc.Config.Timeout,
	}
	if _, ran := gate.Command(ctx, quit, rc.Config.KillChrome); !ran {
		// report or dry-run: continue so the per-directory entries
		// below still land in the journal
		return true
	}

	for attempt := 0; attempt < 10; attempt++ {
		time.Sleep(500 * time.Millisecond)
		remaining, _ := t.procs.FindByPattern(chromeProcessPattern)
		if len(remaining) == 0 {
			result.AddNote("browser quit cleanly")
			return true
		}
		pids = remaining
	}

	for _, pid := range pids {
		if err := t.procs.Terminate(pid); err != nil {
			rc.Logger.Warn("terminate failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}
	time.Sleep(2 * time.Second)

	remaining, _ := t.procs.FindByPattern(chromeProcessPattern)
	for _, pid := range remaining {
		if err := t.procs.Kill(pid); err != nil {
			rc.Logger.Warn("kill failed", zap.Int32("pid", pid), zap.Error(err))
		}
	}

	remaining, _ = t.procs.FindByPattern(chromeProcessPattern)
	if len(remaining) > 0 {
		gate.Refuse("clean chrome profiles", "browser still running after kill")
		result.AddNote("browser still running; skipping profile cleanup")
		result.Failed = true
		return false
	}
	result.AddNote("browser terminated")
	return true
}

// cleanProfiles removes the known cache directories under every
// profile. Each removal goes through the gate individually.
func (t *ChromeTask) cleanProfiles(rc *usecase.RunContext, gate *usecase.Gate, result *domain.TaskResult) (cleaned, failed int) {
	entries, err := os.ReadDir(rc.Config.ChromeDir)
	if err != nil {
		result.AddNote("cannot read %s: %v", rc.Config.ChromeDir, err)
		result.Failed = true
		return 0, 1
	}

	for _, entry := range entries {
		if !entry.IsDir() || !profileDirRe.MatchString(entry.Name()) {
			continue
		}
		profile := filepath.Join(rc.Config.ChromeDir, entry.Name())

		for _, cacheDir := range config.ChromeCleanDirs {
			target := filepath.Join(profile, cacheDir)
			if _, err := os.Stat(target); os.IsNotExist(err) {
				continue
			}

			action := fmt.Sprintf("clean chrome %s/%s", entry.Name(), cacheDir)
			intent := fmt.Sprintf("would remove %s", target)
			_, err := gate.Mutate(action, target, rc.Config.ChromeDir, intent, true,
				func() error { return os.RemoveAll(target) })
			if err != nil {
				rc.Logger.Warn("profile cleanup failed",
					zap.String("target", target), zap.Error(err))
				failed++
				continue
			}
			cleaned++
		}
	}
	return cleaned, failed
}
