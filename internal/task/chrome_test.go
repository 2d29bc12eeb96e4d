package task

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpaulw/macmaint/internal/domain"
)

// fakeProcs implements domain.ProcessManager for testing
type fakeProcs struct {
	pids       []int32
	terminated []int32
	killed     []int32
}

func (f *fakeProcs) FindByPattern(pattern string) ([]int32, error) { return f.pids, nil }

func (f *fakeProcs) Terminate(pid int32) error {
	f.terminated = append(f.terminated, pid)
	f.pids = nil
	return nil
}

func (f *fakeProcs) Kill(pid int32) error {
	f.killed = append(f.killed, pid)
	f.pids = nil
	return nil
}

func setupChromeProfile(t *testing.T, chromeDir string) (cacheDir, keepDir string) {
	t.Helper()
	profile := filepath.Join(chromeDir, "Default")
	cacheDir = filepath.Join(profile, "GPUCache")
	keepDir = filepath.Join(profile, "Bookmarks Backup")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.MkdirAll(keepDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "blob"), []byte("x"), 0o644))
	return cacheDir, keepDir
}

// TestChrome_NoProfileDir verifies a missing profile root is a no-op
func TestChrome_NoProfileDir(t *testing.T) {
	rc, _, _ := newTaskContext(t, domain.ModeApply)
	rc.Config.ChromeDir = filepath.Join(t.TempDir(), "nope")

	result, err := NewChromeTaskWithProcs(&fakeProcs{}).Run(context.Background(), rc)

	require.NoError(t, err)
	assert.False(t, result.Failed)
	require.NotEmpty(t, result.Notes)
	assert.Contains(t, result.Notes[0], "not found")
}

// TestChrome_RunningWithoutKillFlagRefuses verifies a live browser
// stops the cleanup unless the kill flag was given
func TestChrome_RunningWithoutKillFlagRefuses(t *testing.T) {
	rc, _, journal := newTaskContext(t, domain.ModeApply)
	rc.Config.ChromeDir = t.TempDir()
	rc.Config.KillChrome = false
	cacheDir, _ := setupChromeProfile(t, rc.Config.ChromeDir)

	result, err := NewChromeTaskWithProcs(&fakeProcs{pids: []int32{101}}).Run(context.Background(), rc)

	require.NoError(t, err)
	assert.False(t, result.Failed)
	_, statErr := os.Stat(cacheDir)
	assert.NoError(t, statErr, "cache must survive")

	require.NotEmpty(t, journal.entries)
	assert.Equal(t, domain.OutcomeRefused, journal.entries[len(journal.entries)-1].Outcome)
}

// TestChrome_ApplyCleansCaches verifies only the known cache dirs are
// removed from each profile
func TestChrome_ApplyCleansCaches(t *testing.T) {
	rc, _, _ := newTaskContext(t, domain.ModeApply)
	rc.Config.ChromeDir = t.TempDir()
	cacheDir, keepDir := setupChromeProfile(t, rc.Config.ChromeDir)

	// Second profile with another cache dir.
	profile2cache := filepath.Join(rc.Config.ChromeDir, "Profile 2", "IndexedDB")
	require.NoError(t, os.MkdirAll(profile2cache, 0o755))
	// Non-profile directory that must never be considered.
	otherCache := filepath.Join(rc.Config.ChromeDir, "System", "GPUCache")
	require.NoError(t, os.MkdirAll(otherCache, 0o755))

	result, err := NewChromeTaskWithProcs(&fakeProcs{}).Run(context.Background(), rc)
	require.NoError(t, err)
	assert.False(t, result.Failed)

	_, statErr := os.Stat(cacheDir)
	assert.True(t, os.IsNotExist(statErr), "Default/GPUCache removed")
	_, statErr = os.Stat(profile2cache)
	assert.True(t, os.IsNotExist(statErr), "Profile 2/IndexedDB removed")
	_, statErr = os.Stat(keepDir)
	assert.NoError(t, statErr, "non-cache dir kept")
	_, statErr = os.Stat(otherCache)
	assert.NoError(t, statErr, "non-profile dir kept")
}

// TestChrome_DryRunTouchesNothing verifies dry-run journals intent and
// leaves the profile alone
func TestChrome_DryRunTouchesNothing(t *testing.T) {
	rc, _, journal := newTaskContext(t, domain.ModeDryRun)
	rc.Config.ChromeDir = t.TempDir()
	cacheDir, _ := setupChromeProfile(t, rc.Config.ChromeDir)

	_, err := NewChromeTaskWithProcs(&fakeProcs{}).Run(context.Background(), rc)
	require.NoError(t, err)

	_, statErr := os.Stat(cacheDir)
	assert.NoError(t, statErr)

	var wouldPerform bool
	for _, e := range journal.entries {
		if e.Outcome == domain.OutcomeWouldPerform {
			wouldPerform = true
		}
	}
	assert.True(t, wouldPerform)
}

// TestChrome_Escalation verifies TERM is attempted after the graceful
// quit leaves the browser running
func TestChrome_Escalation(t *testing.T) {
	rc, _, _ := newTaskContext(t, domain.ModeDryRun)
	rc.Config.ChromeDir = t.TempDir()
	rc.Config.KillChrome = true
	setupChromeProfile(t, rc.Config.ChromeDir)

	procs := &fakeProcs{pids: []int32{202}}
	_, err := NewChromeTaskWithProcs(procs).Run(context.Background(), rc)
	require.NoError(t, err)

	// Dry-run: the quit command is journaled, never run, and no
	// signals are sent.
	assert.Empty(t, procs.terminated)
	assert.Empty(t, procs.killed)
}
