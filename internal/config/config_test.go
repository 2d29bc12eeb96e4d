package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefault verifies documented defaults resolve against home
func TestDefault(t *testing.T) {
	cfg := Default("/Users/alice")

	assert.Equal(t, "/Users/alice/Library/Application Support", cfg.AppSupportDir)
	assert.Equal(t, "/Applications", cfg.ApplicationsDir)
	assert.Equal(t, DefaultArchiveDays, cfg.ArchiveDays)
	assert.Equal(t, DefaultOrphansLimit, cfg.OrphansLimit)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, DefaultMaxChars, cfg.MaxChars)
	assert.Equal(t, DefaultMaxLines, cfg.MaxLines)
	assert.Equal(t, DefaultMissingCaskApps, cfg.Brew.FixCasks)
	assert.NotEmpty(t, cfg.Brew.Bin)
}

// TestFinalize_CompilesSkipPattern verifies the default pattern
// compiles and matches the protected set
func TestFinalize_CompilesSkipPattern(t *testing.T) {
	cfg := Default("/Users/alice")
	require.NoError(t, cfg.Finalize())

	re := cfg.SkipRe()
	require.NotNil(t, re)
	assert.True(t, re.MatchString("com.apple.TCC"))
	assert.True(t, re.MatchString("Caches"))
	assert.True(t, re.MatchString("MobileSync"))
	assert.False(t, re.MatchString("Slack"))
	// Anchored: partial hits don't count.
	assert.False(t, re.MatchString("MyCaches"))
}

// TestFinalize_RangeChecks verifies invalid values are rejected
func TestFinalize_RangeChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero archive days", func(c *Config) { c.ArchiveDays = 0 }},
		{"negative archive days", func(c *Config) { c.ArchiveDays = -1 }},
		{"zero orphans limit", func(c *Config) { c.OrphansLimit = 0 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"bad skip pattern", func(c *Config) { c.SkipPattern = "(" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/Users/alice")
			tt.mutate(cfg)
			assert.Error(t, cfg.Finalize())
		})
	}
}

// TestFinalize_ExpandsHome verifies tilde paths resolve
func TestFinalize_ExpandsHome(t *testing.T) {
	cfg := Default("/Users/alice")
	cfg.ArchiveDir = "~/Archives"
	cfg.CopySrc = "~"
	require.NoError(t, cfg.Finalize())

	assert.Equal(t, "/Users/alice/Archives", cfg.ArchiveDir)
	assert.Equal(t, "/Users/alice", cfg.CopySrc)
}

// TestLoadFile verifies TOML overlay including the timeout form
func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "macmaint.toml")
	content := `
archive_days = 14
orphans_limit = 5
timeout_seconds = 2.5
normalize_unicode = true
kill_chrome = true

[brew]
update = true
list_file = "~/custom-list.txt"

[report]
include_heavy = true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := Default("/Users/alice")
	require.NoError(t, cfg.LoadFile(path))
	require.NoError(t, cfg.Finalize())

	assert.Equal(t, 14, cfg.ArchiveDays)
	assert.Equal(t, 5, cfg.OrphansLimit)
	assert.Equal(t, 2500*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.NormalizeUnicode)
	assert.True(t, cfg.KillChrome)
	assert.True(t, cfg.Brew.Update)
	assert.Equal(t, "/Users/alice/custom-list.txt", cfg.Brew.ListFile)
	assert.True(t, cfg.Report.IncludeHeavy)
}

// TestLoadFile_Missing verifies a helpful error for absent files
func TestLoadFile_Missing(t *testing.T) {
	cfg := Default("/Users/alice")
	err := cfg.LoadFile("/nonexistent/macmaint.toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

// TestBrewOptions_AnyAction verifies toggle detection
func TestBrewOptions_AnyAction(t *testing.T) {
	assert.False(t, BrewOptions{}.AnyAction())
	assert.True(t, BrewOptions{Doctor: true}.AnyAction())
	assert.True(t, BrewOptions{FixMissingCasks: true}.AnyAction())
}
