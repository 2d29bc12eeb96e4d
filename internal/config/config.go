// Package config resolves flags and an optional TOML file into the
// value object the core consumes. The core never parses arguments.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default limits matching the tool's long-standing behavior.
const (
	DefaultArchiveDays  = 90
	DefaultOrphansLimit = 30
	DefaultTimeout      = 20 * time.Second
	DefaultMaxChars     = 20000
	DefaultMaxLines     = 500
)

// DefaultSkipPattern excludes system-owned Application Support entries
// from orphan detection.
const DefaultSkipPattern = `^(com\.apple\..*|AddressBook|CallHistoryDB|CallHistoryTransactions|` +
	`CloudDocs|CrashReporter|FileProvider|Knowledge|SyncServices|` +
	`networkserviceproxy|icdd|default\.store|Caches|Logs|MobileSync|` +
	`NotificationCenter|System Preferences|Automator|Dock|ControlCenter|` +
	`FaceTime|Mail|Music|iCloud|identityservicesd|locationaccessstored|` +
	`contactsd|accountsd|appplaceholdersyncd|homeenergyd|privatecloudcomputed|` +
	`syncdefaultsd|transparencyd|TrustedPersHelper|videosubscriptionsd|` +
	`stickersd|tipsd|DifferentialPrivacy|Animoji)$`

// ChromeCleanDirs are the per-profile cache directories that are safe
// to clear while the browser is closed.
var ChromeCleanDirs = []string{
	"Service Worker",
	"IndexedDB",
	"File System",
	"Local Storage",
	"GPUCache",
	"WebStorage",
	"Application Cache",
	"Pepper Data",
	"Platform Notifications",
	"Session Storage",
}

// DefaultMissingCaskApps are casks known to lose their /Applications
// bundle after certain macOS upgrades.
var DefaultMissingCaskApps = []string{"Inkscape", "JupyterLab", "LosslessCut", "RsyncUI"}

// BrewOptions are the explicit action toggles for the brew task.
type BrewOptions struct {
	Bin             string   `toml:"bin"`
	ListFile        string   `toml:"list_file"`
	CaskFile        string   `toml:"cask_file"`
	Update          bool     `toml:"update"`
	Upgrade         bool     `toml:"upgrade"`
	UpgradeCask     bool     `toml:"upgrade_cask"`
	Autoremove      bool     `toml:"autoremove"`
	Cleanup         bool     `toml:"cleanup"`
	Doctor          bool     `toml:"doctor"`
	Missing         bool     `toml:"missing"`
	List            bool     `toml:"list"`
	CaskList        bool     `toml:"cask_list"`
	Untap           bool     `toml:"untap"`
	FixMissingCasks bool     `toml:"fix_missing_casks"`
	FixCasks        []string `toml:"fix_casks"`
}

// AnyAction reports whether at least one explicit toggle was supplied.
func (b BrewOptions) AnyAction() bool {
	return b.Update || b.Upgrade || b.UpgradeCask || b.Autoremove || b.Cleanup ||
		b.Doctor || b.Missing || b.List || b.CaskList || b.Untap || b.FixMissingCasks
}

// ReportOptions control the opt-in sections of the HTML report.
type ReportOptions struct {
	OutDir          string `toml:"out_dir"`
	IncludeNetwork  bool   `toml:"include_network"`
	IncludeHeavy    bool   `toml:"include_heavy"`
	IncludeProfiler bool   `toml:"include_profiler"`
	IncludeLogs     bool   `toml:"include_logs"`
}

// Config is the resolved configuration for one invocation.
// Immutable after Finalize.
type Config struct {
	Home string `toml:"-"`

	Timeout  time.Duration `toml:"-"`
	MaxChars int           `toml:"max_chars"`
	MaxLines int           `toml:"max_lines"`

	AppSupportDir   string   `toml:"app_support_dir"`
	ApplicationsDir string   `toml:"applications_dir"`
	OrphansLimit    int      `toml:"orphans_limit"`
	SkipPattern     string   `toml:"skip_pattern"`
	ArchiveDir      string   `toml:"archive_dir"`
	ArchiveDays     int      `toml:"archive_days"`
	ArchiveFolders  []string `toml:"archive_folders"`

	// NormalizeUnicode applies NFC normalization on top of case
	// folding when matching support directories against app bundles.
	NormalizeUnicode bool `toml:"normalize_unicode"`

	ChromeDir  string `toml:"chrome_dir"`
	KillChrome bool   `toml:"kill_chrome"`

	CopySrc string `toml:"copy_src"`
	CopyDst string `toml:"copy_dst"`

	Brew   BrewOptions   `toml:"brew"`
	Report ReportOptions `toml:"report"`

	// TimeoutSeconds is the TOML-facing form of Timeout.
	TimeoutSeconds float64 `toml:"timeout_seconds"`

	skipRe *regexp.Regexp
}

// Default returns the configuration with all documented defaults
// resolved against the given home directory.
func Default(home string) *Config {
	return &Config{
		Home:            home,
		Timeout:         DefaultTimeout,
		MaxChars:        DefaultMaxChars,
		MaxLines:        DefaultMaxLines,
		AppSupportDir:   filepath.Join(home, "Library", "Application Support"),
		ApplicationsDir: "/Applications",
		OrphansLimit:    DefaultOrphansLimit,
		SkipPattern:     DefaultSkipPattern,
		ArchiveDir:      filepath.Join(home, "Desktop", "Orphaned_App_Support_Archives"),
		ArchiveDays:     DefaultArchiveDays,
		ChromeDir:       filepath.Join(home, "Library", "Application Support", "Google", "Chrome Beta"),
		CopySrc:         filepath.Join(home, "Virtual Machines.localized"),
		CopyDst:         "/Volumes/VMware",
		Brew: BrewOptions{
			Bin:      brewBinDefault(),
			ListFile: filepath.Join(home, ".brew-list.txt"),
			CaskFile: filepath.Join(home, ".brew-cask.txt"),
			FixCasks: DefaultMissingCaskApps,
		},
		Report: ReportOptions{OutDir: "."},
	}
}

func brewBinDefault() string {
	if env := os.Getenv("BREW"); env != "" {
		return env
	}
	return "/opt/homebrew/bin/brew"
}

// LoadFile overlays values from a TOML file onto the config.
func (c *Config) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("load config %s: %w", path, err)
	}
	if c.TimeoutSeconds > 0 {
		c.Timeout = time.Duration(c.TimeoutSeconds * float64(time.Second))
	}
	return nil
}

// Finalize expands home-relative paths, compiles the skip pattern and
// checks value ranges. Must be called once before the config is used.
func (c *Config) Finalize() error {
	if c.ArchiveDays <= 0 {
		return fmt.Errorf("archive-days must be positive, got %d", c.ArchiveDays)
	}
	if c.OrphansLimit <= 0 {
		return fmt.Errorf("orphans-limit must be positive, got %d", c.OrphansLimit)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}

	for _, p := range []*string{
		&c.AppSupportDir, &c.ArchiveDir, &c.ChromeDir,
		&c.CopySrc, &c.CopyDst, &c.Brew.ListFile, &c.Brew.CaskFile,
		&c.Report.OutDir,
	} {
		*p = c.ExpandHome(*p)
	}

	re, err := regexp.Compile(c.SkipPattern)
	if err != nil {
		return fmt.Errorf("invalid skip pattern: %w", err)
	}
	c.skipRe = re

	if len(c.Brew.FixCasks) == 0 {
		c.Brew.FixCasks = DefaultMissingCaskApps
	}
	return nil
}

// SkipRe returns the compiled skip pattern. Finalize must have run.
func (c *Config) SkipRe() *regexp.Regexp { return c.skipRe }

// ExpandHome expands a leading ~ to the configured home directory.
func (c *Config) ExpandHome(path string) string {
	if path == "~" {
		return c.Home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(c.Home, path[2:])
	}
	return path
}
