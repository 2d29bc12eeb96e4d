// Package main is the CLI entry point for macmaint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/task"
	"github.com/jpaulw/macmaint/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "1.0.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "macmaint",
	Short: "Unified macOS maintenance tool",
	Long: `macmaint inspects and maintains a macOS machine: HTML health reports,
Homebrew upkeep, orphaned Application Support cleanup with timed
archives, Chrome profile cache cleanup and copy speed tests.

Nothing is changed unless --mode apply is given together with the
action's own flag; report and dry-run modes only observe and record.`,
	Version: Version,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run maintenance tasks under the selected mode",
	Long: `Runs the selected tasks sequentially. The mode decides what happens:
report only observes, dry-run records what would change based on real
probe data, apply performs flagged actions after path validation.`,
	RunE: runRun,
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List available tasks",
	Run:   runTasks,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	flagMode       string
	flagTasks      []string
	flagConfig     string
	flagVerbose    bool
	jsonOutput     bool
	flagTimeout    float64
	flagMaxChars   int
	flagMaxLines   int
	flagOutDir     string
	flagNetwork    bool
	flagHeavy      bool
	flagProfiler   bool
	flagLogs       bool
	flagAppSupport string
	flagAppsDir    string
	flagOrphansMax int
	flagArchiveDir string
	flagArchDays   int
	flagArchNames  []string
	flagSkipPat    string
	flagChromeDir  string
	flagKillChrome bool
	flagCopySrc    string
	flagCopyDst    string
	flagBrewBin    string
	flagBrew       config.BrewOptions
)

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagMode, "mode", "report", "Run mode: report, dry-run or apply")
	f.StringArrayVar(&flagTasks, "task", nil, "Task to run (repeatable, see 'macmaint tasks')")
	f.StringVar(&flagConfig, "config", "", "Path to a TOML config file")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	f.Float64Var(&flagTimeout, "timeout", config.DefaultTimeout.Seconds(), "Per-command timeout in seconds")
	f.IntVar(&flagMaxChars, "max-chars", config.DefaultMaxChars, "Max captured characters per stream")
	f.IntVar(&flagMaxLines, "max-lines", config.DefaultMaxLines, "Max captured lines per stream")

	f.StringVar(&flagOutDir, "report-out-dir", ".", "Directory for the HTML report")
	f.BoolVar(&flagNetwork, "include-network", false, "Include network checks in the report")
	f.BoolVar(&flagHeavy, "include-heavy", false, "Include heavy disk scans in the report")
	f.BoolVar(&flagProfiler, "include-profiler", false, "Include detailed system_profiler output")
	f.BoolVar(&flagLogs, "include-logs", false, "Include log queries in the report")

	f.StringVar(&flagAppSupport, "app-support-dir", "", "Application Support directory to scan")
	f.StringVar(&flagAppsDir, "applications-dir", "", "Directory holding installed .app bundles")
	f.IntVar(&flagOrphansMax, "orphans-limit", config.DefaultOrphansLimit, "Max orphan candidates listed")
	f.StringVar(&flagSkipPat, "skip-pattern", "", "Regex of folder names excluded from orphan detection")
	f.StringVar(&flagArchiveDir, "archive-dir", "", "Directory receiving orphan archives")
	f.IntVar(&flagArchDays, "archive-days", config.DefaultArchiveDays, "Days before an archive becomes deletable")
	f.StringArrayVar(&flagArchNames, "archive-folder", nil, "Folder name to archive (repeatable; default: scan results)")

	f.StringVar(&flagChromeDir, "chrome-dir", "", "Chrome Beta profile root")
	f.BoolVar(&flagKillChrome, "kill-chrome", false, "Allow closing a running browser before cleanup")

	f.StringVar(&flagCopySrc, "copy-src", "", "Source directory for the copy speed test")
	f.StringVar(&flagCopyDst, "copy-dst", "", "Destination volume for the copy speed test")

	f.StringVar(&flagBrewBin, "brew-bin", "", "Absolute path to the brew binary")
	f.BoolVar(&flagBrew.Update, "brew-update", false, "Run brew update")
	f.BoolVar(&flagBrew.Upgrade, "brew-upgrade", false, "Run brew upgrade")
	f.BoolVar(&flagBrew.UpgradeCask, "brew-upgrade-cask", false, "Run brew upgrade --cask --greedy")
	f.BoolVar(&flagBrew.Autoremove, "brew-autoremove", false, "Run brew autoremove")
	f.BoolVar(&flagBrew.Cleanup, "brew-cleanup", false, "Run brew cleanup --prune=7")
	f.BoolVar(&flagBrew.Doctor, "brew-doctor", false, "Run brew doctor")
	f.BoolVar(&flagBrew.Missing, "brew-missing", false, "Run brew missing")
	f.BoolVar(&flagBrew.List, "brew-list", false, "Snapshot installed formulae to a file")
	f.BoolVar(&flagBrew.CaskList, "brew-cask-list", false, "Snapshot installed casks to a file")
	f.BoolVar(&flagBrew.Untap, "brew-untap", false, "Remove taps with no installed formulae")
	f.BoolVar(&flagBrew.FixMissingCasks, "brew-fix-missing-casks", false, "Reinstall casks whose app bundle is missing")

	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	mode := domain.RunMode(flagMode)
	if !mode.Valid() {
		return fmt.Errorf("invalid mode %q (want report, dry-run or apply)", flagMode)
	}

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	taskIDs := flagTasks
	if len(taskIDs) == 0 {
		if mode != domain.ModeReport {
			fmt.Fprintln(os.Stderr, "no tasks selected; pass --task (see 'macmaint tasks')")
			os.Exit(2)
		}
		taskIDs = []string{task.IDReport}
	}

	logger := createLogger()
	defer func() { _ = logger.Sync() }()

	registry := task.NewRegistry(Version)
	selected := make([]task.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := registry.Get(id)
		if err != nil {
			return err
		}
		selected = append(selected, t)
	}

	clock := infra.NewSystemClock()
	rc := &usecase.RunContext{
		Mode:      mode,
		Config:    cfg,
		Journal:   infra.NewActionJournal(clock, logger),
		Runner:    infra.NewExecutor(logger),
		Validator: infra.NewPathGuard(cfg.SkipRe()),
		Clock:     clock,
		Disk:      infra.NewDiskUsage(),
		Logger:    logger,
		RunID:     uuid.NewString(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("run starting",
		zap.String("mode", string(mode)),
		zap.Strings("tasks", taskIDs),
		zap.String("run_id", rc.RunID))

	anyFailed := false
	for _, t := range selected {
		fmt.Printf("\n=== %s (%s) ===\n", t.Name(), t.ID())

		result, err := t.Run(ctx, rc)
		if err != nil {
			if usecase.ClassifyTaskErr(err) {
				logger.Error("task failed", zap.String("task", t.ID()), zap.Error(err))
				anyFailed = true
			} else {
				// Path rejections and scan errors are already in the
				// journal; the run carries on.
				logger.Warn("task stopped early", zap.String("task", t.ID()), zap.Error(err))
			}
		}
		if result != nil {
			for _, note := range result.Notes {
				fmt.Println(note)
			}
			if result.Failed {
				anyFailed = true
			}
			fmt.Printf("--- %s finished in %s ---\n", t.ID(), result.Duration.Round(time.Millisecond))
		}

		if ctx.Err() != nil {
			logger.Warn("run interrupted")
			anyFailed = true
			break
		}
	}

	printJournal(rc.Journal.Entries())

	if anyFailed {
		return fmt.Errorf("one or more tasks failed")
	}
	return nil
}

// buildConfig resolves defaults, then the optional TOML file, then any
// explicitly supplied flags, in that order.
func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("cannot resolve home directory: %w", err)
	}
	cfg := config.Default(home)

	if flagConfig != "" {
		if err := cfg.LoadFile(flagConfig); err != nil {
			return nil, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("timeout") {
		cfg.Timeout = time.Duration(flagTimeout * float64(time.Second))
	}
	if changed("max-chars") {
		cfg.MaxChars = flagMaxChars
	}
	if changed("max-lines") {
		cfg.MaxLines = flagMaxLines
	}
	if changed("report-out-dir") {
		cfg.Report.OutDir = flagOutDir
	}
	cfg.Report.IncludeNetwork = cfg.Report.IncludeNetwork || flagNetwork
	cfg.Report.IncludeHeavy = cfg.Report.IncludeHeavy || flagHeavy
	cfg.Report.IncludeProfiler = cfg.Report.IncludeProfiler || flagProfiler
	cfg.Report.IncludeLogs = cfg.Report.IncludeLogs || flagLogs

	if changed("app-support-dir") {
		cfg.AppSupportDir = flagAppSupport
	}
	if changed("applications-dir") {
		cfg.ApplicationsDir = flagAppsDir
	}
	if changed("orphans-limit") {
		cfg.OrphansLimit = flagOrphansMax
	}
	if changed("skip-pattern") {
		cfg.SkipPattern = flagSkipPat
	}
	if changed("archive-dir") {
		cfg.ArchiveDir = flagArchiveDir
	}
	if changed("archive-days") {
		cfg.ArchiveDays = flagArchDays
	}
	if changed("archive-folder") {
		cfg.ArchiveFolders = flagArchNames
	}
	if changed("chrome-dir") {
		cfg.ChromeDir = flagChromeDir
	}
	cfg.KillChrome = cfg.KillChrome || flagKillChrome
	if changed("copy-src") {
		cfg.CopySrc = flagCopySrc
	}
	if changed("copy-dst") {
		cfg.CopyDst = flagCopyDst
	}
	if changed("brew-bin") {
		cfg.Brew.Bin = flagBrewBin
	}
	cfg.Brew.Update = cfg.Brew.Update || flagBrew.Update
	cfg.Brew.Upgrade = cfg.Brew.Upgrade || flagBrew.Upgrade
	cfg.Brew.UpgradeCask = cfg.Brew.UpgradeCask || flagBrew.UpgradeCask
	cfg.Brew.Autoremove = cfg.Brew.Autoremove || flagBrew.Autoremove
	cfg.Brew.Cleanup = cfg.Brew.Cleanup || flagBrew.Cleanup
	cfg.Brew.Doctor = cfg.Brew.Doctor || flagBrew.Doctor
	cfg.Brew.Missing = cfg.Brew.Missing || flagBrew.Missing
	cfg.Brew.List = cfg.Brew.List || flagBrew.List
	cfg.Brew.CaskList = cfg.Brew.CaskList || flagBrew.CaskList
	cfg.Brew.Untap = cfg.Brew.Untap || flagBrew.Untap
	cfg.Brew.FixMissingCasks = cfg.Brew.FixMissingCasks || flagBrew.FixMissingCasks

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func printJournal(entries []domain.JournalEntry) {
	if len(entries) == 0 {
		return
	}
	fmt.Println("\n=== Action Journal ===")
	for _, e := range entries {
		fmt.Println(e.String())
	}
	fmt.Println("======================")
}

func createLogger() *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if flagVerbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runTasks(cmd *cobra.Command, args []string) {
	registry := task.NewRegistry(Version)
	fmt.Println("Available tasks:")
	for _, t := range registry.GetAll() {
		fmt.Printf("  %-18s %s\n", t.ID(), t.Name())
	}
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("macmaint %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
