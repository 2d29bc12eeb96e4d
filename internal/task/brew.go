package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/usecase"
)

// caskNameOverrides maps app bundle names to their cask tokens where
// the two differ.
var caskNameOverrides = map[string]string{
	"JupyterLab":  "jupyterlab-app",
	"LosslessCut": "losslesscut",
	"RsyncUI":     "rsyncui",
}

// BrewTask runs Homebrew maintenance. Read-only subcommands (doctor,
// missing, list) run in every mode; everything else goes through the
// gate with its own flag.
type BrewTask struct{}

// NewBrewTask creates the brew-maintenance task.
func NewBrewTask() *BrewTask { return &BrewTask{} }

func (t *BrewTask) ID() string   { return IDBrew }
func (t *BrewTask) Name() string { return "Homebrew maintenance" }

func (t *BrewTask) Run(ctx context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}
	gate := usecase.NewGate(rc)

	bin := rc.Config.Brew.Bin
	if !filepath.IsAbs(bin) {
		result.Failed = true
		result.AddNote("brew binary path must be absolute: %s", bin)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("brew binary path must be absolute: %s", bin)
	}
	if _, err := os.Stat(bin); err != nil {
		result.Failed = true
		result.AddNote("brew binary not found: %s", bin)
		result.Duration = time.Since(start)
		return result, fmt.Errorf("brew binary not found: %s", bin)
	}

	opts := rc.Config.Brew
	if !opts.AnyAction() && !rc.Mode.Mutates() {
		// default probe set keeps report and dry-run informative
		opts.Doctor = true
		opts.List = true
		opts.CaskList = true
	}

	spec := func(title string, args ...string) domain.CommandSpec {
		return domain.CommandSpec{
			Title:    title,
			Program:  bin,
			Args:     args,
			Timeout:  rc.Config.Timeout,
			MaxChars: rc.Config.MaxChars,
			MaxLines: rc.Config.MaxLines,
		}
	}
	run := func(s domain.CommandSpec, flag bool) {
		res, ran := gate.Command(ctx, s, flag)
		if ran {
			result.Results = append(result.Results, res)
			if res.TimedOut || res.ExitCode != 0 {
				result.Failed = true
			}
		} else {
			result.AddNote("%s: %s", usecase.Describe(rc.Mode, "run"), s.Display())
		}
	}

	if opts.Update {
		run(spec("brew update", "update"), opts.Update)
	}
	if opts.Upgrade {
		run(spec("brew upgrade", "upgrade"), opts.Upgrade)
	}
	if opts.UpgradeCask {
		run(spec("brew upgrade casks", "upgrade", "--cask", "--greedy"), opts.UpgradeCask)
	}
	if opts.Autoremove {
		run(spec("brew autoremove", "autoremove"), opts.Autoremove)
	}
	if opts.Cleanup {
		run(spec("brew cleanup", "cleanup", "--prune=7"), opts.Cleanup)
	}
	if opts.Untap {
		t.untapUnused(ctx, rc, gate, bin, result)
	}

	// doctor and missing never change anything; run them directly
	if opts.Doctor {
		res := gate.Probe(ctx, spec("brew doctor", "doctor"))
		result.Results = append(result.Results, res)
	}
	if opts.Missing {
		res := gate.Probe(ctx, spec("brew missing", "missing"))
		result.Results = append(result.Results, res)
	}

	if opts.List {
		t.snapshotList(ctx, rc, gate, spec("brew list", "list", "--formula"),
			opts.ListFile, result)
	}
	if opts.CaskList {
		t.snapshotList(ctx, rc, gate, spec("brew cask list", "list", "--cask"),
			opts.CaskFile, result)
	}

	if opts.FixMissingCasks {
		t.fixMissingCasks(ctx, rc, gate, bin, result)
	}

	result.Duration = time.Since(start)
	return result, nil
}

// untapUnused removes installed taps with zero installed formulae.
func (t *BrewTask) untapUnused(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, bin string, result *domain.TaskResult) {
	taps := gate.Probe(ctx, domain.CommandSpec{
		Title: "brew tap", Program: bin, Args: []string{"tap"},
		Timeout: rc.Config.Timeout,
	})
	if taps.ExitCode != 0 {
		result.AddNote("could not list taps (exit %d)", taps.ExitCode)
		return
	}
	formulae := gate.Probe(ctx, domain.CommandSpec{
		Title: "brew tap contents", Program: bin,
		Args:    []string{"list", "--formula", "--full-name"},
		Timeout: rc.Config.Timeout,
	})
	for _, tap := range splitLines(taps.Stdout) {
		if tap == "homebrew/core" || tap == "homebrew/cask" {
			continue
		}
		if tapInUse(tap, formulae.Stdout) {
			continue
		}
		res, ran := gate.Command(ctx, domain.CommandSpec{
			Title: "brew untap " + tap, Program: bin,
			Args:    []string{"untap", tap},
			Timeout: rc.Config.Timeout,
		}, true)
		if ran {
			result.Results = append(result.Results, res)
		} else {
			result.AddNote("%s tap %s", usecase.Describe(rc.Mode, "remove"), tap)
		}
	}
}

func tapInUse(tap, fullNames string) bool {
	for _, name := range splitLines(fullNames) {
		if strings.HasPrefix(name, tap+"/") {
			return true
		}
	}
	return false
}

// snapshotList probes a brew list variant and writes the output to a
// snapshot file. The file lands in report and apply modes; dry-run
// journals the intended write and leaves the disk alone.
func (t *BrewTask) snapshotList(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, spec domain.CommandSpec, outFile string, result *domain.TaskResult) {
	res := gate.Probe(ctx, spec)
	result.Results = append(result.Results, res)
	if res.ExitCode != 0 {
		return
	}
	if rc.Mode == domain.ModeDryRun {
		gate.Note(spec.Title, "would write "+outFile)
		result.AddNote("would write %s", outFile)
		return
	}
	if err := os.WriteFile(outFile, []byte(res.Stdout), 0o644); err != nil {
		rc.Logger.Warn("snapshot write failed", zap.String("file", outFile), zap.Error(err))
		result.AddNote("could not write %s: %v", outFile, err)
		return
	}
	result.AddNote("wrote %s", outFile)
}

// fixMissingCasks reinstalls casks whose /Applications bundle vanished,
// which happens to some apps after macOS upgrades.
func (t *BrewTask) fixMissingCasks(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, bin string, result *domain.TaskResult) {
	installed := gate.Probe(ctx, domain.CommandSpec{
		Title: "brew cask inventory", Program: bin,
		Args:    []string{"list", "--cask"},
		Timeout: rc.Config.Timeout,
	})
	if installed.ExitCode != 0 {
		result.AddNote("could not list casks (exit %d)", installed.ExitCode)
		return
	}
	casks := make(map[string]struct{})
	for _, c := range splitLines(installed.Stdout) {
		casks[c] = struct{}{}
	}

	for _, app := range rc.Config.Brew.FixCasks {
		token := strings.ToLower(app)
		if o, ok := caskNameOverrides[app]; ok {
			token = o
		}
		if _, ok := casks[token]; !ok {
			continue
		}
		bundle := filepath.Join(rc.Config.ApplicationsDir, app+".app")
		if _, err := os.Stat(bundle); err == nil {
			continue
		}

		result.AddNote("cask %s installed but %s missing", token, bundle)
		ranAny := false
		for _, sub := range []string{"uninstall", "install"} {
			res, ran := gate.Command(ctx, domain.CommandSpec{
				Title: "brew " + sub + " " + token, Program: bin,
				Args:    []string{sub, "--cask", token},
				Timeout: rc.Config.Timeout,
			}, true)
			if !ran {
				continue
			}
			ranAny = true
			result.Results = append(result.Results, res)
			if res.ExitCode != 0 {
				result.Failed = true
				break
			}
		}
		if !ranAny {
			result.AddNote("%s cask %s", usecase.Describe(rc.Mode, "reinstall"), token)
		}
	}
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
