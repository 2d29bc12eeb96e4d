package task

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/report"
	"github.com/jpaulw/macmaint/internal/usecase"
)

const reportHelpText = `Examples:
  - Report only (HTML):
      macmaint run --mode report --task report-html --report-out-dir .

  - Dry-run on maintenance tasks:
      macmaint run --mode dry-run --task brew-maintenance --task cleanup-archives

  - Apply with explicit actions:
      macmaint run --mode apply --task brew-maintenance --brew-update --brew-upgrade

Report UI tips:
  - Filter checks by typing in the search box.
  - Toggle OK/WARN/BAD/SKIPPED to focus on issues.
  - Use "Expand all" to quickly view everything.
`

// ReportTask collects read-only system diagnostics and renders them as
// a standalone HTML page. Everything here is a probe, so the task
// behaves identically in every mode; the report is an output channel,
// not a system mutation.
type ReportTask struct {
	version string
}

// NewReportTask creates the report-html task.
func NewReportTask(version string) *ReportTask {
	return &ReportTask{version: version}
}

func (t *ReportTask) ID() string   { return IDReport }
func (t *ReportTask) Name() string { return "HTML system report" }

func (t *ReportTask) Run(ctx context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}
	gate := usecase.NewGate(rc)
	opts := rc.Config.Report

	sections := []report.Section{
		t.systemSection(ctx, rc, gate, opts),
		t.diskSection(ctx, rc, gate, opts),
		t.brewSection(ctx, rc, gate, opts),
		t.updatesSection(ctx, rc, gate, opts),
		t.startupSection(ctx, rc, gate),
		t.securitySection(ctx, rc, gate, opts),
		t.timeMachineSection(ctx, rc, gate),
		t.powerSection(ctx, rc, gate, opts),
		t.logsSection(ctx, rc, gate, opts),
	}

	host, _ := os.Hostname()
	username := ""
	if u, err := user.Current(); err == nil {
		username = u.Username
	}

	meta := report.PageMeta{
		Host:      host,
		User:      username,
		Generated: rc.Clock.Now(),
		RunID:     rc.RunID,
		Version:   t.version,
		Mode:      rc.Mode,
		HelpText:  reportHelpText,
	}

	htmlPath, err := report.Write(opts.OutDir, meta, sections, rc.Journal.Entries())
	if err != nil {
		result.Failed = true
		result.AddNote("report write failed: %v", err)
		result.Duration = time.Since(start)
		return result, err
	}
	result.AddNote("report written: %s", htmlPath)

	result.Duration = time.Since(start)
	return result, nil
}

// probe builds and runs a shell probe. skipReason, when non-empty,
// short-circuits execution with a SKIPPED result.
func (t *ReportTask) probe(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, title, command string, minTimeout time.Duration, skipReason string) domain.CommandResult {
	timeout := rc.Config.Timeout
	if minTimeout > timeout {
		timeout = minTimeout
	}
	return gate.Probe(ctx, domain.CommandSpec{
		Title:      title,
		Program:    command,
		Shell:      true,
		Timeout:    timeout,
		MaxChars:   rc.Config.MaxChars,
		MaxLines:   rc.Config.MaxLines,
		SkipReason: skipReason,
	})
}

func optIn(enabled bool, flag string) string {
	if enabled {
		return ""
	}
	return "Use --" + flag
}

func (t *ReportTask) systemSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	profiler := optIn(opts.IncludeProfiler, "include-profiler")
	return report.NewSection("System", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Kernel and architecture", "uname -a", 0, ""),
		t.probe(ctx, rc, gate, "macOS version", "sw_vers", 0, ""),
		t.probe(ctx, rc, gate, "Uptime", "uptime", 0, ""),
		t.hardwareQuickSummary(ctx, rc),
		t.probe(ctx, rc, gate, "Hardware summary (detailed; system_profiler)",
			"system_profiler SPHardwareDataType -detailLevel mini", 60*time.Second, profiler),
		t.probe(ctx, rc, gate, "Software summary (detailed; system_profiler)",
			"system_profiler SPSoftwareDataType -detailLevel mini", 60*time.Second, profiler),
	})
}

func (t *ReportTask) diskSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	heavy := optIn(opts.IncludeHeavy, "include-heavy")
	home := shellQuote(rc.Config.Home)
	trash := shellQuote(filepath.Join(rc.Config.Home, ".Trash"))
	return report.NewSection("Disk & Storage", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Filesystem free space", "df -h", 0, ""),
		t.probe(ctx, rc, gate, "Largest directories in home (top 30)",
			fmt.Sprintf("du -hd 1 %s 2>/dev/null | sort -h | tail -n 30", home),
			60*time.Second, heavy),
		t.probe(ctx, rc, gate, "Large files in home (>1GiB, first 200)",
			fmt.Sprintf("find %s -type f -size +1G -print 2>/dev/null | head -n 200", home),
			60*time.Second, heavy),
		t.probe(ctx, rc, gate, "Trash size",
			fmt.Sprintf(`du -sh %s 2>/dev/null || echo "No ~/.Trash"`, trash), 0, ""),
	})
}

func (t *ReportTask) brewSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	if _, err := exec.LookPath("brew"); err != nil {
		return report.NewSection("Homebrew", []domain.CommandResult{
			t.probe(ctx, rc, gate, "Homebrew not found", "command -v brew", 0, "Not installed"),
		})
	}
	network := optIn(opts.IncludeNetwork, "include-network")
	return report.NewSection("Homebrew", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Brew path", "command -v brew", 0, ""),
		t.probe(ctx, rc, gate, "Brew version", "brew --version", 0, ""),
		t.probe(ctx, rc, gate, "Brew config", "brew config", 0, ""),
		t.probe(ctx, rc, gate, "Outdated formulae/casks (may be inaccurate without brew update)",
			"brew outdated --verbose", 60*time.Second, ""),
		t.probe(ctx, rc, gate, "brew update (network)", "brew update", 120*time.Second, network),
	})
}

func (t *ReportTask) updatesSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	network := optIn(opts.IncludeNetwork, "include-network")
	return report.NewSection("Software Updates", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Available macOS updates (network)",
			"softwareupdate -l", 120*time.Second, network),
	})
}

func (t *ReportTask) startupSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate) report.Section {
	agents := shellQuote(filepath.Join(rc.Config.Home, "Library", "LaunchAgents"))
	return report.NewSection("Startup & Background Items", []domain.CommandResult{
		t.loginItemsDigest(ctx, rc),
		t.probe(ctx, rc, gate, "User LaunchAgents",
			fmt.Sprintf("ls -1 %s 2>/dev/null || true", agents), 0, ""),
		t.probe(ctx, rc, gate, "System LaunchAgents", "ls -1 /Library/LaunchAgents 2>/dev/null || true", 0, ""),
		t.probe(ctx, rc, gate, "System LaunchDaemons", "ls -1 /Library/LaunchDaemons 2>/dev/null || true", 0, ""),
		t.probe(ctx, rc, gate, "Loaded launchd jobs (first 60)", "launchctl list | head -n 60", 0, ""),
	})
}

func (t *ReportTask) securitySection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	logs := optIn(opts.IncludeLogs, "include-logs")
	return report.NewSection("Security", []domain.CommandResult{
		t.probe(ctx, rc, gate, "FileVault status", "fdesetup status", 0, ""),
		t.probe(ctx, rc, gate, "Gatekeeper status", "spctl --status", 0, ""),
		t.probe(ctx, rc, gate, "Firewall status (0=off,1=on,2=on+stealth)",
			`defaults read /Library/Preferences/com.apple.alf globalstate 2>/dev/null || echo "Unavailable"`, 0, ""),
		t.probe(ctx, rc, gate, "Quarantine events (last 7 days, first 50)",
			`log show --last 7d --predicate 'eventMessage contains[c] "Gatekeeper"' --style compact 2>/dev/null | head -n 50`,
			60*time.Second, logs),
	})
}

func (t *ReportTask) timeMachineSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate) report.Section {
	return report.NewSection("Backups (Time Machine)", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Time Machine status",
			`tmutil status 2>/dev/null || echo "tmutil not available"`, 0, ""),
		t.probe(ctx, rc, gate, "Time Machine destinations",
			`tmutil destinationinfo 2>/dev/null || echo "No destinations (or permission required)"`,
			60*time.Second, ""),
		t.probe(ctx, rc, gate, "Most recent backups (first 30)",
			`tmutil listbackups 2>/dev/null | tail -n 30 || echo "No backups listed"`,
			60*time.Second, ""),
	})
}

func (t *ReportTask) powerSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	profiler := optIn(opts.IncludeProfiler, "include-profiler")
	return report.NewSection("Battery & Power", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Battery summary", `pmset -g batt 2>/dev/null || echo "No battery"`, 0, ""),
		t.probe(ctx, rc, gate, "Power details (system_profiler)",
			`system_profiler SPPowerDataType -detailLevel mini 2>/dev/null || echo "Unavailable"`,
			60*time.Second, profiler),
	})
}

func (t *ReportTask) logsSection(ctx context.Context, rc *usecase.RunContext, gate *usecase.Gate, opts config.ReportOptions) report.Section {
	logs := optIn(opts.IncludeLogs, "include-logs")
	return report.NewSection("Logs (Quick Checks)", []domain.CommandResult{
		t.probe(ctx, rc, gate, "Recent system errors (last 1h, tail 200)",
			`log show --last 1h --predicate '(eventMessage CONTAINS[c] "error") OR (eventMessage CONTAINS[c] "failed")' --style compact 2>/dev/null | tail -n 200`,
			60*time.Second, logs),
	})
}

var (
	ioregModelRe       = regexp.MustCompile(`"model"\s*=\s*<"([^"]+)"`)
	ioregModelNumberRe = regexp.MustCompile(`"model-number"\s*=\s*<([0-9A-Fa-f]+)>`)
	loginItemLabelRe   = regexp.MustCompile(`\b[A-Za-z0-9_.-]+\.loginitem\b`)
)

// hardwareProfile is the subset of system_profiler's hardware JSON
// worth surfacing in the summary.
type hardwareProfile struct {
	SPHardwareDataType []struct {
		ChipType         string `json:"chip_type"`
		PhysicalMemory   string `json:"physical_memory"`
		BootROMVersion   string `json:"boot_rom_version"`
		OSLoaderVersion  string `json:"os_loader_version"`
		ModelNumber      string `json:"model_number"`
		NumberProcessors string `json:"number_processors"`
	} `json:"SPHardwareDataType"`
}

// hardwareQuickSummary joins ioreg's platform record with
// system_profiler's JSON into a handful of labeled lines. Both probes
// are folded into a single result so the section reads as one check.
func (t *ReportTask) hardwareQuickSummary(ctx context.Context, rc *usecase.RunContext) domain.CommandResult {
	const title = "Hardware quick summary"
	const command = "ioreg -rd1 -c IOPlatformExpertDevice; system_profiler SPHardwareDataType -json"

	minTimeout := func(min time.Duration) time.Duration {
		if rc.Config.Timeout > min {
			return rc.Config.Timeout
		}
		return min
	}

	ioreg := rc.Runner.Run(ctx, domain.CommandSpec{
		Title:   title,
		Program: "ioreg",
		Args:    []string{"-rd1", "-c", "IOPlatformExpertDevice"},
		Timeout: minTimeout(5 * time.Second),
	})
	profiler := rc.Runner.Run(ctx, domain.CommandSpec{
		Title:   title,
		Program: "system_profiler",
		Args:    []string{"SPHardwareDataType", "-json"},
		Timeout: minTimeout(10 * time.Second),
	})

	var lines, stderrParts []string
	exitCode := 0
	if ioreg.ExitCode != 0 {
		exitCode = ioreg.ExitCode
	}
	if profiler.ExitCode != 0 {
		exitCode = profiler.ExitCode
	}
	if s := strings.TrimSpace(ioreg.Stderr); s != "" {
		stderrParts = append(stderrParts, "[ioreg stderr]\n"+s)
	}
	if s := strings.TrimSpace(profiler.Stderr); s != "" {
		stderrParts = append(stderrParts, "[system_profiler stderr]\n"+s)
	}

	var model, modelNumber string
	if m := ioregModelRe.FindStringSubmatch(ioreg.Stdout); m != nil {
		model = strings.TrimSpace(m[1])
	}
	if m := ioregModelNumberRe.FindStringSubmatch(ioreg.Stdout); m != nil {
		if raw, err := hex.DecodeString(m[1]); err == nil {
			modelNumber = strings.TrimSpace(strings.Trim(string(raw), "\x00"))
		}
	}

	var hw hardwareProfile
	var chip, memory, cores, firmware, osLoader, spModelNumber string
	if strings.TrimSpace(profiler.Stdout) != "" {
		if err := json.Unmarshal([]byte(profiler.Stdout), &hw); err != nil {
			stderrParts = append(stderrParts, "[system_profiler parse]\n"+err.Error())
		} else if len(hw.SPHardwareDataType) > 0 {
			entry := hw.SPHardwareDataType[0]
			chip = entry.ChipType
			memory = entry.PhysicalMemory
			firmware = entry.BootROMVersion
			osLoader = entry.OSLoaderVersion
			spModelNumber = entry.ModelNumber
			cores = parseCoreLayout(entry.NumberProcessors)
		}
	}

	add := func(label, value string) {
		if value != "" {
			lines = append(lines, label+": "+value)
		}
	}
	add("Model Identifier", model)
	if spModelNumber != "" {
		add("Model Number", spModelNumber)
	} else {
		add("Model Number", modelNumber)
	}
	add("Chip", chip)
	add("Cores", cores)
	add("Memory", memory)
	add("Firmware", firmware)
	add("OS Loader", osLoader)

	out := strings.Join(lines, "\n")
	if out == "" {
		out = "(no output)"
		if len(stderrParts) == 0 {
			stderrParts = append(stderrParts, "No data returned from ioreg/system_profiler.")
		}
		if exitCode == 0 {
			exitCode = 1
		}
	}

	out, outTrunc := infra.TruncateText(out, rc.Config.MaxChars, rc.Config.MaxLines)
	errText, errTrunc := infra.TruncateText(strings.Join(stderrParts, "\n\n"), rc.Config.MaxChars, rc.Config.MaxLines)
	if outTrunc {
		out += "\n\n[output truncated]"
	}
	if errTrunc {
		errText += "\n\n[stderr truncated]"
	}

	result := domain.CommandResult{
		Title:     title,
		Command:   command,
		Stdout:    out,
		Stderr:    errText,
		ExitCode:  exitCode,
		Duration:  ioreg.Duration + profiler.Duration,
		Truncated: outTrunc || errTrunc,
		TimedOut:  ioreg.TimedOut || profiler.TimedOut,
	}
	t.journalComposite(rc, result)
	return result
}

// parseCoreLayout turns system_profiler's "proc 10:8:2" form into a
// readable "10 (8P+2E)".
func parseCoreLayout(numberProcessors string) string {
	rest, ok := strings.CutPrefix(numberProcessors, "proc ")
	if !ok {
		return ""
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return ""
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return ""
		}
	}
	return fmt.Sprintf("%s (%sP+%sE)", parts[0], parts[1], parts[2])
}

// loginFieldPrefixes are the launchctl print lines worth keeping in
// the per-item digest.
var loginFieldPrefixes = []string{
	"state = ",
	"path = ",
	"program identifier = ",
	"parent bundle identifier = ",
	"parent bundle version = ",
	"BTM uuid = ",
	"last exit code = ",
}

// loginItemsDigest summarizes ServiceManagement login items: one
// launchctl query for the label list, then a filtered per-label print.
func (t *ReportTask) loginItemsDigest(ctx context.Context, rc *usecase.RunContext) domain.CommandResult {
	const title = "Login items (ServiceManagement)"
	const command = "launchctl print gui/$UID + per-item launchctl print"

	uid := os.Getuid()
	domainTarget := fmt.Sprintf("gui/%d", uid)
	timeout := rc.Config.Timeout
	if timeout < 10*time.Second {
		timeout = 10 * time.Second
	}

	top := rc.Runner.Run(ctx, domain.CommandSpec{
		Title:   title,
		Program: "launchctl",
		Args:    []string{"print", domainTarget},
		Timeout: timeout,
	})

	var stderrParts []string
	if s := strings.TrimSpace(top.Stderr); s != "" {
		stderrParts = append(stderrParts, s)
	}

	labelSet := make(map[string]struct{})
	for _, label := range loginItemLabelRe.FindAllString(top.Stdout, -1) {
		if !strings.HasPrefix(label, "com.apple.") {
			labelSet[label] = struct{}{}
		}
	}
	labels := make([]string, 0, len(labelSet))
	for label := range labelSet {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	if len(labels) > 50 {
		labels = labels[:50]
	}

	duration := top.Duration
	var out string
	if len(labels) == 0 {
		out = "No ServiceManagement login items found via launchctl."
	} else {
		var blocks []string
		for _, label := range labels {
			item := rc.Runner.Run(ctx, domain.CommandSpec{
				Title:   title,
				Program: "launchctl",
				Args:    []string{"print", domainTarget + "/" + label},
				Timeout: timeout,
			})
			duration += item.Duration
			if s := strings.TrimSpace(item.Stderr); s != "" {
				stderrParts = append(stderrParts, "["+label+" stderr]\n"+s)
			}

			var fields []string
			seen := make(map[string]struct{})
			for _, line := range strings.Split(item.Stdout, "\n") {
				stripped := strings.TrimSpace(line)
				for _, prefix := range loginFieldPrefixes {
					if strings.HasPrefix(stripped, prefix) {
						if _, dup := seen[stripped]; !dup {
							seen[stripped] = struct{}{}
							fields = append(fields, stripped)
						}
						break
					}
				}
			}
			if len(fields) == 0 {
				fields = []string{"(no details)"}
			}
			blocks = append(blocks, label+"\n  "+strings.Join(fields, "\n  "))
		}
		out = strings.Join(blocks, "\n\n")
	}

	out, outTrunc := infra.TruncateText(out, rc.Config.MaxChars, rc.Config.MaxLines)
	errText, errTrunc := infra.TruncateText(strings.Join(stderrParts, "\n\n"), rc.Config.MaxChars, rc.Config.MaxLines)
	if outTrunc {
		out += "\n\n[output truncated]"
	}
	if errTrunc {
		errText += "\n\n[stderr truncated]"
	}

	result := domain.CommandResult{
		Title:     title,
		Command:   command,
		Stdout:    out,
		Stderr:    errText,
		ExitCode:  top.ExitCode,
		Duration:  duration,
		Truncated: outTrunc || errTrunc,
		TimedOut:  top.TimedOut,
	}
	t.journalComposite(rc, result)
	return result
}

// journalComposite records a synthesized multi-command probe the same
// way the gate records plain ones.
func (t *ReportTask) journalComposite(rc *usecase.RunContext, r domain.CommandResult) {
	outcome := domain.OutcomePerformed
	if r.ExitCode != 0 {
		outcome = domain.OutcomeFailed
	}
	rc.Journal.Append(rc.Mode, r.Title, r.Command, outcome)
}

// shellQuote wraps a path in single quotes for embedding in a shell
// probe. Paths under $HOME never contain single quotes in practice,
// but escape them anyway.
func shellQuote(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}
