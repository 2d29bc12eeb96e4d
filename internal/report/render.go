package report

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jpaulw/macmaint/internal/domain"
)

// PageMeta is the header block of the report.
type PageMeta struct {
	Host      string
	User      string
	Generated time.Time
	RunID     string
	Version   string
	Mode      domain.RunMode
	HelpText  string
}

// actionsNotRun lists maintenance actions the report never performs.
const actionsNotRun = `These are common maintenance actions that this report does NOT run automatically:

- Install macOS updates:  sudo softwareupdate -ia --verbose
- Install + reboot:       sudo softwareupdate -iaR --verbose
- Upgrade Homebrew:       brew upgrade
- Cleanup Homebrew:       brew cleanup -s
- Empty Trash:            rm -rf ~/.Trash/*
- Reboot:                 sudo shutdown -r now

Run them manually if/when you want to perform changes.`

func renderResult(r domain.CommandResult) string {
	badge := BadgeFor(r)
	badges := []string{
		fmt.Sprintf(`<span class="badge %s">%s</span>`, badge.Class, html.EscapeString(badge.Text)),
		fmt.Sprintf(`<span class="badge">%s</span>`, html.EscapeString(fmt.Sprintf("%.2fs", r.Duration.Seconds()))),
	}
	if r.Skipped() {
		badges = append(badges, fmt.Sprintf(`<span class="badge warn">%s</span>`, html.EscapeString(r.SkipReason)))
	}

	tags := []string{badge.Class}
	if r.Skipped() {
		tags = append(tags, "skipped")
	}
	if badge.Text == "TIMEOUT" {
		tags = append(tags, "timeout")
	}
	if badge.Text == "MISSING" {
		tags = append(tags, "missing")
	}

	open := ""
	if badge.Class != StatusOK {
		open = "open"
	}

	stdout := r.Stdout
	if stdout == "" {
		stdout = "(no output)"
	}
	stderrBlock := ""
	if r.Stderr != "" {
		stderrBlock = fmt.Sprintf("    <div class=\"subhead\">stderr</div>\n    <pre>%s</pre>\n",
			html.EscapeString(r.Stderr))
	}

	return fmt.Sprintf(`<div class="block">
  <details class="cmdblock" data-status=%q data-tags=%q %s>
    <summary>
      <div class="sumleft">
        <div class="titleline">%s</div>
        <div class="cmdinline">
          <code class="cmd cmd--summary">%s</code>
          <button class="copy" type="button" data-copy=%q>Copy</button>
        </div>
      </div>
      <div class="sumright">
        <div class="badges">%s</div>
      </div>
    </summary>
    <pre>%s</pre>
%s  </details>
</div>`,
		badge.Class, strings.Join(tags, " "), open,
		html.EscapeString(r.Title),
		html.EscapeString(r.Command),
		html.EscapeString(r.Command),
		strings.Join(badges, ""),
		html.EscapeString(stdout),
		stderrBlock)
}

func renderSection(s Section) string {
	blocks := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		blocks = append(blocks, renderResult(r))
	}
	return fmt.Sprintf(`<section id=%q data-status=%q>
  <h2>
    <span>%s</span>
    <span class="sectionmeta">%s</span>
  </h2>
%s
</section>`,
		s.SectionID, Status(s.Results),
		html.EscapeString(s.Title),
		html.EscapeString(Meta(s.Results)),
		strings.Join(blocks, "\n"))
}

func renderJournal(entries []domain.JournalEntry) string {
	if len(entries) == 0 {
		return ""
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.String())
	}
	return fmt.Sprintf(`<section id="action-journal">
  <h2><span>Action Journal</span><span class="sectionmeta">%d decisions</span></h2>
  <div class="block"><pre>%s</pre></div>
</section>`,
		len(entries), html.EscapeString(strings.Join(lines, "\n")))
}

// RenderPage builds the full HTML document. cssName is the sibling
// stylesheet file the page links to.
func RenderPage(meta PageMeta, cssName string, sections []Section, journal []domain.JournalEntry) string {
	var all []domain.CommandResult
	for _, s := range sections {
		all = append(all, s.Results...)
	}
	var countOK, countWarn, countBad, countSkipped int
	var totalRuntime time.Duration
	for _, r := range all {
		switch BadgeFor(r).Class {
		case StatusOK:
			countOK++
		case StatusWarn:
			countWarn++
		case StatusBad:
			countBad++
		}
		if r.Skipped() {
			countSkipped++
		}
		totalRuntime += r.Duration
	}

	tocItems := make([]string, 0, len(sections))
	for _, s := range sections {
		tocItems = append(tocItems, fmt.Sprintf(
			`<div class="tocitem %s"><a href="#%s">%s</a><span class="badge">%s</span></div>`,
			Status(s.Results), s.SectionID,
			html.EscapeString(s.Title), html.EscapeString(Meta(s.Results))))
	}

	sectionsHTML := make([]string, 0, len(sections))
	for _, s := range sections {
		sectionsHTML = append(sectionsHTML, renderSection(s))
	}

	return fmt.Sprintf(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>macOS Maintenance Report</title>
  <link rel="stylesheet" href=%q />
</head>
<body>
  <div class="wrap">
    <header>
      <h1>macOS Maintenance Report</h1>
      <div class="meta">
        <div><b>Host:</b> %s</div>
        <div><b>Generated:</b> %s</div>
        <div><b>User:</b> %s</div>
        <div><b>Mode:</b> %s</div>
        <div><b>Run:</b> %s (macmaint %s)</div>
      </div>
      <div class="toolbar">
        <div class="left">
          <input id="search" type="search" placeholder="Filter by check name or command…" autocomplete="off" />
          <div class="pillbar">
            <label class="toggle"><input id="toggle-ok" type="checkbox" checked /> OK</label>
            <label class="toggle"><input id="toggle-warn" type="checkbox" checked /> WARN</label>
            <label class="toggle"><input id="toggle-bad" type="checkbox" checked /> BAD</label>
            <label class="toggle"><input id="toggle-skipped" type="checkbox" checked /> SKIPPED</label>
          </div>
        </div>
        <div class="actions">
          <button id="help-btn" class="btn" type="button">Help</button>
          <button id="expand-all" class="btn" type="button">Expand all</button>
          <button id="collapse-all" class="btn" type="button">Collapse all</button>
        </div>
      </div>
      <div class="summary">
        <div class="card"><div class="k">Total checks</div><div class="v">%d</div></div>
        <div class="card ok"><div class="k">OK</div><div class="v">%d</div></div>
        <div class="card warn"><div class="k">WARN</div><div class="v">%d</div></div>
        <div class="card bad"><div class="k">BAD</div><div class="v">%d</div></div>
        <div class="card"><div class="k">Skipped</div><div class="v">%d</div></div>
        <div class="card"><div class="k">Runtime (sum)</div><div class="v">%.1fs</div></div>
      </div>
    </header>
    <div class="toc"><h2>Sections</h2><div class="tocgrid">%s</div></div>
%s
    <section><h2>Actions (Not Run)</h2><div class="block"><pre>%s</pre></div></section>
%s
    <footer>Tip: re-run with <code>--include-heavy</code>, <code>--include-network</code>, <code>--include-profiler</code>, and/or <code>--include-logs</code> for deeper checks.</footer>
    <div id="help-modal" class="modal" role="dialog" aria-modal="true" aria-label="Report help">
      <div class="dialog">
        <div class="dialoghead">
          <h3>How to run this report</h3>
          <button id="help-close" class="btn" type="button">Close <span class="kbd">(Esc)</span></button>
        </div>
        <div class="dialogbody">
          <pre>%s</pre>
        </div>
      </div>
    </div>
    <script>%s</script>
  </div>
</body>
</html>`,
		cssName,
		html.EscapeString(meta.Host),
		html.EscapeString(meta.Generated.Format(time.RFC3339)),
		html.EscapeString(meta.User),
		html.EscapeString(string(meta.Mode)),
		html.EscapeString(meta.RunID),
		html.EscapeString(meta.Version),
		len(all), countOK, countWarn, countBad, countSkipped, totalRuntime.Seconds(),
		strings.Join(tocItems, "\n"),
		strings.Join(sectionsHTML, "\n"),
		html.EscapeString(actionsNotRun),
		renderJournal(journal),
		html.EscapeString(meta.HelpText),
		reportJS)
}

// Write renders and writes the paired HTML/CSS files into outDir,
// named mac_maintenance_report_<stamp>.html / .css, and returns the
// HTML path.
func Write(outDir string, meta PageMeta, sections []Section, journal []domain.JournalEntry) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	stamp := meta.Generated.Format("20060102_150405")
	base := filepath.Join(outDir, "mac_maintenance_report_"+stamp)
	htmlPath := base + ".html"
	cssPath := base + ".css"

	page := RenderPage(meta, filepath.Base(cssPath), sections, journal)

	if err := os.WriteFile(cssPath, []byte(styleCSS), 0o644); err != nil {
		return "", fmt.Errorf("write stylesheet: %w", err)
	}
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return htmlPath, nil
}
