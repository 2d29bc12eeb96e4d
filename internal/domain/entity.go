// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"fmt"
	"time"
)

// RunMode is the permission gate for a whole invocation.
// It is fixed at startup and never changes during a run.
type RunMode string

const (
	// ModeReport runs read-only probes only; every mutation is refused.
	ModeReport RunMode = "report"
	// ModeDryRun simulates mutations and journals what would happen.
	ModeDryRun RunMode = "dry-run"
	// ModeApply performs mutations, subject to flag and path checks.
	ModeApply RunMode = "apply"
)

// Valid reports whether m is one of the three known modes.
func (m RunMode) Valid() bool {
	switch m {
	case ModeReport, ModeDryRun, ModeApply:
		return true
	}
	return false
}

// Mutates reports whether this mode is allowed to change anything.
func (m RunMode) Mutates() bool {
	return m == ModeApply
}

// CommandSpec describes one external invocation as a structured
// (program, argument-list) pair. Commands are never built by string
// interpolation. Shell is only set by tasks that need a pipeline, and
// then Program must be a pre-validated absolute shell path.
type CommandSpec struct {
	Title      string
	Program    string
	Args       []string
	Shell      bool   // run the single arg via sh -c
	Dir        string // working directory, optional
	Timeout    time.Duration
	MaxChars   int
	MaxLines   int
	SkipReason string // when set, the command is not run at all
}

// Display returns the command line for logs and reports.
func (s CommandSpec) Display() string {
	line := s.Program
	for _, a := range s.Args {
		line += " " + a
	}
	return line
}

// ExitTimeout is the exit-code sentinel for a timed-out command.
const ExitTimeout = -1

// CommandResult is the normalized outcome of one external invocation.
// Produced once by the executor and immutable thereafter. Truncation
// bounds only the captured text streams, never exit code or duration.
type CommandResult struct {
	Title      string
	Command    string
	Stdout     string
	Stderr     string
	ExitCode   int // ExitTimeout when the command was killed on deadline
	Duration   time.Duration
	Truncated  bool
	TimedOut   bool
	SkipReason string
}

// Skipped reports whether the command was never run.
func (r CommandResult) Skipped() bool { return r.SkipReason != "" }

// OrphanCandidate is a directory under the application-support root
// with no matching installed application bundle. Constructed during a
// scan and discarded afterwards unless promoted to an archive.
type OrphanCandidate struct {
	Name     string
	Path     string
	Modified time.Time
	SizeKB   int64 // -1 when unknown
}

// ArchiveEntry describes one archived orphan directory. DeleteAfter is
// computed once at creation and encoded into the archive file name, so
// a later invocation can recover expiry from the name alone.
type ArchiveEntry struct {
	ArchivePath string
	SourcePath  string
	CreatedAt   time.Time
	DeleteAfter time.Time
	Deleted     bool
}

// JournalOutcome classifies one gated decision.
type JournalOutcome string

const (
	OutcomePerformed    JournalOutcome = "performed"
	OutcomeWouldPerform JournalOutcome = "would-perform"
	OutcomeRefused      JournalOutcome = "refused"
	OutcomeFailed       JournalOutcome = "failed"
)

// JournalEntry is one immutable record of a gated decision.
type JournalEntry struct {
	Time    time.Time
	Mode    RunMode
	Action  string
	Detail  string
	Outcome JournalOutcome
}

// String renders the entry the way it appears in the report.
func (e JournalEntry) String() string {
	s := fmt.Sprintf("%s [%s] %s: %s",
		e.Time.Format("2006-01-02 15:04:05"), e.Mode, e.Outcome, e.Action)
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	return s
}

// TaskResult captures what a single task produced during a run.
type TaskResult struct {
	TaskID   string
	Title    string
	Results  []CommandResult
	Notes    []string
	Failed   bool
	Duration time.Duration
}

// AddNote appends a free-form line to the task output.
func (t *TaskResult) AddNote(format string, args ...any) {
	t.Notes = append(t.Notes, fmt.Sprintf(format, args...))
}

// ScanSummary reports a scan even when the candidate list is capped
// for display.
type ScanSummary struct {
	Candidates []OrphanCandidate // sorted by name, capped at the display limit
	Total      int               // full count before capping
	Skipped    int               // entries excluded by the skip pattern
	Errors     int               // unreadable entries
}
