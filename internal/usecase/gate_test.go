package usecase

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
)

// mockRunner implements domain.CommandRunner for testing
type mockRunner struct {
	result domain.CommandResult
	specs  []domain.CommandSpec
}

func (m *mockRunner) Run(_ context.Context, spec domain.CommandSpec) domain.CommandResult {
	m.specs = append(m.specs, spec)
	r := m.result
	r.Title = spec.Title
	r.Command = spec.Display()
	return r
}

// mockJournal implements domain.Journal for testing
type mockJournal struct {
	entries []domain.JournalEntry
}

func (m *mockJournal) Append(mode domain.RunMode, action, detail string, outcome domain.JournalOutcome) {
	m.entries = append(m.entries, domain.JournalEntry{
		Mode: mode, Action: action, Detail: detail, Outcome: outcome,
	})
}

func (m *mockJournal) Entries() []domain.JournalEntry { return m.entries }

// mockValidator implements domain.PathValidator for testing
type mockValidator struct {
	err error
}

func (m *mockValidator) Validate(path, root string) error { return m.err }

// mockClock implements domain.Clock at a settable instant
type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

// mockDisk implements domain.DiskUsage with a fixed size
type mockDisk struct {
	sizeKB int64
}

func (m *mockDisk) SizeKB(path string) int64 { return m.sizeKB }

func testRunContext(mode domain.RunMode) (*RunContext, *mockJournal, *mockRunner) {
	journal := &mockJournal{}
	runner := &mockRunner{}
	cfg := config.Default("/tmp/home")
	return &RunContext{
		Mode:      mode,
		Config:    cfg,
		Journal:   journal,
		Runner:    runner,
		Validator: &mockValidator{},
		Clock:     &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		Disk:      &mockDisk{},
		Logger:    zap.NewNop(),
		RunID:     "test-run",
	}, journal, runner
}

// TestProbe_RunsInEveryMode verifies probes execute regardless of mode
func TestProbe_RunsInEveryMode(t *testing.T) {
	for _, mode := range []domain.RunMode{domain.ModeReport, domain.ModeDryRun, domain.ModeApply} {
		rc, journal, runner := testRunContext(mode)
		gate := NewGate(rc)

		result := gate.Probe(context.Background(), domain.CommandSpec{Title: "uname", Program: "uname"})

		assert.Len(t, runner.specs, 1, "mode %s", mode)
		assert.Equal(t, "uname", result.Title)
		require.Len(t, journal.entries, 1)
		assert.Equal(t, domain.OutcomePerformed, journal.entries[0].Outcome)
	}
}

// TestProbe_FailureJournaled verifies failing probes record a failed
// outcome
func TestProbe_FailureJournaled(t *testing.T) {
	rc, journal, runner := testRunContext(domain.ModeReport)
	runner.result = domain.CommandResult{ExitCode: 1}
	gate := NewGate(rc)

	gate.Probe(context.Background(), domain.CommandSpec{Title: "check", Program: "false"})

	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeFailed, journal.entries[0].Outcome)
}

// TestCommand_ReportRefuses verifies report mode never executes
// mutating commands
func TestCommand_ReportRefuses(t *testing.T) {
	rc, journal, runner := testRunContext(domain.ModeReport)
	gate := NewGate(rc)

	_, ran := gate.Command(context.Background(), domain.CommandSpec{Title: "brew update", Program: "brew"}, true)

	assert.False(t, ran)
	assert.Empty(t, runner.specs)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeRefused, journal.entries[0].Outcome)
	assert.Contains(t, journal.entries[0].Detail, "report mode")
}

// TestCommand_DryRunJournalsIntent verifies dry-run records the exact
// command without executing it
func TestCommand_DryRunJournalsIntent(t *testing.T) {
	rc, journal, runner := testRunContext(domain.ModeDryRun)
	gate := NewGate(rc)

	spec := domain.CommandSpec{Title: "brew update", Program: "brew", Args: []string{"update"}}
	_, ran := gate.Command(context.Background(), spec, true)

	assert.False(t, ran)
	assert.Empty(t, runner.specs)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeWouldPerform, journal.entries[0].Outcome)
	assert.Contains(t, journal.entries[0].Detail, "brew update")
}

// TestCommand_ApplyWithoutFlagRefuses verifies apply mode still needs
// the action's own flag
func TestCommand_ApplyWithoutFlagRefuses(t *testing.T) {
	rc, journal, runner := testRunContext(domain.ModeApply)
	gate := NewGate(rc)

	_, ran := gate.Command(context.Background(), domain.CommandSpec{Title: "brew upgrade", Program: "brew"}, false)

	assert.False(t, ran)
	assert.Empty(t, runner.specs)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeRefused, journal.entries[0].Outcome)
	assert.Contains(t, journal.entries[0].Detail, "flag not set")
}

// TestCommand_ApplyExecutes verifies apply mode with the flag runs the
// command
func TestCommand_ApplyExecutes(t *testing.T) {
	rc, journal, runner := testRunContext(domain.ModeApply)
	gate := NewGate(rc)

	_, ran := gate.Command(context.Background(), domain.CommandSpec{Title: "brew update", Program: "brew"}, true)

	assert.True(t, ran)
	assert.Len(t, runner.specs, 1)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomePerformed, journal.entries[0].Outcome)
}

// TestMutate_PathValidatedInEveryMode verifies a rejected path is
// refused even in dry-run
func TestMutate_PathValidatedInEveryMode(t *testing.T) {
	for _, mode := range []domain.RunMode{domain.ModeReport, domain.ModeDryRun, domain.ModeApply} {
		rc, journal, _ := testRunContext(mode)
		rc.Validator = &mockValidator{err: &domain.PathValidationError{
			Path: "/etc", Root: "/tmp/home", Reason: "outside allowed root",
		}}
		gate := NewGate(rc)

		called := false
		performed, err := gate.Mutate("delete", "/etc", "/tmp/home", "would delete /etc", true, func() error {
			called = true
			return nil
		})

		assert.False(t, performed, "mode %s", mode)
		assert.Error(t, err)
		assert.False(t, called)
		require.Len(t, journal.entries, 1)
		assert.Equal(t, domain.OutcomeRefused, journal.entries[0].Outcome)
		assert.Contains(t, journal.entries[0].Detail, "path rejected")
	}
}

// TestMutate_ModeSemantics verifies only apply with the flag performs
func TestMutate_ModeSemantics(t *testing.T) {
	tests := []struct {
		name      string
		mode      domain.RunMode
		flagSet   bool
		performed bool
		outcome   domain.JournalOutcome
	}{
		{"report refuses", domain.ModeReport, true, false, domain.OutcomeRefused},
		{"dry-run would perform", domain.ModeDryRun, true, false, domain.OutcomeWouldPerform},
		{"apply without flag refuses", domain.ModeApply, false, false, domain.OutcomeRefused},
		{"apply with flag performs", domain.ModeApply, true, true, domain.OutcomePerformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, journal, _ := testRunContext(tt.mode)
			gate := NewGate(rc)

			called := false
			performed, err := gate.Mutate("action", "/tmp/home/x", "/tmp/home", "would do x", tt.flagSet, func() error {
				called = true
				return nil
			})

			require.NoError(t, err)
			assert.Equal(t, tt.performed, performed)
			assert.Equal(t, tt.performed, called)
			require.Len(t, journal.entries, 1)
			assert.Equal(t, tt.outcome, journal.entries[0].Outcome)
		})
	}
}

// TestMutate_FnErrorJournaled verifies a failing mutation records a
// failed outcome and returns the error
func TestMutate_FnErrorJournaled(t *testing.T) {
	rc, journal, _ := testRunContext(domain.ModeApply)
	gate := NewGate(rc)

	boom := errors.New("disk full")
	performed, err := gate.Mutate("archive", "/tmp/home/a.zip", "/tmp/home", "", true, func() error {
		return boom
	})

	assert.False(t, performed)
	assert.ErrorIs(t, err, boom)
	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeFailed, journal.entries[0].Outcome)
}

// TestDescribe verifies mode-aware verb phrasing
func TestDescribe(t *testing.T) {
	assert.Equal(t, "delete", Describe(domain.ModeApply, "delete"))
	assert.Equal(t, "would delete", Describe(domain.ModeDryRun, "delete"))
	assert.Equal(t, "would delete", Describe(domain.ModeReport, "delete"))
}

// TestNote verifies the journal entry shape of a task-computed intent
func TestNote(t *testing.T) {
	rc, journal, _ := testRunContext(domain.ModeDryRun)
	gate := NewGate(rc)

	gate.Note("brew list", "would write /tmp/list.txt")

	require.Len(t, journal.entries, 1)
	assert.Equal(t, domain.OutcomeWouldPerform, journal.entries[0].Outcome)
	assert.Equal(t, "would write /tmp/list.txt", journal.entries[0].Detail)
}

// TestClassifyTaskErr verifies which errors fail the whole run
func TestClassifyTaskErr(t *testing.T) {
	assert.False(t, ClassifyTaskErr(nil))
	assert.False(t, ClassifyTaskErr(&domain.PathValidationError{Path: "/etc", Reason: "outside allowed root"}))
	assert.False(t, ClassifyTaskErr(&domain.ScanError{Path: "/nope", Err: os.ErrNotExist}))
	assert.True(t, ClassifyTaskErr(errors.New("zip: short write")))
}
