// Package usecase contains application business logic: the mode gate
// and the orphan lifecycle manager.
package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/config"
	"github.com/jpaulw/macmaint/internal/domain"
)

// RunContext carries the state of one invocation: the mode, resolved
// configuration, and the collaborators every task needs. It is built
// once at startup and threaded through every call; nothing here is a
// process-wide singleton.
type RunContext struct {
	Mode      domain.RunMode
	Config    *config.Config
	Journal   domain.Journal
	Runner    domain.CommandRunner
	Validator domain.PathValidator
	Clock     domain.Clock
	Disk      domain.DiskUsage
	Logger    *zap.Logger
	RunID     string
}

// Gate enforces report / dry-run / apply semantics over every action.
// Probes always run; mutations run only in apply mode, and only after
// the target passed path validation and the owning task's action flag
// was explicitly supplied.
type Gate struct {
	rc *RunContext
}

// NewGate creates a gate bound to a run context.
func NewGate(rc *RunContext) *Gate {
	return &Gate{rc: rc}
}

// Probe executes a read-only command in every mode. Probes are what
// keep dry-run decisions accurate: eligibility is always computed from
// real data.
func (g *Gate) Probe(ctx context.Context, spec domain.CommandSpec) domain.CommandResult {
	result := g.rc.Runner.Run(ctx, spec)
	outcome := domain.OutcomePerformed
	if !result.Skipped() && result.ExitCode != 0 {
		outcome = domain.OutcomeFailed
	}
	g.rc.Journal.Append(g.rc.Mode, spec.Title, result.Command, outcome)
	return result
}

// Command gates a mutating external command. The returned bool is true
// only when the command actually ran.
func (g *Gate) Command(ctx context.Context, spec domain.CommandSpec, flagSet bool) (domain.CommandResult, bool) {
	switch g.rc.Mode {
	case domain.ModeReport:
		g.rc.Journal.Append(g.rc.Mode, spec.Title, "refused (report mode)", domain.OutcomeRefused)
		return domain.CommandResult{Title: spec.Title, Command: spec.Display()}, false

	case domain.ModeDryRun:
		g.rc.Journal.Append(g.rc.Mode, spec.Title, "would run: "+spec.Display(), domain.OutcomeWouldPerform)
		return domain.CommandResult{Title: spec.Title, Command: spec.Display()}, false
	}

	if !flagSet {
		g.rc.Journal.Append(g.rc.Mode, spec.Title, "refused (flag not set)", domain.OutcomeRefused)
		return domain.CommandResult{Title: spec.Title, Command: spec.Display()}, false
	}

	result := g.rc.Runner.Run(ctx, spec)
	outcome := domain.OutcomePerformed
	if result.TimedOut || (!result.Skipped() && result.ExitCode != 0) {
		outcome = domain.OutcomeFailed
	}
	g.rc.Journal.Append(g.rc.Mode, spec.Title, result.Command, outcome)
	return result, true
}

// Mutate gates a filesystem mutation on target. The target is
// validated against root in every mode, so a bad path is refused even
// in a dry run. intent is the "would" phrasing journaled in dry-run
// mode. Returns whether the mutation was performed.
func (g *Gate) Mutate(action, target, root, intent string, flagSet bool, fn func() error) (bool, error) {
	if err := g.rc.Validator.Validate(target, root); err != nil {
		g.rc.Journal.Append(g.rc.Mode, action, "refused (path rejected): "+err.Error(), domain.OutcomeRefused)
		return false, err
	}

	switch g.rc.Mode {
	case domain.ModeReport:
		g.rc.Journal.Append(g.rc.Mode, action, "refused (report mode)", domain.OutcomeRefused)
		return false, nil

	case domain.ModeDryRun:
		g.rc.Journal.Append(g.rc.Mode, action, intent, domain.OutcomeWouldPerform)
		return false, nil
	}

	if !flagSet {
		g.rc.Journal.Append(g.rc.Mode, action, "refused (flag not set)", domain.OutcomeRefused)
		return false, nil
	}

	if err := fn(); err != nil {
		g.rc.Journal.Append(g.rc.Mode, action, err.Error(), domain.OutcomeFailed)
		return false, err
	}
	g.rc.Journal.Append(g.rc.Mode, action, target, domain.OutcomePerformed)
	return true, nil
}

// Refuse journals an explicit refusal that did not reach the mutation
// stage, with enough context to reconstruct it later.
func (g *Gate) Refuse(action, reason string) {
	g.rc.Journal.Append(g.rc.Mode, action, "refused ("+reason+")", domain.OutcomeRefused)
}

// Note journals an informational would-perform entry computed by a
// task (e.g. a simulated multi-step effect).
func (g *Gate) Note(action, detail string) {
	g.rc.Journal.Append(g.rc.Mode, action, detail, domain.OutcomeWouldPerform)
}

// ClassifyTaskErr decides whether an action error should fail the
// whole task. Path rejections and command-level failures stay local.
func ClassifyTaskErr(err error) bool {
	if err == nil {
		return false
	}
	var pathErr *domain.PathValidationError
	if errors.As(err, &pathErr) {
		return false
	}
	var scanErr *domain.ScanError
	return !errors.As(err, &scanErr)
}

// Describe renders a short mode-aware prefix for user-facing lines.
func Describe(mode domain.RunMode, verb string) string {
	if mode == domain.ModeApply {
		return verb
	}
	return fmt.Sprintf("would %s", verb)
}
