// Package infra implements infrastructure concerns (executor, paths, journal, archive).
package infra

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/domain"
)

// shellPath is the interpreter used for specs that need a pipeline.
// Absolute on purpose; the executor never consults PATH for it.
const shellPath = "/bin/sh"

// ansiEscapeRe matches CSI, OSC and two-byte escape sequences so
// captured output renders cleanly in the report.
var ansiEscapeRe = regexp.MustCompile(
	`(?:\x1b\[[0-?]*[ -/]*[@-~])` +
		`|(?:\x1b\][^\x07]*(?:\x07|\x1b\\))` +
		`|(?:\x1b[@-_])`)

// ExecutorImpl implements domain.CommandRunner using os/exec.
type ExecutorImpl struct {
	logger *zap.Logger
}

// NewExecutor creates a new command executor.
func NewExecutor(logger *zap.Logger) domain.CommandRunner {
	return &ExecutorImpl{logger: logger}
}

// Run executes one external program and returns a normalized result.
// Never returns an error: timeouts and failures are folded into the
// CommandResult so a single bad command cannot abort a task.
func (e *ExecutorImpl) Run(ctx context.Context, spec domain.CommandSpec) domain.CommandResult {
	result := domain.CommandResult{
		Title:   spec.Title,
		Command: spec.Display(),
	}

	if spec.SkipReason != "" {
		result.SkipReason = spec.SkipReason
		result.Stdout = "Skipped: " + spec.SkipReason
		return result
	}

	tctx := ctx
	var cancel context.CancelFunc
	if spec.Timeout > 0 {
		tctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	var cmd *exec.Cmd
	if spec.Shell {
		cmd = exec.CommandContext(tctx, shellPath, "-c", spec.Program)
	} else {
		cmd = exec.CommandContext(tctx, spec.Program, spec.Args...)
	}
	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	}
	cmd.Env = ensurePathPrefix(os.Environ())
	cmd.Stdin = nil

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)

	out, outTrunc := TruncateText(stripANSI(stdout.String()), spec.MaxChars, spec.MaxLines)
	errText, errTrunc := TruncateText(stripANSI(stderr.String()), spec.MaxChars, spec.MaxLines)
	result.Truncated = outTrunc || errTrunc
	if outTrunc {
		out += "\n\n[output truncated]"
	}
	if errTrunc {
		errText += "\n\n[stderr truncated]"
	}

	switch {
	case errors.Is(tctx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		result.ExitCode = domain.ExitTimeout
		if out != "" {
			out += "\n\n[command timed out]"
		} else {
			out = "[command timed out]"
		}
		e.logger.Warn("command timed out",
			zap.String("command", result.Command),
			zap.Duration("timeout", spec.Timeout))

	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Program missing or not executable.
			result.ExitCode = 127
			if errText == "" {
				errText = err.Error()
			}
		}

	default:
		result.ExitCode = 0
	}

	result.Stdout = out
	result.Stderr = errText

	e.logger.Debug("command finished",
		zap.String("command", result.Command),
		zap.Int("exit", result.ExitCode),
		zap.Duration("duration", result.Duration))

	return result
}

// ensurePathPrefix prepends /usr/sbin:/sbin so admin tools resolve
// even under the default user PATH.
func ensurePathPrefix(env []string) []string {
	const prefix = "/usr/sbin:/sbin"
	for i, kv := range env {
		if !strings.HasPrefix(kv, "PATH=") {
			continue
		}
		path := kv[len("PATH="):]
		if strings.Contains(path, prefix) {
			return env
		}
		if path == "" {
			env[i] = "PATH=" + prefix
		} else {
			env[i] = "PATH=" + prefix + ":" + path
		}
		return env
	}
	return append(env, "PATH="+prefix)
}

// stripANSI removes terminal escape sequences from captured output.
func stripANSI(text string) string {
	if text == "" {
		return ""
	}
	return ansiEscapeRe.ReplaceAllString(text, "")
}

// TruncateText bounds text by line count first, then by byte length.
// Returns the bounded text and whether anything was dropped.
func TruncateText(text string, maxChars, maxLines int) (string, bool) {
	if text == "" {
		return "", false
	}
	truncated := false
	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			lines = lines[:maxLines]
			truncated = true
			text = strings.Join(lines, "\n")
		}
	}
	if maxChars > 0 && len(text) > maxChars {
		cut := maxChars
		// Back off to a rune boundary so the cut never leaves a
		// partial UTF-8 sequence behind.
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		truncated = true
	}
	return text, truncated
}

// Ensure ExecutorImpl implements domain.CommandRunner.
var _ domain.CommandRunner = (*ExecutorImpl)(nil)
