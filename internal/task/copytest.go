package task

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jpaulw/macmaint/internal/domain"
	"github.com/jpaulw/macmaint/internal/infra"
	"github.com/jpaulw/macmaint/internal/usecase"
)

// copyTimeout overrides the default command timeout: mirroring a VM
// directory legitimately takes minutes.
const copyTimeout = 30 * time.Minute

// CopyTask mirrors a directory to an external volume with rsync and
// reports the effective throughput.
type CopyTask struct{}

// NewCopyTask creates the copy-speed-test task.
func NewCopyTask() *CopyTask { return &CopyTask{} }

func (t *CopyTask) ID() string   { return IDCopy }
func (t *CopyTask) Name() string { return "Copy speed test" }

func (t *CopyTask) Run(ctx context.Context, rc *usecase.RunContext) (*domain.TaskResult, error) {
	start := time.Now()
	result := &domain.TaskResult{TaskID: t.ID(), Title: t.Name()}
	gate := usecase.NewGate(rc)

	src, dst := rc.Config.CopySrc, rc.Config.CopyDst
	if _, err := os.Stat(src); err != nil {
		result.AddNote("source not available: %s", src)
		result.Duration = time.Since(start)
		return result, nil
	}
	if _, err := os.Stat(dst); err != nil {
		result.AddNote("destination volume not mounted: %s", dst)
		result.Duration = time.Since(start)
		return result, nil
	}

	sizeKB := rc.Disk.SizeKB(src)
	result.AddNote("source size: %s", infra.HumanSizeKB(sizeKB))

	spec := domain.CommandSpec{
		Title:   "rsync copy",
		Program: "rsync",
		Args: []string{
			"-ah", "--progress", "--partial", "--inplace",
			"--compress-level=1", src + "/", dst + "/",
		},
		Timeout:  copyTimeout,
		MaxChars: rc.Config.MaxChars,
		MaxLines: rc.Config.MaxLines,
	}

	copyStart := time.Now()
	cmdResult, ran := gate.Command(ctx, spec, true)
	if !ran {
		result.AddNote("%s: %s", usecase.Describe(rc.Mode, "run"), spec.Display())
		result.Duration = time.Since(start)
		return result, nil
	}

	elapsed := time.Since(copyStart)
	if cmdResult.TimedOut {
		result.Failed = true
		result.AddNote("copy timed out after %s", copyTimeout)
	} else if cmdResult.ExitCode != 0 {
		result.Failed = true
		result.AddNote("rsync exited with code %d", cmdResult.ExitCode)
	} else if sizeKB > 0 && elapsed > 0 {
		mbps := float64(sizeKB) / 1024 / elapsed.Seconds()
		result.AddNote("copied %s in %s (%s)",
			infra.HumanSizeKB(sizeKB), elapsed.Round(time.Second), fmtRate(mbps))
	} else {
		result.AddNote("copy finished in %s", elapsed.Round(time.Second))
	}
	result.Results = append(result.Results, cmdResult)

	result.Duration = time.Since(start)
	return result, nil
}

func fmtRate(mbps float64) string {
	return fmt.Sprintf("%.1f MB/s", mbps)
}
