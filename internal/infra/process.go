package infra

import (
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jpaulw/macmaint/internal/domain"
)

// ProcessManagerImpl implements domain.ProcessManager using gopsutil.
type ProcessManagerImpl struct{}

// NewProcessManager creates a new process manager.
func NewProcessManager() domain.ProcessManager {
	return &ProcessManagerImpl{}
}

// FindByPattern returns PIDs of processes whose name or command line
// contains the pattern (case-insensitive).
func (pm *ProcessManagerImpl) FindByPattern(pattern string) ([]int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	var found []int32
	patternLower := strings.ToLower(pattern)

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue // Process may have exited
		}
		if strings.Contains(strings.ToLower(name), patternLower) {
			found = append(found, p.Pid)
			continue
		}
		// App bundles often run under generic helper names; match the
		// command line too.
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(cmdline), patternLower) {
			found = append(found, p.Pid)
		}
	}

	return found, nil
}

// Terminate sends SIGTERM to a process.
func (pm *ProcessManagerImpl) Terminate(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Terminate()
}

// Kill sends SIGKILL to a process.
func (pm *ProcessManagerImpl) Kill(pid int32) error {
	p, err := process.NewProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}

// Ensure ProcessManagerImpl implements domain.ProcessManager.
var _ domain.ProcessManager = (*ProcessManagerImpl)(nil)
