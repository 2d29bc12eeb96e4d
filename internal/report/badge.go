package report

import (
	"fmt"
	"strings"

	"github.com/jpaulw/macmaint/internal/domain"
)

// Badge classes map to CSS styling.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusBad  = "bad"
)

// Badge is the classification shown next to a command result.
type Badge struct {
	Class string // ok / warn / bad
	Text  string // OK, TIMEOUT, MISSING, RC=n, SKIPPED
}

// permissionPhrases downgrade a failure to a warning: the command is
// fine, the report just ran without enough privileges.
var permissionPhrases = []string{
	"operation not permitted",
	"not authorized",
	"permission denied",
	"requires full disk access",
}

// BadgeFor classifies one command result for display.
func BadgeFor(r domain.CommandResult) Badge {
	if r.Skipped() {
		return Badge{StatusWarn, "SKIPPED"}
	}
	if r.TimedOut {
		return Badge{StatusWarn, "TIMEOUT"}
	}
	if r.ExitCode == 0 {
		return Badge{StatusOK, "OK"}
	}

	// 126/127: command not found or not executable on this machine.
	if r.ExitCode == 126 || r.ExitCode == 127 {
		return Badge{StatusWarn, "MISSING"}
	}

	errLower := strings.ToLower(r.Stderr)
	for _, phrase := range permissionPhrases {
		if strings.Contains(errLower, phrase) {
			return Badge{StatusWarn, fmt.Sprintf("RC=%d", r.ExitCode)}
		}
	}

	if r.ExitCode == 1 {
		return Badge{StatusWarn, "RC=1"}
	}
	return Badge{StatusBad, fmt.Sprintf("RC=%d", r.ExitCode)}
}
