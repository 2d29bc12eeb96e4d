package infra

import (
	"go.uber.org/zap"

	"github.com/jpaulw/macmaint/internal/domain"
)

// ActionJournal implements domain.Journal as an append-only in-memory
// sequence. Execution is single-threaded, so no locking is needed;
// the journal is owned by the top-level run and passed by reference.
type ActionJournal struct {
	clock   domain.Clock
	logger  *zap.Logger
	entries []domain.JournalEntry
}

// NewActionJournal creates an empty journal stamping entries with the
// given clock.
func NewActionJournal(clock domain.Clock, logger *zap.Logger) *ActionJournal {
	return &ActionJournal{clock: clock, logger: logger}
}

// Append records one decision. Entries are never rewritten;
// corrections are new entries.
func (j *ActionJournal) Append(mode domain.RunMode, action, detail string, outcome domain.JournalOutcome) {
	entry := domain.JournalEntry{
		Time:    j.clock.Now(),
		Mode:    mode,
		Action:  action,
		Detail:  detail,
		Outcome: outcome,
	}
	j.entries = append(j.entries, entry)

	j.logger.Info("journal",
		zap.String("mode", string(mode)),
		zap.String("outcome", string(outcome)),
		zap.String("action", action),
		zap.String("detail", detail))
}

// Entries returns a snapshot of the journal in append order.
func (j *ActionJournal) Entries() []domain.JournalEntry {
	out := make([]domain.JournalEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Ensure ActionJournal implements domain.Journal.
var _ domain.Journal = (*ActionJournal)(nil)
