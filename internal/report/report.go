// Package report assembles command results into the paired HTML/CSS
// maintenance report.
package report

import (
	"fmt"
	"strings"

	"github.com/jpaulw/macmaint/internal/domain"
)

// Section is one titled grouping of command results.
type Section struct {
	Title     string
	SectionID string
	Results   []domain.CommandResult
}

// NewSection creates a section with a slug derived from the title.
func NewSection(title string, results []domain.CommandResult) Section {
	return Section{Title: title, SectionID: Slugify(title), Results: results}
}

// Slugify lowercases the title and collapses every non-alphanumeric
// run into a single dash, for use as an HTML anchor.
func Slugify(text string) string {
	var b strings.Builder
	lastDash := false
	for _, ch := range strings.ToLower(text) {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "section"
	}
	return slug
}

// Meta renders the "N checks • ok • warn • bad" line for a section.
func Meta(results []domain.CommandResult) string {
	var ok, warn, bad int
	for _, r := range results {
		switch BadgeFor(r).Class {
		case StatusOK:
			ok++
		case StatusWarn:
			warn++
		case StatusBad:
			bad++
		}
	}
	return fmt.Sprintf("%d checks • %d ok • %d warn • %d bad", len(results), ok, warn, bad)
}

// Status computes the worst badge class across a section.
func Status(results []domain.CommandResult) string {
	status := StatusOK
	for _, r := range results {
		switch BadgeFor(r).Class {
		case StatusBad:
			return StatusBad
		case StatusWarn:
			status = StatusWarn
		}
	}
	return status
}
