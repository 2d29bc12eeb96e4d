package report

import _ "embed"

// Static assets shipped inside the binary so a report renders the same
// on every machine.
var (
	//go:embed assets/style.css
	styleCSS string

	//go:embed assets/report.js
	reportJS string
)
