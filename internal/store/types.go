package store

import (
	"time"

	"carepulse/internal/record"
)

// ReportInfo is the listing view of a stored report; the full body is
// fetched with GetReport.
type ReportInfo struct {
	ID              string
	SubjectID       string
	Window          record.TimeWindow
	RulebookVersion string
	Summary         string
	CreatedAt       time.Time
}
