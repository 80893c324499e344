package store

import (
	"context"
	"fmt"

	"carepulse/internal/report"
)

// VerifyReportIntegrity checks that a stored report still derives the ID it
// is stored under. Report IDs are a hash of subject, window and summary, so
// any edit to those fields or to the row key is detected.
func VerifyReportIntegrity(id string, r *report.Report) error {
	if r.ID != id {
		return fmt.Errorf("report %s: body carries id %s", id, r.ID)
	}
	if want := report.NewID(r.SubjectID, r.Window, r.Summary); want != id {
		return fmt.Errorf("report %s: content derives id %s", id, want)
	}
	return nil
}

// VerifyAllReports checks every stored report and returns the IDs that fail,
// including rows whose body no longer decodes or disagrees with its columns.
func (s *Store) VerifyAllReports(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, subject_id, summary, body FROM reports ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query all reports: %w", err)
	}
	defer rows.Close()

	var corrupted []string
	for rows.Next() {
		var id, subjectID, summary string
		var body []byte
		if err := rows.Scan(&id, &subjectID, &summary, &body); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}

		r, err := report.Unmarshal(body)
		if err != nil {
			corrupted = append(corrupted, id)
			continue
		}
		if r.SubjectID != subjectID || r.Summary != summary {
			corrupted = append(corrupted, id)
			continue
		}
		if err := VerifyReportIntegrity(id, r); err != nil {
			corrupted = append(corrupted, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}

	return corrupted, nil
}
