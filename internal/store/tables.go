package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"carepulse/internal/record"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// table maps one raw record type onto its SQLite table. The first column is
// the record timestamp used for window filtering.
type table[T any] struct {
	name    string
	columns []string
	values  func(T) []any
	scan    func(rowScanner) (T, error)
}

// rawTables lists the raw tables in record.Domains order.
var rawTables = []string{
	moodTable.name, activityTable.name, journalTable.name, conversationTable.name,
	assessmentTable.name, sleepTable.name, goalTable.name, miniSessionTable.name,
	toolkitTable.name, badgeTable.name, workshopTable.name,
}

func (t table[T]) insertSQL() string {
	cols := append([]string{"subject_id"}, t.columns...)
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(cols, ", "), marks)
}

// selectSQL includes rows with no timestamp so the normalizer can count
// them as dropped rather than have them vanish silently.
func (t table[T]) selectSQL() string {
	ts := t.columns[0]
	return fmt.Sprintf(
		"SELECT %s FROM %s WHERE subject_id = ? AND (%s IS NULL OR (%s >= ? AND %s <= ?)) ORDER BY id ASC",
		strings.Join(t.columns, ", "), t.name, ts, ts, ts,
	)
}

func insertRows[T any](ctx context.Context, tx *sql.Tx, t table[T], subjectID string, rows []T) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt, err := tx.PrepareContext(ctx, t.insertSQL())
	if err != nil {
		return 0, fmt.Errorf("prepare %s insert: %w", t.name, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := append([]any{subjectID}, t.values(row)...)
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("insert %s: %w", t.name, err)
		}
	}
	return len(rows), nil
}

func queryRows[T any](ctx context.Context, db *sql.DB, t table[T], subjectID string, w record.TimeWindow) ([]T, error) {
	rows, err := db.QueryContext(ctx, t.selectSQL(), subjectID, w.Start.UnixNano(), w.End.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := t.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.name, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return out, nil
}

// Nullable column helpers.

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeOf(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func floatOf(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

func stringOf(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	return &n.String
}

func boolOf(n sql.NullBool) *bool {
	if !n.Valid {
		return nil
	}
	return &n.Bool
}

// deref turns a nil pointer into a SQL NULL.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

var moodTable = table[record.MoodEntry]{
	name:    "mood_entries",
	columns: []string{"created_at", "score", "note"},
	values: func(r record.MoodEntry) []any {
		return []any{nanos(r.CreatedAt), deref(r.Score), deref(r.Note)}
	},
	scan: func(s rowScanner) (record.MoodEntry, error) {
		var ts sql.NullInt64
		var score sql.NullFloat64
		var note sql.NullString
		err := s.Scan(&ts, &score, &note)
		return record.MoodEntry{CreatedAt: timeOf(ts), Score: floatOf(score), Note: stringOf(note)}, err
	},
}

var activityTable = table[record.Activity]{
	name:    "activities",
	columns: []string{"created_at", "type", "duration_minutes"},
	values: func(r record.Activity) []any {
		return []any{nanos(r.CreatedAt), deref(r.Type), deref(r.DurationMinutes)}
	},
	scan: func(s rowScanner) (record.Activity, error) {
		var ts sql.NullInt64
		var typ sql.NullString
		var mins sql.NullFloat64
		err := s.Scan(&ts, &typ, &mins)
		return record.Activity{CreatedAt: timeOf(ts), Type: stringOf(typ), DurationMinutes: floatOf(mins)}, err
	},
}

var journalTable = table[record.JournalEntry]{
	name:    "journal_entries",
	columns: []string{"created_at", "content", "mood_tag"},
	values: func(r record.JournalEntry) []any {
		return []any{nanos(r.CreatedAt), deref(r.Content), deref(r.MoodTag)}
	},
	scan: func(s rowScanner) (record.JournalEntry, error) {
		var ts sql.NullInt64
		var content, tag sql.NullString
		err := s.Scan(&ts, &content, &tag)
		return record.JournalEntry{CreatedAt: timeOf(ts), Content: stringOf(content), MoodTag: stringOf(tag)}, err
	},
}

var conversationTable = table[record.Conversation]{
	name:    "conversations",
	columns: []string{"created_at", "summary"},
	values: func(r record.Conversation) []any {
		return []any{nanos(r.CreatedAt), deref(r.Summary)}
	},
	scan: func(s rowScanner) (record.Conversation, error) {
		var ts sql.NullInt64
		var summary sql.NullString
		err := s.Scan(&ts, &summary)
		return record.Conversation{CreatedAt: timeOf(ts), Summary: stringOf(summary)}, err
	},
}

var assessmentTable = table[record.Assessment]{
	name:    "assessments",
	columns: []string{"completed_at", "type", "score", "severity"},
	values: func(r record.Assessment) []any {
		return []any{nanos(r.CompletedAt), deref(r.Type), deref(r.Score), deref(r.Severity)}
	},
	scan: func(s rowScanner) (record.Assessment, error) {
		var ts sql.NullInt64
		var typ, severity sql.NullString
		var score sql.NullFloat64
		err := s.Scan(&ts, &typ, &score, &severity)
		return record.Assessment{
			CompletedAt: timeOf(ts),
			Type:        stringOf(typ),
			Score:       floatOf(score),
			Severity:    stringOf(severity),
		}, err
	},
}

var sleepTable = table[record.SleepEntry]{
	name:    "sleep_entries",
	columns: []string{"date", "quality", "hours"},
	values: func(r record.SleepEntry) []any {
		return []any{nanos(r.Date), deref(r.Quality), deref(r.Hours)}
	},
	scan: func(s rowScanner) (record.SleepEntry, error) {
		var ts sql.NullInt64
		var quality, hours sql.NullFloat64
		err := s.Scan(&ts, &quality, &hours)
		return record.SleepEntry{Date: timeOf(ts), Quality: floatOf(quality), Hours: floatOf(hours)}, err
	},
}

var goalTable = table[record.Goal]{
	name:    "goals",
	columns: []string{"created_at", "title", "completed"},
	values: func(r record.Goal) []any {
		return []any{nanos(r.CreatedAt), deref(r.Title), deref(r.Completed)}
	},
	scan: func(s rowScanner) (record.Goal, error) {
		var ts sql.NullInt64
		var title sql.NullString
		var completed sql.NullBool
		err := s.Scan(&ts, &title, &completed)
		return record.Goal{CreatedAt: timeOf(ts), Title: stringOf(title), Completed: boolOf(completed)}, err
	},
}

var miniSessionTable = table[record.MiniSession]{
	name:    "mini_sessions",
	columns: []string{"created_at", "mood", "anxiety", "energy"},
	values: func(r record.MiniSession) []any {
		return []any{nanos(r.CreatedAt), deref(r.Mood), deref(r.Anxiety), deref(r.Energy)}
	},
	scan: func(s rowScanner) (record.MiniSession, error) {
		var ts sql.NullInt64
		var mood, anxiety, energy sql.NullFloat64
		err := s.Scan(&ts, &mood, &anxiety, &energy)
		return record.MiniSession{
			CreatedAt: timeOf(ts),
			Mood:      floatOf(mood),
			Anxiety:   floatOf(anxiety),
			Energy:    floatOf(energy),
		}, err
	},
}

var toolkitTable = table[record.ToolkitSession]{
	name:    "toolkit_sessions",
	columns: []string{"created_at", "tool", "duration_minutes"},
	values: func(r record.ToolkitSession) []any {
		return []any{nanos(r.CreatedAt), deref(r.Tool), deref(r.DurationMinutes)}
	},
	scan: func(s rowScanner) (record.ToolkitSession, error) {
		var ts sql.NullInt64
		var tool sql.NullString
		var mins sql.NullFloat64
		err := s.Scan(&ts, &tool, &mins)
		return record.ToolkitSession{CreatedAt: timeOf(ts), Tool: stringOf(tool), DurationMinutes: floatOf(mins)}, err
	},
}

var badgeTable = table[record.Badge]{
	name:    "badges",
	columns: []string{"awarded_at", "name"},
	values: func(r record.Badge) []any {
		return []any{nanos(r.AwardedAt), deref(r.Name)}
	},
	scan: func(s rowScanner) (record.Badge, error) {
		var ts sql.NullInt64
		var name sql.NullString
		err := s.Scan(&ts, &name)
		return record.Badge{AwardedAt: timeOf(ts), Name: stringOf(name)}, err
	},
}

var workshopTable = table[record.WorkshopRegistration]{
	name:    "workshop_registrations",
	columns: []string{"registered_at", "title"},
	values: func(r record.WorkshopRegistration) []any {
		return []any{nanos(r.RegisteredAt), deref(r.Title)}
	},
	scan: func(s rowScanner) (record.WorkshopRegistration, error) {
		var ts sql.NullInt64
		var title sql.NullString
		err := s.Scan(&ts, &title)
		return record.WorkshopRegistration{RegisteredAt: timeOf(ts), Title: stringOf(title)}, err
	},
}
