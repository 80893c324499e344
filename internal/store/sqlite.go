package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"carepulse/internal/gather"
	"carepulse/internal/record"
	"carepulse/internal/report"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Options tunes the connection pool.
type Options struct {
	MaxConnections int
	BusyTimeout    time.Duration
}

// Store represents the SQLite record and report store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions is Open with explicit pool settings.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	memory := path == MemoryPath
	if !memory {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", path, busy.Milliseconds())
	if !memory {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to :memory: is a separate database.
	switch {
	case memory:
		db.SetMaxOpenConns(1)
	case opts.MaxConnections > 0:
		db.SetMaxOpenConns(opts.MaxConnections)
	}

	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle for migration tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Import stores every record of snap for subjectID in one transaction and
// returns the number of rows written. Degraded-source markers are not stored.
func (s *Store) Import(ctx context.Context, subjectID string, snap *record.Snapshot) (int, error) {
	if subjectID == "" {
		return 0, errors.New("import: subject id is required")
	}
	if snap == nil {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	total := 0
	add := func(n int, err error) error {
		total += n
		return err
	}
	steps := []func() error{
		func() error { return add(insertRows(ctx, tx, moodTable, subjectID, snap.Mood)) },
		func() error { return add(insertRows(ctx, tx, activityTable, subjectID, snap.Activities)) },
		func() error { return add(insertRows(ctx, tx, journalTable, subjectID, snap.Journal)) },
		func() error { return add(insertRows(ctx, tx, conversationTable, subjectID, snap.Conversations)) },
		func() error { return add(insertRows(ctx, tx, assessmentTable, subjectID, snap.Assessments)) },
		func() error { return add(insertRows(ctx, tx, sleepTable, subjectID, snap.Sleep)) },
		func() error { return add(insertRows(ctx, tx, goalTable, subjectID, snap.Goals)) },
		func() error { return add(insertRows(ctx, tx, miniSessionTable, subjectID, snap.MiniSessions)) },
		func() error { return add(insertRows(ctx, tx, toolkitTable, subjectID, snap.Toolkit)) },
		func() error { return add(insertRows(ctx, tx, badgeTable, subjectID, snap.Badges)) },
		func() error { return add(insertRows(ctx, tx, workshopTable, subjectID, snap.Workshops)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}
	return total, nil
}

// Sources returns fetchers that read each raw table for the requested
// subject and window.
func (s *Store) Sources() gather.Sources {
	return gather.Sources{
		Mood:          fetcher(s.db, moodTable),
		Activities:    fetcher(s.db, activityTable),
		Journal:       fetcher(s.db, journalTable),
		Conversations: fetcher(s.db, conversationTable),
		Assessments:   fetcher(s.db, assessmentTable),
		Sleep:         fetcher(s.db, sleepTable),
		Goals:         fetcher(s.db, goalTable),
		MiniSessions:  fetcher(s.db, miniSessionTable),
		Toolkit:       fetcher(s.db, toolkitTable),
		Badges:        fetcher(s.db, badgeTable),
		Workshops:     fetcher(s.db, workshopTable),
	}
}

func fetcher[T any](db *sql.DB, t table[T]) gather.FetchFunc[T] {
	return func(ctx context.Context, subjectID string, w record.TimeWindow) ([]T, error) {
		return queryRows(ctx, db, t, subjectID, w)
	}
}

// CountRecords returns the number of stored rows per source for subjectID,
// keyed by record domain name.
func (s *Store) CountRecords(ctx context.Context, subjectID string) (map[string]int, error) {
	counts := make(map[string]int, len(rawTables))
	for i, name := range rawTables {
		var n int
		err := s.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE subject_id = ?", name), subjectID,
		).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[record.Domains[i]] = n
	}
	return counts, nil
}

// SaveReport persists r. Report IDs are derived from content, so saving the
// same build twice keeps a single row.
func (s *Store) SaveReport(ctx context.Context, r *report.Report) error {
	body, err := report.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reports (id, subject_id, window_start, window_end, rulebook_version, summary, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body`,
		r.ID, r.SubjectID, r.Window.Start.UnixNano(), r.Window.End.UnixNano(),
		r.RulebookVersion, r.Summary, body, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

// GetReport retrieves a report by ID. It returns nil, nil when absent.
func (s *Store) GetReport(ctx context.Context, id string) (*report.Report, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	r, err := report.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns stored reports for subjectID, newest window first.
func (s *Store) ListReports(ctx context.Context, subjectID string) ([]ReportInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, window_start, window_end, rulebook_version, summary, created_at
		FROM reports
		WHERE subject_id = ?
		ORDER BY window_end DESC, id ASC`, subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	return scanReportInfos(rows)
}

func scanReportInfos(rows *sql.Rows) ([]ReportInfo, error) {
	var infos []ReportInfo
	for rows.Next() {
		var info ReportInfo
		var start, end, created int64
		if err := rows.Scan(&info.ID, &info.SubjectID, &start, &end, &info.RulebookVersion, &info.Summary, &created); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		info.Window = record.TimeWindow{Start: time.Unix(0, start).UTC(), End: time.Unix(0, end).UTC()}
		info.CreatedAt = time.Unix(0, created).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return infos, nil
}
