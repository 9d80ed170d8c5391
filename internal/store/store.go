// Package store archives generated sprint reports in SQLite so successive
// runs can be compared.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

// Store provides SQLite-backed persistence for generated reports.
type Store struct {
	db *sql.DB
}

// Report is one rendered report.
type Report struct {
	ID          int64
	Project     string
	Title       string
	Query       string
	SprintStart string
	Format      string
	Body        string
	GeneratedAt time.Time
}

// Root categories.
const (
	CategoryIssue   = "issue"
	CategoryEpic    = "epic"
	CategoryFeature = "feature"
)

// Root is a top-level entry of a report: an orphan issue, an orphan epic or
// a feature.
type Root struct {
	Key            string
	Category       string
	Rank           string
	StatusCategory string
}

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	project TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	query TEXT NOT NULL,
	sprint_start TEXT NOT NULL DEFAULT '',
	format TEXT NOT NULL,
	body TEXT NOT NULL,
	generated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS report_roots (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	report_id INTEGER NOT NULL REFERENCES reports(id) ON DELETE CASCADE,
	issue_key TEXT NOT NULL,
	category TEXT NOT NULL,
	rank TEXT NOT NULL DEFAULT '',
	status_category TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_reports_project_format ON reports(project, format, id);
CREATE INDEX IF NOT EXISTS idx_report_roots_report ON report_roots(report_id);
`

// Open opens (creating if needed) the archive at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies incremental schema migrations for existing databases.
func migrate(db *sql.DB) error {
	// sprint_start was added after the first archives were written.
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('reports') WHERE name = 'sprint_start'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("check sprint_start column: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`ALTER TABLE reports ADD COLUMN sprint_start TEXT NOT NULL DEFAULT ''`); err != nil {
			return fmt.Errorf("add sprint_start column: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordReport inserts a report and returns its ID. A zero GeneratedAt is
// stamped with the current time.
func (s *Store) RecordReport(r Report) (int64, error) {
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	res, err := s.db.Exec(
		`INSERT INTO reports (project, title, query, sprint_start, format, body, generated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.Project, r.Title, r.Query, r.SprintStart, r.Format, r.Body, r.GeneratedAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: record report: %w", err)
	}
	return res.LastInsertId()
}

// RecordRoots stores the root entries of a report in a single transaction.
func (s *Store) RecordRoots(reportID int64, roots []Root) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin record roots: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO report_roots (report_id, issue_key, category, rank, status_category) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare record roots: %w", err)
	}
	defer stmt.Close()

	for _, r := range roots {
		if _, err := stmt.Exec(reportID, r.Key, r.Category, r.Rank, r.StatusCategory); err != nil {
			return fmt.Errorf("store: record root %s: %w", r.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit record roots: %w", err)
	}
	return nil
}

const reportCols = `id, project, title, query, sprint_start, format, body, generated_at`

// LatestReport returns the most recent report for project in format, or nil
// when none has been archived.
func (s *Store) LatestReport(project, format string) (*Report, error) {
	var r Report
	err := s.db.QueryRow(
		`SELECT `+reportCols+` FROM reports WHERE project = ? AND format = ? ORDER BY id DESC LIMIT 1`,
		project, format,
	).Scan(&r.ID, &r.Project, &r.Title, &r.Query, &r.SprintStart, &r.Format, &r.Body, &r.GeneratedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: latest report: %w", err)
	}
	return &r, nil
}

// RootsForReport returns the roots recorded for a report in insertion order.
func (s *Store) RootsForReport(reportID int64) ([]Root, error) {
	rows, err := s.db.Query(
		`SELECT issue_key, category, rank, status_category FROM report_roots WHERE report_id = ? ORDER BY id`,
		reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query roots: %w", err)
	}
	defer rows.Close()

	var roots []Root
	for rows.Next() {
		var r Root
		if err := rows.Scan(&r.Key, &r.Category, &r.Rank, &r.StatusCategory); err != nil {
			return nil, fmt.Errorf("store: scan root: %w", err)
		}
		roots = append(roots, r)
	}
	return roots, rows.Err()
}

// RootsOf lists the roots of a classification, features first.
func RootsOf(cls *hierarchy.Classification) []Root {
	if cls == nil {
		return nil
	}
	roots := make([]Root, 0, cls.Len())
	add := func(category string, nodes []*hierarchy.Node) {
		for _, n := range nodes {
			roots = append(roots, Root{Key: n.Key, Category: category, Rank: n.Rank, StatusCategory: n.StatusCategory})
		}
	}
	add(CategoryFeature, cls.Features)
	add(CategoryEpic, cls.Epics)
	add(CategoryIssue, cls.Issues)
	return roots
}

// CompareRoots returns the roots present only in cur (added) and only in prev
// (removed), matched by key.
func CompareRoots(prev, cur []Root) (added, removed []Root) {
	inPrev := make(map[string]bool, len(prev))
	for _, r := range prev {
		inPrev[r.Key] = true
	}
	inCur := make(map[string]bool, len(cur))
	for _, r := range cur {
		inCur[r.Key] = true
		if !inPrev[r.Key] {
			added = append(added, r)
		}
	}
	for _, r := range prev {
		if !inCur[r.Key] {
			removed = append(removed, r)
		}
	}
	return added, removed
}
