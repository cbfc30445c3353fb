package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// nowUTC returns the current UTC time as an ISO 8601 string.
func nowUTC() string { return time.Now().UTC().Format(time.RFC3339) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// likeEscaper backslash-escapes LIKE metacharacters so query names match
// literally under an ESCAPE '\' clause.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likeEscape(s string) string { return likeEscaper.Replace(s) }

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and applies the schema.
// Creates the parent directory (e.g. .verdict) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// OpenMemory opens an in-memory SQLite DB, used by tests.
func OpenMemory() (*SqlStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open memory sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) init() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}
	return nil
}

func (s *SqlStore) Close() error {
	return s.db.Close()
}

func (s *SqlStore) InsertExecution(ctx context.Context, rec *ExecutionRecord) (int64, error) {
	if rec == nil {
		return 0, errors.New("execution record is nil")
	}
	createdAt := rec.CreatedAt
	if createdAt == "" {
		createdAt = nowUTC()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO executions(build_tag, testcase_name, test_status, failure_reason, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		rec.BuildTag, rec.TestName, string(rec.Status), rec.FailureReason, createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

func (s *SqlStore) FetchExecutionRecords(ctx context.Context, buildTag, testNameFilter string) ([]ExecutionRecord, error) {
	query := `SELECT id, build_tag, testcase_name, test_status, failure_reason, created_at
		 FROM executions WHERE build_tag = ?`
	args := []any{buildTag}
	if testNameFilter != "" {
		query += ` AND testcase_name = ?`
		args = append(args, testNameFilter)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch executions: %w", err)
	}
	defer rows.Close()

	var list []ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch executions: %w", err)
	}
	return list, nil
}

func (s *SqlStore) FetchHistory(ctx context.Context, queryName string, window int) (History, error) {
	if window <= 0 {
		return nil, fmt.Errorf("history window must be positive, got %d", window)
	}
	// Match the stored name exactly or as a trailing Class.method suffix;
	// LIKE is case-insensitive for ASCII in SQLite. LIKE metacharacters in
	// the name ("_" is common in method names) must match literally.
	escaped := likeEscape(queryName)
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_tag, test_status, failure_reason, created_at
		 FROM executions
		 WHERE testcase_name LIKE ? ESCAPE '\' OR testcase_name LIKE ? ESCAPE '\'
		 ORDER BY id DESC
		 LIMIT ?`,
		escaped, "%."+escaped, window,
	)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	defer rows.Close()

	var newestFirst []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var status string
		var reason sql.NullString
		if err := rows.Scan(&e.BuildTag, &status, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Status, _ = ParseStatus(status)
		e.FailureReason = nullStr(reason)
		newestFirst = append(newestFirst, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	// Reverse to oldest -> newest, the order the analyzer consumes.
	hist := make(History, len(newestFirst))
	for i, e := range newestFirst {
		hist[len(newestFirst)-1-i] = e
	}
	return hist, nil
}

func (s *SqlStore) BuildStats(ctx context.Context, limit int) ([]BuildStat, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("build stats limit must be positive, got %d", limit)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT build_tag,
		        COUNT(*) AS total,
		        SUM(CASE WHEN test_status IN ('PASS','PASSED','SUCCESS','OK') THEN 1 ELSE 0 END) AS passed,
		        MAX(id) AS max_id
		 FROM executions
		 WHERE build_tag != ''
		 GROUP BY build_tag
		 ORDER BY max_id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("build stats: %w", err)
	}
	defer rows.Close()

	var newestFirst []BuildStat
	for rows.Next() {
		var b BuildStat
		var maxID int64
		if err := rows.Scan(&b.BuildTag, &b.Total, &b.Passed, &maxID); err != nil {
			return nil, fmt.Errorf("scan build stat: %w", err)
		}
		newestFirst = append(newestFirst, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("build stats: %w", err)
	}

	stats := make([]BuildStat, len(newestFirst))
	for i, b := range newestFirst {
		stats[len(newestFirst)-1-i] = b
	}
	return stats, nil
}

func scanExecution(rows *sql.Rows) (ExecutionRecord, error) {
	var rec ExecutionRecord
	var status string
	var reason sql.NullString
	if err := rows.Scan(&rec.ID, &rec.BuildTag, &rec.TestName, &status, &reason, &rec.CreatedAt); err != nil {
		return rec, fmt.Errorf("scan execution: %w", err)
	}
	rec.Status, _ = ParseStatus(status)
	rec.FailureReason = nullStr(reason)
	return rec, nil
}
