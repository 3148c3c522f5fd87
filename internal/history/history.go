package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"commentdm/internal/security"
	"commentdm/internal/store"

	_ "modernc.org/sqlite"
)

// History archives every activity log entry in SQLite. The JSON state file
// keeps only the most recent entries; the archive keeps all of them.
type History struct {
	db *sql.DB
}

// NewHistory opens (or creates) the archive database
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}

	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// The database file is created lazily by the driver on first write
	if err := os.Chmod(dbPath, security.PermDBFile); err != nil && !os.IsNotExist(err) {
		db.Close()
		return nil, fmt.Errorf("failed to set database permissions: %w", err)
	}

	return h, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

// initSchema creates the database tables and indexes
func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			time TEXT NOT NULL,
			type TEXT NOT NULL,
			msg TEXT NOT NULL,
			extra TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_activity_type
		ON activity(type, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// RecordActivity archives a store log entry
func (h *History) RecordActivity(ctx context.Context, entry store.LogEntry) error {
	var extra *string
	if len(entry.Extra) > 0 {
		data, err := json.Marshal(entry.Extra)
		if err != nil {
			return fmt.Errorf("failed to encode extra fields: %w", err)
		}
		encoded := string(data)
		extra = &encoded
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO activity (time, type, msg, extra)
		VALUES (?, ?, ?, ?)
	`,
		entry.Time.UTC().Format(time.RFC3339Nano),
		string(entry.Type),
		entry.Msg,
		extra,
	)
	if err != nil {
		return fmt.Errorf("failed to insert activity record: %w", err)
	}

	return nil
}

// Recent returns the most recent archived entries, newest first. An empty
// kind returns entries of every type.
func (h *History) Recent(ctx context.Context, kind string, limit int) ([]ActivityRecord, error) {
	query := `
		SELECT id, time, type, msg, extra
		FROM activity
		ORDER BY id DESC
		LIMIT ?
	`
	args := []interface{}{limit}
	if kind != "" {
		query = `
			SELECT id, time, type, msg, extra
			FROM activity
			WHERE type = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []interface{}{kind, limit}
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var records []ActivityRecord
	for rows.Next() {
		record, err := scanActivityRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity record: %w", err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// CountByType returns the number of archived entries per type
func (h *History) CountByType(ctx context.Context) ([]TypeCount, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM activity
		GROUP BY type
		ORDER BY type
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count activity: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.Type, &tc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts = append(counts, tc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return counts, nil
}

// scanner is an interface that both *sql.Row and *sql.Rows implement
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanActivityRecord scans a database row into an ActivityRecord
func scanActivityRecord(s scanner) (*ActivityRecord, error) {
	var record ActivityRecord
	var timeStr string
	var extraStr sql.NullString

	if err := s.Scan(&record.ID, &timeStr, &record.Type, &record.Msg, &extraStr); err != nil {
		return nil, err
	}

	parsed, err := time.Parse(time.RFC3339Nano, timeStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse time: %w", err)
	}
	record.Time = parsed

	if extraStr.Valid && extraStr.String != "" {
		if err := json.Unmarshal([]byte(extraStr.String), &record.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra fields: %w", err)
		}
	}

	return &record, nil
}

var _ store.Archive = (*History)(nil)
