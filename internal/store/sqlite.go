package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteJournal implements Journal on an in-memory SQLite database.
type SQLiteJournal struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLiteJournal opens a private in-memory journal. Nothing is written
// to disk and the data is gone once the journal is closed.
func NewSQLiteJournal() (*SQLiteJournal, error) {
	dsn := fmt.Sprintf("file:journal-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// The database lives only while a connection is open
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	j := &SQLiteJournal{
		db:  db,
		now: time.Now,
	}

	if err := j.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return j, nil
}

// initSchema creates the journal table.
func (j *SQLiteJournal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS journal (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp DATETIME NOT NULL,
		environment TEXT NOT NULL,
		operation TEXT NOT NULL,
		success INTEGER NOT NULL,
		kind TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		warning TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_journal_env_op ON journal(environment, operation);
	`

	_, err := j.db.Exec(schema)
	return err
}

// Close closes the database connection, discarding the journal.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Record appends an entry. ID and Timestamp are filled in when empty.
func (j *SQLiteJournal) Record(ctx context.Context, entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = j.now()
	}
	success := 0
	if entry.Success {
		success = 1
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal (id, timestamp, environment, operation, success, kind, message, warning, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Timestamp.UTC(), entry.Environment, entry.Operation, success, entry.Kind, entry.Message, entry.Warning, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// List returns matching entries oldest first. With a limit, only the most
// recent entries are returned.
func (j *SQLiteJournal) List(ctx context.Context, filter JournalFilter) ([]Entry, error) {
	query := "SELECT id, timestamp, environment, operation, success, kind, message, warning, detail FROM journal WHERE 1=1"
	args := []interface{}{}

	if filter.Environment != "" {
		query += " AND environment = ?"
		args = append(args, filter.Environment)
	}
	if filter.Operation != "" {
		query += " AND operation = ?"
		args = append(args, filter.Operation)
	}

	query += " ORDER BY seq DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var success int
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Environment, &e.Operation, &success, &e.Kind, &e.Message, &e.Warning, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Success = success == 1
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest first from the query; flip to chronological order
	for l, r := 0, len(entries)-1; l < r; l, r = l+1, r-1 {
		entries[l], entries[r] = entries[r], entries[l]
	}
	return entries, nil
}
