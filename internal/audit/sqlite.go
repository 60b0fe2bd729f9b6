package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite audit store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes the recorder's concurrent writes;
	// busy_timeout covers other processes such as an audit import.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func sqliteDSN(dbPath string) string {
	return "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const selectColumns = `id, user_id, patient_id, encounter_id, kind, risk_level,
			summary, input_snapshot, result_snapshot, created_at`

func scanEntry(s scanner) (*Entry, error) {
	var row entryRow
	err := s.Scan(
		&row.ID, &row.UserID, &row.PatientID, &row.EncounterID, &row.Kind, &row.RiskLevel,
		&row.Summary, &row.InputSnapshot, &row.ResultSnapshot, &row.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return row.toEntry(), nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		patient_id TEXT NOT NULL DEFAULT '',
		encounter_id TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		risk_level TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		input_snapshot TEXT NOT NULL,
		result_snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_encounter_id ON audit_logs(encounter_id);
	CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_logs(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save inserts an entry, ignoring duplicates by ID.
func (s *SQLiteStore) Save(ctx context.Context, entry *Entry) error {
	if err := prepare(entry); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO audit_logs (
			id, user_id, patient_id, encounter_id, kind, risk_level,
			summary, input_snapshot, result_snapshot, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		entry.UserID,
		entry.PatientID,
		entry.EncounterID,
		string(entry.Kind),
		entry.RiskLevel,
		entry.Summary,
		string(entry.InputSnapshot),
		string(entry.ResultSnapshot),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM audit_logs WHERE id = ?`, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return entry, nil
}

func (s *SQLiteStore) query(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	result := []*Entry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// List returns all entries with pagination.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM audit_logs
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ListByUser returns a user's entries with pagination.
func (s *SQLiteStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Entry, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM audit_logs
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`, userID, limit, offset)
}

// ListByEncounter returns every entry for an encounter.
func (s *SQLiteStore) ListByEncounter(ctx context.Context, encounterID string) ([]*Entry, error) {
	return s.query(ctx, `SELECT `+selectColumns+` FROM audit_logs
		WHERE encounter_id = ? ORDER BY created_at DESC`, encounterID)
}

// Count returns the total number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs").Scan(&count)
	return count, err
}

// DeleteByUser removes all entries of a user.
func (s *SQLiteStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all entries to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports entries from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importEntries(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
