package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgreSQL audit store.
// It expects the audit_logs table to already exist (created via migrations).
func NewPostgresStore(db *sqlx.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL audit store from a connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

const pgSelect = `SELECT id, user_id, patient_id, encounter_id, kind, risk_level,
		summary, input_snapshot, result_snapshot, created_at
	FROM audit_logs`

// Save inserts an entry, ignoring duplicates by ID.
func (s *PostgresStore) Save(ctx context.Context, entry *Entry) error {
	if err := prepare(entry); err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (
			id, user_id, patient_id, encounter_id, kind, risk_level,
			summary, input_snapshot, result_snapshot, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by ID.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, pgSelect+` WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get audit entry: %w", err)
	}
	return row.toEntry(), nil
}

func (s *PostgresStore) selectEntries(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	result := make([]*Entry, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toEntry())
	}
	return result, nil
}

// List returns all entries with pagination.
func (s *PostgresStore) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	return s.selectEntries(ctx, pgSelect+` ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
}

// ListByUser returns a user's entries with pagination.
func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Entry, error) {
	return s.selectEntries(ctx, pgSelect+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, userID, limit, offset)
}

// ListByEncounter returns every entry for an encounter.
func (s *PostgresStore) ListByEncounter(ctx context.Context, encounterID string) ([]*Entry, error) {
	return s.selectEntries(ctx, pgSelect+` WHERE encounter_id = $1 ORDER BY created_at DESC`, encounterID)
}

// Count returns the total number of entries.
func (s *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM audit_logs"); err != nil {
		return 0, fmt.Errorf("failed to count audit entries: %w", err)
	}
	return count, nil
}

// DeleteByUser removes all entries of a user.
func (s *PostgresStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete audit entries: %w", err)
	}
	return result.RowsAffected()
}

// ExportJSON exports all entries to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list audit entries: %w", err)
	}
	return writeExport(writer, all)
}

// ImportJSON imports entries from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	return importEntries(ctx, s, reader)
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
