package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var auditColumns = []string{
	"id", "user_id", "patient_id", "encounter_id", "kind", "risk_level",
	"summary", "input_snapshot", "result_snapshot", "created_at",
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewPostgresStore(sqlx.NewDb(db, "postgres"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, mock
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	entry := testEntry("user-1", "enc-1", time.Now().UTC())

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WithArgs(entry.ID, "user-1", "patient-1", "enc-1", "clinical_analysis", "moderate",
			entry.Summary, string(entry.InputSnapshot), string(entry.ResultSnapshot), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Save(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnError(errors.New("connection reset"))

	err := store.Save(context.Background(), testEntry("user-1", "enc-1", time.Now().UTC()))
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New().String()
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	rows := sqlmock.NewRows(auditColumns).AddRow(
		id, "user-1", "patient-1", "enc-1", "clinical_analysis", "high",
		"summary", `{"in":true}`, `{"out":true}`, created,
	)
	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).WithArgs(id).WillReturnRows(rows)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, KindClinicalAnalysis, got.Kind)
	assert.Equal(t, json.RawMessage(`{"in":true}`), got.InputSnapshot)
	assert.Equal(t, created, got.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New().String()

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_logs WHERE id = $1")).WithArgs(id).
		WillReturnRows(sqlmock.NewRows(auditColumns))

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListByUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows(auditColumns).
		AddRow(uuid.New().String(), "user-1", "", "enc-2", "lab_panel", "", "panel", `{}`, `{}`, now).
		AddRow(uuid.New().String(), "user-1", "p", "enc-1", "clinical_analysis", "low", "s", `{}`, `{}`, now.Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3")).
		WithArgs("user-1", 20, 0).
		WillReturnRows(rows)

	got, err := store.ListByUser(context.Background(), "user-1", 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, KindLabPanel, got[0].Kind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAndDelete(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_logs WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	removed, err := store.DeleteByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// getTestDB returns a live database connection for integration testing.
// Skip test if TEST_DATABASE_URL is not set.
func getTestDB(t *testing.T) *sqlx.DB {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping PostgreSQL tests")
	}

	db, err := sqlx.Open("postgres", dbURL)
	require.NoError(t, err)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_logs (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			patient_id TEXT NOT NULL DEFAULT '',
			encounter_id TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL,
			risk_level TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			input_snapshot JSONB NOT NULL,
			result_snapshot JSONB NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	require.NoError(t, err)

	_, err = db.Exec("DELETE FROM audit_logs")
	require.NoError(t, err)

	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := getTestDB(t)

	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	entry := testEntry("user-1", "enc-1", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, store.Save(ctx, entry))
	require.NoError(t, store.Save(ctx, entry), "duplicate save is ignored")

	got, err := store.Get(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(entry.InputSnapshot), string(got.InputSnapshot))

	byEncounter, err := store.ListByEncounter(ctx, "enc-1")
	require.NoError(t, err)
	assert.Len(t, byEncounter, 1)

	removed, err := store.DeleteByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
