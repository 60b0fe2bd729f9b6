// Package audit stores the analysis audit trail. Each entry records who ran
// an analysis, for which patient and encounter, together with the input and
// result snapshots.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which engine produced an entry.
type Kind string

const (
	KindClinicalAnalysis Kind = "clinical_analysis"
	KindLabPanel         Kind = "lab_panel"
)

// IsValid reports whether k is a known entry kind.
func (k Kind) IsValid() bool {
	return k == KindClinicalAnalysis || k == KindLabPanel
}

// Entry is one row of the audit log.
type Entry struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	PatientID      string          `json:"patient_id,omitempty"`
	EncounterID    string          `json:"encounter_id,omitempty"`
	Kind           Kind            `json:"kind"`
	RiskLevel      string          `json:"risk_level,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	InputSnapshot  json.RawMessage `json:"input_snapshot"`
	ResultSnapshot json.RawMessage `json:"result_snapshot"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewEntry builds an entry with a fresh ID, marshalling both snapshots.
func NewEntry(kind Kind, userID, patientID, encounterID string, input, result any) (*Entry, error) {
	in, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input snapshot: %w", err)
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result snapshot: %w", err)
	}

	return &Entry{
		ID:             uuid.New().String(),
		UserID:         userID,
		PatientID:      patientID,
		EncounterID:    encounterID,
		Kind:           kind,
		InputSnapshot:  in,
		ResultSnapshot: out,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Store defines the interface for audit log storage.
type Store interface {
	// Save inserts an entry. An entry whose ID already exists is left unchanged.
	Save(ctx context.Context, entry *Entry) error

	// Get returns the entry with the given ID, or nil if there is none.
	Get(ctx context.Context, id string) (*Entry, error)

	// List returns entries newest first.
	List(ctx context.Context, limit, offset int) ([]*Entry, error)

	// ListByUser returns a user's entries newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Entry, error)

	// ListByEncounter returns every entry recorded for an encounter, newest first.
	ListByEncounter(ctx context.Context, encounterID string) ([]*Entry, error)

	// Count returns the total number of entries.
	Count(ctx context.Context) (int64, error)

	// DeleteByUser removes all of a user's entries and reports how many were removed.
	DeleteByUser(ctx context.Context, userID string) (int64, error)

	// ExportJSON writes every entry to writer.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export and saves entries not already present.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	// Close closes the store and releases resources.
	Close() error
}

// Export represents the JSON export format.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Entries    []*Entry  `json:"entries"`
}

const exportVersion = "1.0"

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// entryRow is the column layout shared by both SQL stores. Snapshots travel
// as text so they bind to both SQLite TEXT and Postgres JSONB.
type entryRow struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	PatientID      string    `db:"patient_id"`
	EncounterID    string    `db:"encounter_id"`
	Kind           string    `db:"kind"`
	RiskLevel      string    `db:"risk_level"`
	Summary        string    `db:"summary"`
	InputSnapshot  string    `db:"input_snapshot"`
	ResultSnapshot string    `db:"result_snapshot"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r *entryRow) toEntry() *Entry {
	return &Entry{
		ID:             r.ID,
		UserID:         r.UserID,
		PatientID:      r.PatientID,
		EncounterID:    r.EncounterID,
		Kind:           Kind(r.Kind),
		RiskLevel:      r.RiskLevel,
		Summary:        r.Summary,
		InputSnapshot:  json.RawMessage(r.InputSnapshot),
		ResultSnapshot: json.RawMessage(r.ResultSnapshot),
		CreatedAt:      r.CreatedAt,
	}
}

// prepare fills defaults and validates an entry before it is written.
func prepare(entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("entry is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	} else if _, err := uuid.Parse(entry.ID); err != nil {
		return fmt.Errorf("invalid entry id %q: %w", entry.ID, err)
	}
	if !entry.Kind.IsValid() {
		return fmt.Errorf("invalid entry kind %q", entry.Kind)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if len(entry.InputSnapshot) == 0 {
		entry.InputSnapshot = json.RawMessage("{}")
	}
	if len(entry.ResultSnapshot) == 0 {
		entry.ResultSnapshot = json.RawMessage("{}")
	}
	return nil
}

func writeExport(writer io.Writer, entries []*Entry) error {
	export := &Export{
		Version:    exportVersion,
		ExportedAt: time.Now(),
		Count:      len(entries),
		Entries:    entries,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// importEntries saves every entry of an export through store, skipping IDs
// that already exist.
func importEntries(ctx context.Context, store Store, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, entry := range export.Entries {
		if entry.ID != "" {
			existing, err := store.Get(ctx, entry.ID)
			if err != nil {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
			if existing != nil {
				skipped++
				continue
			}
		}

		if err := store.Save(ctx, entry); err != nil {
			return imported, skipped, fmt.Errorf("failed to save: %w", err)
		}
		imported++
	}

	return imported, skipped, nil
}
