package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
)

// EncounterRepository loads patients, encounters and lab results from the
// clinical records database and stores AI analysis results on encounters.
type EncounterRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

var _ domain.EncounterRepository = (*EncounterRepository)(nil)

// NewEncounterRepository creates a new encounter repository
func NewEncounterRepository(db *pgxpool.Pool, logger *logrus.Logger) *EncounterRepository {
	return &EncounterRepository{
		db:  db,
		log: logger,
	}
}

// CreatePatient inserts a patient and returns its ID.
func (r *EncounterRepository) CreatePatient(ctx context.Context, userID, displayLabel string, patient domain.PatientContext) (string, error) {
	id := patient.ID
	if id == "" {
		id = uuid.New().String()
	}
	sex := patient.Sex
	if sex == "" {
		sex = domain.SexUnknown
	}

	query := `
		INSERT INTO patients (id, user_id, display_label, year_of_birth, sex)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, id, userID, displayLabel, patient.YearOfBirth, string(sex)); err != nil {
		r.log.WithFields(logrus.Fields{
			"patient_id": id,
			"error":      err,
		}).Error("Failed to create patient")
		return "", fmt.Errorf("creating patient: %w", err)
	}

	return id, nil
}

// CreateEncounter inserts an encounter for a patient and returns its ID.
func (r *EncounterRepository) CreateEncounter(ctx context.Context, userID, patientID string, encounter domain.EncounterSnapshot) (string, error) {
	id := encounter.ID
	if id == "" {
		id = uuid.New().String()
	}

	structured, err := json.Marshal(encounter.StructuredData)
	if err != nil {
		return "", fmt.Errorf("marshaling structured data: %w", err)
	}

	flags := make([]string, len(encounter.RedFlags))
	for i, f := range encounter.RedFlags {
		flags[i] = string(f)
	}

	query := `
		INSERT INTO encounters (id, patient_id, user_id, chief_complaint, structured_data, red_flags)
		VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.db.Exec(ctx, query, id, patientID, userID, encounter.ChiefComplaint, structured, flags); err != nil {
		r.log.WithFields(logrus.Fields{
			"encounter_id": id,
			"patient_id":   patientID,
			"error":        err,
		}).Error("Failed to create encounter")
		return "", fmt.Errorf("creating encounter: %w", err)
	}

	return id, nil
}

// AddLabResult attaches a lab result to an encounter.
func (r *EncounterRepository) AddLabResult(ctx context.Context, encounterID string, test domain.LabTest) error {
	query := `
		INSERT INTO lab_results (id, encounter_id, test_name, value, unit)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query, uuid.New().String(), encounterID, test.Name, test.Value, test.Unit); err != nil {
		return fmt.Errorf("adding lab result: %w", err)
	}
	return nil
}

// GetEncounter retrieves an encounter together with its patient.
func (r *EncounterRepository) GetEncounter(ctx context.Context, id string) (*domain.EncounterRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("encounter not found: %w", domain.ErrNotFound)
	}

	query := `
		SELECT e.id::text, e.chief_complaint, e.structured_data, e.red_flags,
			   p.id::text, p.sex, p.year_of_birth
		FROM encounters e
		JOIN patients p ON p.id = e.patient_id
		WHERE e.id = $1`

	var (
		record     domain.EncounterRecord
		structured []byte
		flags      []string
		sex        string
	)

	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.Encounter.ID,
		&record.Encounter.ChiefComplaint,
		&structured,
		&flags,
		&record.Patient.ID,
		&sex,
		&record.Patient.YearOfBirth,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("encounter not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"encounter_id": id,
			"error":        err,
		}).Error("Failed to get encounter")
		return nil, fmt.Errorf("getting encounter: %w", err)
	}

	if len(structured) > 0 {
		if err := json.Unmarshal(structured, &record.Encounter.StructuredData); err != nil {
			return nil, fmt.Errorf("unmarshaling structured data: %w", err)
		}
	}

	record.Patient.Sex = domain.Sex(sex)
	record.Encounter.RedFlags = make([]domain.RedFlagType, len(flags))
	for i, f := range flags {
		record.Encounter.RedFlags[i] = domain.RedFlagType(f)
	}

	return &record, nil
}

// UpdateEncounterAI stores an analysis result and its summary line on the encounter.
func (r *EncounterRepository) UpdateEncounterAI(ctx context.Context, id string, result *domain.ClinicalAnalysisResult, summary string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling analysis result: %w", err)
	}

	query := `
		UPDATE encounters
		SET ai_risk_level = $2, ai_summary = $3, ai_result = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, result.RiskLevel.String(), summary, resultJSON)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"encounter_id": id,
			"error":        err,
		}).Error("Failed to update encounter analysis")
		return fmt.Errorf("updating encounter analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("encounter not found: %w", domain.ErrNotFound)
	}

	r.log.WithFields(logrus.Fields{
		"encounter_id": id,
		"risk_level":   result.RiskLevel.String(),
	}).Debug("Encounter analysis stored")

	return nil
}

// ListLabResults returns the lab results recorded for an encounter in
// collection order.
func (r *EncounterRepository) ListLabResults(ctx context.Context, encounterID string) ([]domain.LabTest, error) {
	query := `
		SELECT test_name, value, unit
		FROM lab_results
		WHERE encounter_id = $1
		ORDER BY collected_at, test_name`

	rows, err := r.db.Query(ctx, query, encounterID)
	if err != nil {
		return nil, fmt.Errorf("listing lab results: %w", err)
	}
	defer rows.Close()

	var tests []domain.LabTest
	for rows.Next() {
		var test domain.LabTest
		if err := rows.Scan(&test.Name, &test.Value, &test.Unit); err != nil {
			return nil, fmt.Errorf("scanning lab result: %w", err)
		}
		tests = append(tests, test)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lab results: %w", err)
	}

	return tests, nil
}
