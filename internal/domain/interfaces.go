package domain

import (
	"context"
)

// ConditionReasoner turns an encounter snapshot into a clinical analysis.
// Implementations are pure: identical inputs give identical results.
type ConditionReasoner interface {
	Analyze(patient PatientContext, encounter EncounterSnapshot) *ClinicalAnalysisResult
}

// LabInterpreter classifies lab values against reference ranges.
type LabInterpreter interface {
	InterpretOne(test LabTest) LabInterpretation
	InterpretPanel(tests []LabTest) *LabPanelResult
	ReferenceRanges() map[string]LabReferenceRange
}

// EncounterRecord is an encounter row together with its patient, as loaded
// from the clinical records database.
type EncounterRecord struct {
	Patient   PatientContext
	Encounter EncounterSnapshot
}

// EncounterRepository loads encounters and stores the AI analysis back onto them.
type EncounterRepository interface {
	GetEncounter(ctx context.Context, encounterID string) (*EncounterRecord, error)
	UpdateEncounterAI(ctx context.Context, encounterID string, result *ClinicalAnalysisResult, summary string) error
	ListLabResults(ctx context.Context, encounterID string) ([]LabTest, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
