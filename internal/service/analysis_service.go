package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/audit"
	"github.com/cds-reasoning-server/internal/cache"
	"github.com/cds-reasoning-server/internal/domain"
)

// ErrRepositoryUnavailable is returned by operations that need the clinical
// records database when none is configured.
var ErrRepositoryUnavailable = errors.New("encounter repository not configured")

const (
	defaultListLimit  = 20
	maxListLimit      = 100
	maxPanelTests     = 100
	backgroundTimeout = 10 * time.Second
	cacheKeyPrefix    = "analysis:"
)

// AnalysisRequest is one encounter submitted for analysis.
type AnalysisRequest struct {
	UserID    string                   `json:"-"`
	Patient   domain.PatientContext    `json:"patient"`
	Encounter domain.EncounterSnapshot `json:"encounter"`
}

// AnalysisResponse is returned to the caller as soon as the engine finishes.
type AnalysisResponse struct {
	ID        string                         `json:"id"`
	Result    *domain.ClinicalAnalysisResult `json:"result"`
	Labs      *domain.LabPanelResult         `json:"labs,omitempty"`
	CreatedAt time.Time                      `json:"created_at"`
}

// PanelRequest is a set of lab results submitted together.
type PanelRequest struct {
	UserID      string           `json:"-"`
	PatientID   string           `json:"patient_id,omitempty"`
	EncounterID string           `json:"encounter_id,omitempty"`
	Tests       []domain.LabTest `json:"tests"`
}

// PanelResponse is the interpreted panel with the ID of its audit entry.
type PanelResponse struct {
	ID     string                 `json:"id"`
	Result *domain.LabPanelResult `json:"result"`
}

// inputSnapshot is the audit record of what the engine saw.
type inputSnapshot struct {
	Patient   domain.PatientContext    `json:"patient"`
	Encounter domain.EncounterSnapshot `json:"encounter"`
	Labs      []domain.LabTest         `json:"labs,omitempty"`
}

// AnalysisServiceConfig wires the collaborators of an AnalysisService.
// Cache and Repository are optional.
type AnalysisServiceConfig struct {
	Reasoner   domain.ConditionReasoner
	Labs       domain.LabInterpreter
	Store      audit.Store
	Recorder   *audit.Recorder
	Cache      cache.Cache
	Repository domain.EncounterRepository
	Logger     *logrus.Logger
}

// AnalysisService runs the engines for transport layers and keeps the audit
// trail. Audit and write-back failures never reach the caller.
type AnalysisService struct {
	reasoner domain.ConditionReasoner
	labs     domain.LabInterpreter
	store    audit.Store
	recorder *audit.Recorder
	cache    cache.Cache
	repo     domain.EncounterRepository
	logger   *logrus.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// NewAnalysisService creates an analysis service.
func NewAnalysisService(cfg AnalysisServiceConfig) (*AnalysisService, error) {
	if cfg.Reasoner == nil || cfg.Labs == nil {
		return nil, fmt.Errorf("reasoner and lab interpreter are required")
	}
	if cfg.Store == nil || cfg.Recorder == nil {
		return nil, fmt.Errorf("audit store and recorder are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &AnalysisService{
		reasoner: cfg.Reasoner,
		labs:     cfg.Labs,
		store:    cfg.Store,
		recorder: cfg.Recorder,
		cache:    cfg.Cache,
		repo:     cfg.Repository,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// AnalyzeEncounter validates and analyzes an encounter, then schedules the
// audit write and returns without waiting for it.
func (s *AnalysisService) AnalyzeEncounter(ctx context.Context, req AnalysisRequest) (*AnalysisResponse, error) {
	if err := req.Patient.Validate(s.now()); err != nil {
		return nil, err
	}
	if err := req.Encounter.Validate(); err != nil {
		return nil, err
	}

	result := s.reasoner.Analyze(req.Patient, req.Encounter)

	entry, err := s.newClinicalEntry(req.UserID, inputSnapshot{Patient: req.Patient, Encounter: req.Encounter}, result, nil)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(entry)

	s.logger.WithFields(logrus.Fields{
		"analysis_id":  entry.ID,
		"user_id":      req.UserID,
		"encounter_id": req.Encounter.ID,
		"risk_level":   result.RiskLevel.String(),
		"conditions":   len(result.PossibleConditions),
	}).Info("Completed encounter analysis")

	return &AnalysisResponse{ID: entry.ID, Result: result, CreatedAt: entry.CreatedAt}, nil
}

// AnalyzeStoredEncounter loads an encounter from the clinical records
// database, analyzes it together with its lab results and writes the AI
// summary back onto the encounter in the background.
func (s *AnalysisService) AnalyzeStoredEncounter(ctx context.Context, userID, encounterID string) (*AnalysisResponse, error) {
	if s.repo == nil {
		return nil, ErrRepositoryUnavailable
	}

	record, err := s.repo.GetEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	tests, err := s.repo.ListLabResults(ctx, encounterID)
	if err != nil {
		return nil, err
	}

	result := s.reasoner.Analyze(record.Patient, record.Encounter)

	var labs *domain.LabPanelResult
	if len(tests) > 0 {
		labs = s.labs.InterpretPanel(tests)
	}

	input := inputSnapshot{Patient: record.Patient, Encounter: record.Encounter, Labs: tests}
	entry, err := s.newClinicalEntry(userID, input, result, labs)
	if err != nil {
		return nil, err
	}
	s.recorder.Record(entry)

	summary := SummaryLine(result)
	s.background(func(ctx context.Context) {
		if err := s.repo.UpdateEncounterAI(ctx, encounterID, result, summary); err != nil {
			s.logger.WithError(err).WithField("encounter_id", encounterID).Warn("Failed to store AI summary on encounter")
		}
	})

	s.logger.WithFields(logrus.Fields{
		"analysis_id":  entry.ID,
		"user_id":      userID,
		"encounter_id": encounterID,
		"risk_level":   result.RiskLevel.String(),
		"lab_tests":    len(tests),
	}).Info("Completed stored encounter analysis")

	return &AnalysisResponse{ID: entry.ID, Result: result, Labs: labs, CreatedAt: entry.CreatedAt}, nil
}

// InterpretLab interprets one lab value. Single values are not audited.
func (s *AnalysisService) InterpretLab(ctx context.Context, test domain.LabTest) (domain.LabInterpretation, error) {
	if err := validateLabTest("test", test); err != nil {
		return domain.LabInterpretation{}, err
	}
	return s.labs.InterpretOne(test), nil
}

// InterpretPanel interprets a lab panel and schedules its audit write.
func (s *AnalysisService) InterpretPanel(ctx context.Context, req PanelRequest) (*PanelResponse, error) {
	if len(req.Tests) == 0 {
		return nil, domain.NewValidationError("tests", "at least one lab test is required", nil)
	}
	if len(req.Tests) > maxPanelTests {
		return nil, domain.NewValidationError("tests", fmt.Sprintf("at most %d lab tests per panel", maxPanelTests), len(req.Tests))
	}
	for i, test := range req.Tests {
		if err := validateLabTest(fmt.Sprintf("tests[%d]", i), test); err != nil {
			return nil, err
		}
	}

	result := s.labs.InterpretPanel(req.Tests)

	entry, err := audit.NewEntry(audit.KindLabPanel, req.UserID, req.PatientID, req.EncounterID, req.Tests, result)
	if err != nil {
		return nil, err
	}
	entry.Summary = result.Summary
	s.recorder.Record(entry)

	return &PanelResponse{ID: entry.ID, Result: result}, nil
}

// ReferenceRanges returns the lab reference table.
func (s *AnalysisService) ReferenceRanges() map[string]domain.LabReferenceRange {
	return s.labs.ReferenceRanges()
}

// GetAnalysis returns one of the user's audit entries, reading through the
// cache when one is configured. Entries of other users are reported as not found.
func (s *AnalysisService) GetAnalysis(ctx context.Context, userID, id string) (*audit.Entry, error) {
	entry, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return entry, nil
}

func (s *AnalysisService) lookup(ctx context.Context, id string) (*audit.Entry, error) {
	key := cacheKeyPrefix + id

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WithError(err).Debug("Analysis cache read failed")
		}
		if ok {
			var entry audit.Entry
			if err := json.Unmarshal(raw, &entry); err == nil {
				return &entry, nil
			}
			_ = s.cache.Delete(ctx, key)
		}
	}

	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis: %w", err)
	}
	if entry == nil {
		return nil, domain.ErrNotFound
	}

	if s.cache != nil {
		if raw, err := json.Marshal(entry); err == nil {
			if err := s.cache.Set(ctx, key, raw); err != nil {
				s.logger.WithError(err).Debug("Analysis cache write failed")
			}
		}
	}
	return entry, nil
}

// ListAnalyses returns a page of the user's audit entries, newest first.
func (s *AnalysisService) ListAnalyses(ctx context.Context, userID string, limit, offset int) ([]*audit.Entry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.store.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return entries, nil
}

// DeleteUserHistory removes every audit entry of a user and evicts them from the cache.
func (s *AnalysisService) DeleteUserHistory(ctx context.Context, userID string) (int64, error) {
	if s.cache != nil {
		entries, err := s.store.ListByUser(ctx, userID, math.MaxInt32, 0)
		if err != nil {
			return 0, fmt.Errorf("failed to list analyses: %w", err)
		}
		for _, e := range entries {
			_ = s.cache.Delete(ctx, cacheKeyPrefix+e.ID)
		}
	}

	removed, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete analyses: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"removed": removed,
	}).Info("Deleted analysis history")

	return removed, nil
}

// Wait blocks until background audit writes and encounter updates finish.
func (s *AnalysisService) Wait() {
	s.wg.Wait()
	s.recorder.Wait()
}

func (s *AnalysisService) background(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *AnalysisService) newClinicalEntry(userID string, input inputSnapshot, result *domain.ClinicalAnalysisResult, labs *domain.LabPanelResult) (*audit.Entry, error) {
	var snapshot any = result
	if labs != nil {
		snapshot = struct {
			*domain.ClinicalAnalysisResult
			Labs *domain.LabPanelResult `json:"labs"`
		}{result, labs}
	}

	entry, err := audit.NewEntry(audit.KindClinicalAnalysis, userID, input.Patient.ID, input.Encounter.ID, input, snapshot)
	if err != nil {
		return nil, err
	}
	entry.RiskLevel = result.RiskLevel.String()
	entry.Summary = SummaryLine(result)
	return entry, nil
}

// SummaryLine renders the one-line summary stored with encounters and
// audit entries.
func SummaryLine(result *domain.ClinicalAnalysisResult) string {
	conditions := "None identified"
	if len(result.PossibleConditions) > 0 {
		names := make([]string, len(result.PossibleConditions))
		for i, c := range result.PossibleConditions {
			names[i] = c.Name
		}
		conditions = strings.Join(names, ", ")
	}

	return fmt.Sprintf("Risk Level: %s | Red Flags: %d identified | Possible Conditions: %s",
		strings.ToUpper(result.RiskLevel.String()), len(result.RedFlags), conditions)
}

func validateLabTest(field string, test domain.LabTest) error {
	if strings.TrimSpace(test.Name) == "" {
		return domain.NewValidationError(field+".name", "test name is required", test.Name)
	}
	if math.IsNaN(test.Value) || math.IsInf(test.Value, 0) {
		return domain.NewValidationError(field+".value", "value must be a finite number", test.Value)
	}
	return nil
}
