package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-reasoning-server/internal/audit"
	"github.com/cds-reasoning-server/internal/cache"
	"github.com/cds-reasoning-server/internal/domain"
)

type fakeRepository struct {
	mu        sync.Mutex
	records   map[string]*domain.EncounterRecord
	labs      map[string][]domain.LabTest
	summaries map[string]string
	updateErr error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		records:   make(map[string]*domain.EncounterRecord),
		labs:      make(map[string][]domain.LabTest),
		summaries: make(map[string]string),
	}
}

func (r *fakeRepository) GetEncounter(_ context.Context, id string) (*domain.EncounterRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rec, nil
}

func (r *fakeRepository) UpdateEncounterAI(_ context.Context, id string, _ *domain.ClinicalAnalysisResult, summary string) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries[id] = summary
	return nil
}

func (r *fakeRepository) ListLabResults(_ context.Context, encounterID string) ([]domain.LabTest, error) {
	return r.labs[encounterID], nil
}

func (r *fakeRepository) summary(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summaries[id]
}

type serviceFixture struct {
	svc   *AnalysisService
	store *audit.SQLiteStore
	cache *cache.MemoryCache
	repo  *fakeRepository
	hook  *test.Hook
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "analysis-service-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := audit.NewSQLiteStore(filepath.Join(tmpDir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	memory := cache.NewMemoryCache(100, time.Minute)
	repo := newFakeRepository()

	svc, err := NewAnalysisService(AnalysisServiceConfig{
		Reasoner:   newTestReasoner(),
		Labs:       NewLabInterpreter(logger, nil),
		Store:      store,
		Recorder:   audit.NewRecorder(store, logger, audit.DefaultRecorderConfig()),
		Cache:      memory,
		Repository: repo,
		Logger:     logger,
	})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &serviceFixture{svc: svc, store: store, cache: memory, repo: repo, hook: hook}
}

func pneumoniaRequest(userID string) AnalysisRequest {
	return AnalysisRequest{
		UserID:  userID,
		Patient: domain.PatientContext{ID: "pat-1", Sex: domain.SexFemale, YearOfBirth: intPtr(1980)},
		Encounter: domain.EncounterSnapshot{
			ID:             "enc-1",
			ChiefComplaint: "Unwell for three days",
			StructuredData: domain.StructuredData{Fever: true, Cough: true, ShortnessOfBreath: true},
		},
	}
}

func TestNewAnalysisService_RequiresCollaborators(t *testing.T) {
	_, err := NewAnalysisService(AnalysisServiceConfig{})
	assert.Error(t, err)

	_, err = NewAnalysisService(AnalysisServiceConfig{
		Reasoner: newTestReasoner(),
		Labs:     NewLabInterpreter(nil, nil),
	})
	assert.Error(t, err)
}

func TestAnalysisService_AnalyzeEncounterWritesAudit(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.AnalyzeEncounter(ctx, pneumoniaRequest("user-1"))
	require.NoError(t, err)
	require.NotEmpty(t, resp.ID)
	assert.Equal(t, []string{"J18.9"}, conditionCodes(resp.Result))

	f.svc.Wait()

	entry, err := f.store.Get(ctx, resp.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, audit.KindClinicalAnalysis, entry.Kind)
	assert.Equal(t, "user-1", entry.UserID)
	assert.Equal(t, "pat-1", entry.PatientID)
	assert.Equal(t, "enc-1", entry.EncounterID)
	assert.Equal(t, "low", entry.RiskLevel)
	assert.Equal(t, "Risk Level: LOW | Red Flags: 0 identified | Possible Conditions: Possible lower respiratory tract infection (e.g., pneumonia)", entry.Summary)
	assert.Contains(t, string(entry.InputSnapshot), "Unwell for three days")
	assert.Contains(t, string(entry.ResultSnapshot), "J18.9")
}

func TestAnalysisService_AnalyzeEncounterRejectsInvalidInput(t *testing.T) {
	f := newServiceFixture(t)

	req := pneumoniaRequest("user-1")
	req.Encounter.RedFlags = []domain.RedFlagType{"not_a_flag"}

	_, err := f.svc.AnalyzeEncounter(context.Background(), req)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "encounter.red_flags[0]", verr.Field)

	req = pneumoniaRequest("user-1")
	req.Patient.YearOfBirth = intPtr(2090)
	_, err = f.svc.AnalyzeEncounter(context.Background(), req)
	require.ErrorAs(t, err, &verr)
}

func TestAnalysisService_AuditFailureDoesNotFailAnalysis(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.store.Close())

	resp, err := f.svc.AnalyzeEncounter(context.Background(), pneumoniaRequest("user-1"))
	require.NoError(t, err)
	assert.NotNil(t, resp.Result)

	f.svc.Wait()

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Failed to write audit log entry" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAnalysisService_GetAnalysis(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.AnalyzeEncounter(ctx, pneumoniaRequest("user-1"))
	require.NoError(t, err)
	f.svc.Wait()

	entry, err := f.svc.GetAnalysis(ctx, "user-1", resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, entry.ID)

	_, cached, err := f.cache.Get(ctx, cacheKeyPrefix+resp.ID)
	require.NoError(t, err)
	assert.True(t, cached)

	_, err = f.svc.GetAnalysis(ctx, "user-2", resp.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetAnalysis(ctx, "user-1", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalysisService_ListAndDeleteHistory(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.svc.AnalyzeEncounter(ctx, pneumoniaRequest("user-1"))
		require.NoError(t, err)
	}
	other, err := f.svc.AnalyzeEncounter(ctx, pneumoniaRequest("user-2"))
	require.NoError(t, err)
	f.svc.Wait()

	entries, err := f.svc.ListAnalyses(ctx, "user-1", 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	entries, err = f.svc.ListAnalyses(ctx, "user-1", 2, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	first := entries[0].ID
	_, err = f.svc.GetAnalysis(ctx, "user-1", first)
	require.NoError(t, err)

	removed, err := f.svc.DeleteUserHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	_, err = f.svc.GetAnalysis(ctx, "user-1", first)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetAnalysis(ctx, "user-2", other.ID)
	assert.NoError(t, err)
}

func TestAnalysisService_InterpretLab(t *testing.T) {
	f := newServiceFixture(t)

	result, err := f.svc.InterpretLab(context.Background(), domain.LabTest{Name: "Potassium", Value: 6.8})
	require.NoError(t, err)
	assert.Equal(t, domain.LabStatusCritical, result.Status)

	_, err = f.svc.InterpretLab(context.Background(), domain.LabTest{Name: " ", Value: 1})
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestAnalysisService_InterpretPanel(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	resp, err := f.svc.InterpretPanel(ctx, PanelRequest{
		UserID:      "user-1",
		EncounterID: "enc-9",
		Tests: []domain.LabTest{
			{Name: "Hemoglobin", Value: 14},
			{Name: "Glucose", Value: 450},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL: 1 critical finding(s) requiring immediate attention", resp.Result.Summary)

	f.svc.Wait()
	entry, err := f.store.Get(ctx, resp.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, audit.KindLabPanel, entry.Kind)
	assert.Equal(t, "enc-9", entry.EncounterID)

	_, err = f.svc.InterpretPanel(ctx, PanelRequest{UserID: "user-1"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "tests", verr.Field)
}

func TestAnalysisService_AnalyzeStoredEncounter(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.repo.records["enc-7"] = &domain.EncounterRecord{
		Patient: domain.PatientContext{ID: "pat-7", Sex: domain.SexMale, YearOfBirth: intPtr(1950)},
		Encounter: domain.EncounterSnapshot{
			ID:             "enc-7",
			ChiefComplaint: "Chest pain radiating to left arm",
			StructuredData: domain.StructuredData{Pain: &domain.Pain{Present: true}, ShortnessOfBreath: true},
		},
	}
	f.repo.labs["enc-7"] = []domain.LabTest{{Name: "Potassium", Value: 5.5}}

	resp, err := f.svc.AnalyzeStoredEncounter(ctx, "user-1", "enc-7")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, resp.Result.RiskLevel)
	require.NotNil(t, resp.Labs)
	assert.Len(t, resp.Labs.Interpretations, 1)

	f.svc.Wait()
	assert.Equal(t, SummaryLine(resp.Result), f.repo.summary("enc-7"))

	entry, err := f.store.Get(ctx, resp.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, string(entry.ResultSnapshot), `"labs"`)

	_, err = f.svc.AnalyzeStoredEncounter(ctx, "user-1", "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAnalysisService_StoredEncounterUpdateFailureSwallowed(t *testing.T) {
	f := newServiceFixture(t)
	f.repo.records["enc-8"] = &domain.EncounterRecord{
		Encounter: domain.EncounterSnapshot{ID: "enc-8", ChiefComplaint: "Cough"},
	}
	f.repo.updateErr = errors.New("connection reset")

	resp, err := f.svc.AnalyzeStoredEncounter(context.Background(), "user-1", "enc-8")
	require.NoError(t, err)
	assert.NotNil(t, resp.Result)
	f.svc.Wait()

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Message == "Failed to store AI summary on encounter" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestAnalysisService_WithoutRepository(t *testing.T) {
	f := newServiceFixture(t)
	f.svc.repo = nil

	_, err := f.svc.AnalyzeStoredEncounter(context.Background(), "user-1", "enc-1")
	assert.ErrorIs(t, err, ErrRepositoryUnavailable)
}

func TestSummaryLine(t *testing.T) {
	result := &domain.ClinicalAnalysisResult{
		RiskLevel: domain.RiskHigh,
		RedFlags:  []string{"a", "b"},
		PossibleConditions: []domain.PossibleCondition{
			{Name: "Acute coronary syndrome"},
			{Name: "Chest pain, unspecified"},
		},
	}
	assert.Equal(t, "Risk Level: HIGH | Red Flags: 2 identified | Possible Conditions: Acute coronary syndrome, Chest pain, unspecified", SummaryLine(result))

	empty := &domain.ClinicalAnalysisResult{RiskLevel: domain.RiskLow}
	assert.Equal(t, "Risk Level: LOW | Red Flags: 0 identified | Possible Conditions: None identified", SummaryLine(empty))
}
