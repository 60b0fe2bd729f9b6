package service

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cds-reasoning-server/internal/domain"
)

func newTestReasoner() *ClinicalReasoner {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	r := NewClinicalReasoner(logger)
	r.now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }
	return r
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func conditionCodes(result *domain.ClinicalAnalysisResult) []string {
	codes := make([]string, len(result.PossibleConditions))
	for i, c := range result.PossibleConditions {
		codes[i] = c.ICD10Code
	}
	return codes
}

func TestClinicalReasoner_Headache(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{ChiefComplaint: "Severe headache"})

	assert.Contains(t, conditionCodes(result), "G43.909")
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
	assert.Empty(t, result.RedFlags)
	assert.Equal(t, []string{
		"Was the onset sudden (seconds to minutes) or gradual?",
		"Any visual changes, neck stiffness, or sensitivity to light?",
	}, result.RecommendedQuestions)
	assert.Equal(t, "Patient presenting with severe headache; possible conditions include Possible migraine or primary headache.", result.Summary)
	assert.Equal(t, CautionText, result.CautionText)
}

func TestClinicalReasoner_LowerRespiratoryInfection(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "Unwell for three days",
		StructuredData: domain.StructuredData{Fever: true, Cough: true, ShortnessOfBreath: true},
	})

	require.NotEmpty(t, result.PossibleConditions)
	assert.Equal(t, "J18.9", result.PossibleConditions[0].ICD10Code)
	assert.Equal(t, domain.LikelihoodMedium, result.PossibleConditions[0].Likelihood)
	assert.Equal(t, domain.RiskLow, result.RiskLevel, "pneumonia rule carries no risk override")

	// fever(2) + cough(2) + shortness of breath(1) truncated at five
	assert.Len(t, result.RecommendedQuestions, 5)
	assert.Equal(t, "How high is the temperature?", result.RecommendedQuestions[0])
	assert.Equal(t, "Does the breathlessness occur at rest or only on exertion?", result.RecommendedQuestions[4])
}

func TestClinicalReasoner_KeywordMatchIgnoresExcludedSymptoms(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "Fever and cough for three days",
		StructuredData: domain.StructuredData{Fever: true, Cough: true, ShortnessOfBreath: true},
	})

	// R50.9 and R05.9 exclude these symptoms but their keywords appear in the complaint
	assert.Equal(t, []string{"J18.9", "R50.9", "R05.9"}, conditionCodes(result))
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
}

func TestClinicalReasoner_LowerRespiratoryInfectionRaisedByVitals(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		StructuredData: domain.StructuredData{
			Fever: true, Cough: true, ShortnessOfBreath: true,
			Vitals: &domain.Vitals{OxygenSaturation: floatPtr(86)},
		},
	})

	assert.Contains(t, conditionCodes(result), "J18.9")
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Contains(t, result.RedFlags, "Low oxygen saturation: 86%")
}

func TestClinicalReasoner_HighFever(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		StructuredData: domain.StructuredData{Vitals: &domain.Vitals{Temperature: floatPtr(39.0)}},
	})

	assert.Contains(t, result.RedFlags, "High fever: 39.0°C")
	assert.True(t, result.RiskLevel.AtLeast(domain.RiskModerate))
}

func TestClinicalReasoner_VitalThresholds(t *testing.T) {
	tests := []struct {
		name        string
		vitals      domain.Vitals
		wantRisk    domain.RiskLevel
		wantMessage string
	}{
		{"temperature at threshold", domain.Vitals{Temperature: floatPtr(38.5)}, domain.RiskLow, ""},
		{"tachycardia", domain.Vitals{HeartRate: floatPtr(130)}, domain.RiskModerate, "Tachycardia: heart rate 130 bpm"},
		{"bradycardia", domain.Vitals{HeartRate: floatPtr(45)}, domain.RiskModerate, "Bradycardia: heart rate 45 bpm"},
		{"heart rate at upper threshold", domain.Vitals{HeartRate: floatPtr(120)}, domain.RiskLow, ""},
		{"hypertensive crisis", domain.Vitals{BloodPressureSystolic: floatPtr(190), BloodPressureDiastolic: floatPtr(110)}, domain.RiskHigh, "Severely elevated blood pressure: 190/110 mmHg"},
		{"hypertensive systolic only", domain.Vitals{BloodPressureSystolic: floatPtr(200)}, domain.RiskHigh, "Severely elevated blood pressure: systolic 200 mmHg"},
		{"hypoxia", domain.Vitals{OxygenSaturation: floatPtr(88)}, domain.RiskHigh, "Low oxygen saturation: 88%"},
		{"saturation at threshold", domain.Vitals{OxygenSaturation: floatPtr(90)}, domain.RiskLow, ""},
	}

	r := newTestReasoner()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.vitals
			result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
				StructuredData: domain.StructuredData{Vitals: &v},
			})

			assert.Equal(t, tt.wantRisk, result.RiskLevel)
			if tt.wantMessage == "" {
				assert.Empty(t, result.RedFlags)
			} else {
				assert.Equal(t, []string{tt.wantMessage}, result.RedFlags)
			}
		})
	}
}

func TestClinicalReasoner_RedFlagsForceHighRisk(t *testing.T) {
	r := newTestReasoner()

	for _, flag := range domain.RedFlagTypes {
		t.Run(string(flag), func(t *testing.T) {
			result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
				ChiefComplaint: "headache",
				RedFlags:       []domain.RedFlagType{flag},
			})

			assert.Equal(t, domain.RiskHigh, result.RiskLevel)
			msg, ok := RedFlagMessage(flag)
			require.True(t, ok)
			assert.Equal(t, []string{msg}, result.RedFlags)
		})
	}
}

func TestClinicalReasoner_RiskNeverLowered(t *testing.T) {
	r := newTestReasoner()

	// A red flag sets high; a later moderate vital and a moderate rule must not lower it.
	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "abdominal pain",
		StructuredData: domain.StructuredData{Vitals: &domain.Vitals{Temperature: floatPtr(39.2), HeartRate: floatPtr(125)}},
		RedFlags:       []domain.RedFlagType{domain.RedFlagSevereAbdominalPain},
	})

	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
	assert.Len(t, result.RedFlags, 3)
	assert.Equal(t, "Severe abdominal pain - consider surgical causes", result.RedFlags[0])
}

func TestClinicalReasoner_PainMapsToChestPain(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "Abdominal pain since this morning",
		StructuredData: domain.StructuredData{Pain: &domain.Pain{Present: true, Location: "right lower quadrant", Severity: intPtr(7)}},
	})

	// Any present pain is treated as chest pain for rule matching.
	assert.Equal(t, []string{"R07.9", "R10.9"}, conditionCodes(result))
	assert.Equal(t, domain.RiskModerate, result.RiskLevel)
	assert.Equal(t, []string{
		"Is the chest pain central, left-sided, or elsewhere?",
		"Does the pain radiate to the arm, jaw, or back?",
		"Where exactly is the abdominal pain located?",
		"Is the pain constant or intermittent?",
	}, result.RecommendedQuestions)
}

func TestClinicalReasoner_ChestPainWithDyspnea(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		StructuredData: domain.StructuredData{ShortnessOfBreath: true, Pain: &domain.Pain{Present: true, Location: "chest"}},
	})

	assert.Equal(t, []string{"I21.9"}, conditionCodes(result))
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
}

func TestClinicalReasoner_DifferentialTruncatedInRuleOrder(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "Fever, cough, headache, abdominal pain, shortness of breath and confusion",
		StructuredData: domain.StructuredData{Fever: true, Cough: true, ShortnessOfBreath: true},
	})

	assert.Equal(t, []string{"J18.9", "R50.9", "G43.909", "R10.9", "R06.00"}, conditionCodes(result))
	assert.Len(t, result.RecommendedQuestions, 5)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel, "overrides past the truncation point still apply")
}

func TestClinicalReasoner_DuplicateCodesNotMerged(t *testing.T) {
	r := newTestReasoner()
	r.rules = []ConditionRule{
		{Keywords: []string{"cough"}, Condition: domain.PossibleCondition{Name: "Cough A", ICD10Code: "R05.9", Likelihood: domain.LikelihoodLow}},
		{Required: []domain.Symptom{domain.SymptomCough}, Condition: domain.PossibleCondition{Name: "Cough B", ICD10Code: "R05.9", Likelihood: domain.LikelihoodLow}},
	}

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		ChiefComplaint: "dry cough",
		StructuredData: domain.StructuredData{Cough: true},
	})

	assert.Equal(t, []string{"R05.9", "R05.9"}, conditionCodes(result))
}

func TestClinicalReasoner_NoMatch(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{})

	assert.Empty(t, result.PossibleConditions)
	assert.NotNil(t, result.PossibleConditions)
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
	assert.Equal(t, []string{
		"When did the symptoms start, and have they changed since?",
		"Any known comorbidities (hypertension, diabetes, heart disease)?",
	}, result.RecommendedQuestions)
	assert.Equal(t, "Patient presenting with an unspecified complaint; no specific condition pattern identified.", result.Summary)
}

func TestClinicalReasoner_Summary(t *testing.T) {
	r := newTestReasoner()

	tests := []struct {
		name    string
		patient domain.PatientContext
		flags   []domain.RedFlagType
		want    string
	}{
		{
			name:    "age and sex",
			patient: domain.PatientContext{Sex: domain.SexFemale, Age: intPtr(45)},
			want:    "45-year-old female presenting with migraine; possible conditions include Possible migraine or primary headache.",
		},
		{
			name:    "age from year of birth",
			patient: domain.PatientContext{Sex: domain.SexUnknown, YearOfBirth: intPtr(1955)},
			want:    "70-year-old patient presenting with migraine; possible conditions include Possible migraine or primary headache.",
		},
		{
			name:    "sex only with red flag",
			patient: domain.PatientContext{Sex: domain.SexMale},
			flags:   []domain.RedFlagType{domain.RedFlagSevereHeadache},
			want:    "Male patient presenting with migraine; possible conditions include Possible migraine or primary headache, with 1 red flag(s) requiring urgent attention.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := r.Analyze(tt.patient, domain.EncounterSnapshot{ChiefComplaint: "Migraine", RedFlags: tt.flags})
			assert.Equal(t, tt.want, result.Summary)
		})
	}
}

func TestClinicalReasoner_RepeatedRedFlagCountedOnce(t *testing.T) {
	r := newTestReasoner()

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{
		RedFlags: []domain.RedFlagType{domain.RedFlagChestPain, domain.RedFlagChestPain},
	})

	msg, ok := RedFlagMessage(domain.RedFlagChestPain)
	require.True(t, ok)
	assert.Equal(t, []string{msg}, result.RedFlags)
	assert.Equal(t, domain.RiskHigh, result.RiskLevel)
}

func TestClinicalReasoner_UnknownRedFlagIgnored(t *testing.T) {
	logger, hook := test.NewNullLogger()
	r := NewClinicalReasoner(logger)

	result := r.Analyze(domain.PatientContext{}, domain.EncounterSnapshot{RedFlags: []domain.RedFlagType{"fainting"}})

	assert.Equal(t, domain.RiskLow, result.RiskLevel)
	assert.Empty(t, result.RedFlags)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestClinicalReasoner_Idempotent(t *testing.T) {
	r := newTestReasoner()
	patient := domain.PatientContext{Sex: domain.SexOther, YearOfBirth: intPtr(1970)}
	encounter := domain.EncounterSnapshot{
		ChiefComplaint: "Cough and chest pain",
		StructuredData: domain.StructuredData{
			Cough:  true,
			Pain:   &domain.Pain{Present: true},
			Vitals: &domain.Vitals{HeartRate: floatPtr(48)},
		},
		RedFlags: []domain.RedFlagType{domain.RedFlagChestPain},
	}

	first := r.Analyze(patient, encounter)
	second := r.Analyze(patient, encounter)

	assert.Equal(t, first, second)
}

func TestClinicalReasoner_Invariants(t *testing.T) {
	r := newTestReasoner()
	complaints := []string{"", "headache", "chest pain and cough", "abdominal pain with fever", "confusion, breathless"}
	bools := []bool{false, true}

	for _, complaint := range complaints {
		for _, fever := range bools {
			for _, cough := range bools {
				for _, sob := range bools {
					for _, pain := range bools {
						for _, withFlag := range bools {
							encounter := domain.EncounterSnapshot{
								ChiefComplaint: complaint,
								StructuredData: domain.StructuredData{
									Fever: fever, Cough: cough, ShortnessOfBreath: sob,
									Pain: &domain.Pain{Present: pain},
								},
							}
							if withFlag {
								encounter.RedFlags = []domain.RedFlagType{domain.RedFlagSignsOfStroke}
							}

							result := r.Analyze(domain.PatientContext{}, encounter)

							assert.LessOrEqual(t, len(result.PossibleConditions), maxPossibleConditions)
							assert.LessOrEqual(t, len(result.RecommendedQuestions), maxRecommendedQuestions)
							if withFlag {
								assert.Equal(t, domain.RiskHigh, result.RiskLevel)
							}
						}
					}
				}
			}
		}
	}
}
