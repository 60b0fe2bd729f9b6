package domain

import (
	"fmt"
	"time"
)

// Pain describes the pain component of a structured encounter.
type Pain struct {
	Present  bool   `json:"present"`
	Location string `json:"location,omitempty"`
	Severity *int   `json:"severity,omitempty"` // 0-10
}

// Vitals holds the measured vital signs. Nil fields were not recorded.
type Vitals struct {
	Temperature            *float64 `json:"temperature,omitempty"` // °C
	HeartRate              *float64 `json:"heart_rate,omitempty"`  // bpm
	BloodPressureSystolic  *float64 `json:"blood_pressure_systolic,omitempty"`
	BloodPressureDiastolic *float64 `json:"blood_pressure_diastolic,omitempty"`
	OxygenSaturation       *float64 `json:"oxygen_saturation,omitempty"` // %
}

// StructuredData holds the structured fields captured for an encounter.
type StructuredData struct {
	Fever             bool    `json:"fever"`
	Cough             bool    `json:"cough"`
	ShortnessOfBreath bool    `json:"shortness_of_breath"`
	Pain              *Pain   `json:"pain,omitempty"`
	Vitals            *Vitals `json:"vitals,omitempty"`
}

// EncounterSnapshot is the immutable encounter input to one analysis call.
type EncounterSnapshot struct {
	ID             string         `json:"id,omitempty"`
	ChiefComplaint string         `json:"chief_complaint"`
	StructuredData StructuredData `json:"structured_data"`
	RedFlags       []RedFlagType  `json:"red_flags,omitempty"`
}

// PatientContext carries the demographics the reasoner uses.
type PatientContext struct {
	ID          string `json:"id,omitempty"`
	Sex         Sex    `json:"sex,omitempty"`
	YearOfBirth *int   `json:"year_of_birth,omitempty"`
	Age         *int   `json:"age,omitempty"`
}

// PossibleCondition is one entry of the differential.
type PossibleCondition struct {
	Name        string     `json:"name"`
	ICD10Code   string     `json:"icd10_code,omitempty"`
	Likelihood  Likelihood `json:"likelihood"`
	Explanation string     `json:"explanation,omitempty"`
}

// ClinicalAnalysisResult is the output of the condition reasoner. It is never
// mutated after it is returned.
type ClinicalAnalysisResult struct {
	PossibleConditions   []PossibleCondition `json:"possible_conditions"`
	RiskLevel            RiskLevel           `json:"risk_level"`
	RedFlags             []string            `json:"red_flags"`
	RecommendedQuestions []string            `json:"recommended_questions"`
	Summary              string              `json:"summary"`
	CautionText          string              `json:"caution_text"`
}

// AgeFromYearOfBirth derives an age in whole years relative to now.
func AgeFromYearOfBirth(yearOfBirth int, now time.Time) int {
	return now.Year() - yearOfBirth
}

// ResolveAge returns the patient's age, deriving it from the year of birth
// when no explicit age was supplied.
func (p PatientContext) ResolveAge(now time.Time) *int {
	if p.Age != nil {
		return p.Age
	}
	if p.YearOfBirth == nil {
		return nil
	}
	age := AgeFromYearOfBirth(*p.YearOfBirth, now)
	return &age
}

// Validate checks the patient fields against their enumerations and ranges.
func (p PatientContext) Validate(now time.Time) error {
	if p.Sex != "" && !p.Sex.IsValid() {
		return InvalidField("patient.sex", ErrInvalidSex, p.Sex)
	}
	if p.YearOfBirth != nil {
		y := *p.YearOfBirth
		if y < 1880 || y > now.Year() {
			return InvalidField("patient.year_of_birth", ErrInvalidYearOfBirth, y)
		}
	}
	if p.Age != nil && (*p.Age < 0 || *p.Age > 150) {
		return InvalidField("patient.age", ErrInvalidAge, *p.Age)
	}
	return nil
}

// Validate checks the encounter's enumerated and ranged fields. Missing
// optional fields are never an error.
func (e EncounterSnapshot) Validate() error {
	for i, flag := range e.RedFlags {
		if !flag.IsValid() {
			return InvalidField(fmt.Sprintf("encounter.red_flags[%d]", i), ErrInvalidRedFlag, flag)
		}
	}
	if p := e.StructuredData.Pain; p != nil && p.Severity != nil {
		if *p.Severity < 0 || *p.Severity > 10 {
			return InvalidField("encounter.structured_data.pain.severity", ErrInvalidPainScore, *p.Severity)
		}
	}
	return nil
}
