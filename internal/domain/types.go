// Package domain contains the core entities of the clinical decision support
// engine: encounter snapshots, analysis results, lab interpretations and the
// closed enumerations they are built from.
//
// Everything in this package is plain data. The rule engines that operate on it
// live in internal/service.
package domain

// RiskLevel is the overall triage risk assigned to an encounter.
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "unknown"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Likelihood is the qualitative likelihood attached to a possible condition.
type Likelihood string

const (
	LikelihoodLow    Likelihood = "low"
	LikelihoodMedium Likelihood = "medium"
	LikelihoodHigh   Likelihood = "high"
)

// Sex is the administrative sex recorded for a patient.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexOther   Sex = "other"
	SexUnknown Sex = "unknown"
)

// RedFlagType is a predefined clinical indicator that forces a high-risk
// classification. The set is closed.
type RedFlagType string

const (
	RedFlagChestPain           RedFlagType = "chest_pain"
	RedFlagSuddenWeakness      RedFlagType = "sudden_weakness"
	RedFlagSevereAbdominalPain RedFlagType = "severe_abdominal_pain"
	RedFlagAlteredMentalStatus RedFlagType = "altered_mental_status"
	RedFlagDifficultyBreathing RedFlagType = "difficulty_breathing"
	RedFlagSevereHeadache      RedFlagType = "severe_headache"
	RedFlagSignsOfStroke       RedFlagType = "signs_of_stroke"
)

// RedFlagTypes lists every red flag in display order.
var RedFlagTypes = []RedFlagType{
	RedFlagChestPain,
	RedFlagSuddenWeakness,
	RedFlagSevereAbdominalPain,
	RedFlagAlteredMentalStatus,
	RedFlagDifficultyBreathing,
	RedFlagSevereHeadache,
	RedFlagSignsOfStroke,
}

// Symptom is a key in the presence set extracted from structured encounter data.
type Symptom string

const (
	SymptomFever             Symptom = "fever"
	SymptomCough             Symptom = "cough"
	SymptomShortnessOfBreath Symptom = "shortness_of_breath"
	SymptomChestPain         Symptom = "chest_pain"
)

// IsValid reports whether r is one of the known risk levels.
func (r RiskLevel) IsValid() bool {
	switch r {
	case RiskUnknown, RiskLow, RiskModerate, RiskHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	return string(r)
}

// rank orders risk levels so they can only be raised. Unknown ranks lowest.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskModerate:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether r is as severe as other.
func (r RiskLevel) AtLeast(other RiskLevel) bool {
	return r.rank() >= other.rank()
}

// Raise returns the more severe of r and floor. A risk level never goes down.
func (r RiskLevel) Raise(floor RiskLevel) RiskLevel {
	if floor.rank() > r.rank() {
		return floor
	}
	return r
}

// LogFields returns structured logging fields for audit trails.
func (r RiskLevel) LogFields() map[string]any {
	return map[string]any{
		"risk_level":         string(r),
		"is_valid":           r.IsValid(),
		"requires_attention": r == RiskHigh,
	}
}

// IsValid reports whether l is a known likelihood.
func (l Likelihood) IsValid() bool {
	switch l {
	case LikelihoodLow, LikelihoodMedium, LikelihoodHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the likelihood.
func (l Likelihood) String() string {
	return string(l)
}

// IsValid reports whether s is a known sex value.
func (s Sex) IsValid() bool {
	switch s {
	case SexMale, SexFemale, SexOther, SexUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the sex.
func (s Sex) String() string {
	return string(s)
}

// IsValid reports whether f belongs to the closed red flag enumeration.
func (f RedFlagType) IsValid() bool {
	switch f {
	case RedFlagChestPain, RedFlagSuddenWeakness, RedFlagSevereAbdominalPain,
		RedFlagAlteredMentalStatus, RedFlagDifficultyBreathing,
		RedFlagSevereHeadache, RedFlagSignsOfStroke:
		return true
	default:
		return false
	}
}

// String returns the string representation of the red flag.
func (f RedFlagType) String() string {
	return string(f)
}

// Label returns the short label shown to clinicians when selecting red flags.
func (f RedFlagType) Label() string {
	switch f {
	case RedFlagChestPain:
		return "Chest pain"
	case RedFlagSuddenWeakness:
		return "Sudden weakness/paralysis"
	case RedFlagSevereAbdominalPain:
		return "Severe abdominal pain"
	case RedFlagAlteredMentalStatus:
		return "Confusion/altered mental status"
	case RedFlagDifficultyBreathing:
		return "Difficulty breathing"
	case RedFlagSevereHeadache:
		return "Severe/worst headache of life"
	case RedFlagSignsOfStroke:
		return "Signs of stroke (FAST)"
	default:
		return "Unknown red flag"
	}
}

// LogFields returns structured logging fields for audit trails.
func (f RedFlagType) LogFields() map[string]any {
	return map[string]any{
		"red_flag": string(f),
		"is_valid": f.IsValid(),
	}
}
