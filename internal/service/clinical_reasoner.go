package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
)

// ClinicalReasoner is the rule-based condition reasoner. It holds only
// read-only tables and is safe for concurrent use.
type ClinicalReasoner struct {
	logger *logrus.Logger
	rules  []ConditionRule
	now    func() time.Time
}

// NewClinicalReasoner creates a reasoner over the built-in rule table.
func NewClinicalReasoner(logger *logrus.Logger) *ClinicalReasoner {
	if logger == nil {
		logger = logrus.New()
	}
	return &ClinicalReasoner{
		logger: logger,
		rules:  conditionRules,
		now:    time.Now,
	}
}

// Rules returns a copy of the rule table in evaluation order.
func (r *ClinicalReasoner) Rules() []ConditionRule {
	out := make([]ConditionRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Analyze runs the reasoning pipeline over one encounter. It never fails;
// missing optional fields are treated as absent.
func (r *ClinicalReasoner) Analyze(patient domain.PatientContext, encounter domain.EncounterSnapshot) *domain.ClinicalAnalysisResult {
	result := &domain.ClinicalAnalysisResult{
		PossibleConditions:   []domain.PossibleCondition{},
		RiskLevel:            domain.RiskLow,
		RedFlags:             []string{},
		RecommendedQuestions: []string{},
		CautionText:          CautionText,
	}

	symptoms := extractSymptoms(encounter.StructuredData)
	complaint := strings.ToLower(strings.TrimSpace(encounter.ChiefComplaint))

	r.applyRedFlags(result, encounter.RedFlags)
	applyVitals(result, encounter.StructuredData.Vitals)

	matched := r.matchConditions(result, symptoms, complaint)

	result.RecommendedQuestions = buildQuestions(symptoms, complaint)
	result.Summary = buildSummary(patient.Sex, patient.ResolveAge(r.now()), complaint, result)

	r.logger.WithFields(logrus.Fields{
		"encounter_id":    encounter.ID,
		"risk_level":      result.RiskLevel.String(),
		"red_flags":       len(result.RedFlags),
		"matched_rules":   matched,
		"conditions":      len(result.PossibleConditions),
		"questions":       len(result.RecommendedQuestions),
		"symptoms_parsed": len(symptoms),
	}).Debug("Completed clinical reasoning")

	return result
}

// symptomSet is the presence set derived from structured data, in the fixed
// order fever, cough, shortness_of_breath, chest_pain.
type symptomSet []domain.Symptom

func (s symptomSet) has(symptom domain.Symptom) bool {
	for _, x := range s {
		if x == symptom {
			return true
		}
	}
	return false
}

// extractSymptoms builds the presence set. Any pain with present=true maps
// to chest_pain regardless of its location.
func extractSymptoms(data domain.StructuredData) symptomSet {
	var set symptomSet
	if data.Fever {
		set = append(set, domain.SymptomFever)
	}
	if data.Cough {
		set = append(set, domain.SymptomCough)
	}
	if data.ShortnessOfBreath {
		set = append(set, domain.SymptomShortnessOfBreath)
	}
	if data.Pain != nil && data.Pain.Present {
		set = append(set, domain.SymptomChestPain)
	}
	return set
}

func (r *ClinicalReasoner) applyRedFlags(result *domain.ClinicalAnalysisResult, flags []domain.RedFlagType) {
	seen := make(map[domain.RedFlagType]bool, len(flags))
	for _, flag := range flags {
		// red flags are a set
		if seen[flag] {
			continue
		}
		seen[flag] = true

		msg, ok := redFlagMessages[flag]
		if !ok {
			r.logger.WithFields(logrus.Fields(flag.LogFields())).Warn("Ignoring unknown red flag")
			continue
		}
		result.RedFlags = append(result.RedFlags, msg)
		result.RiskLevel = domain.RiskHigh
	}
}

// applyVitals checks each vital sign independently. Each check may only
// raise the risk level.
func applyVitals(result *domain.ClinicalAnalysisResult, v *domain.Vitals) {
	if v == nil {
		return
	}

	if v.Temperature != nil && *v.Temperature > feverThresholdC {
		result.RedFlags = append(result.RedFlags, fmt.Sprintf("High fever: %.1f°C", *v.Temperature))
		result.RiskLevel = result.RiskLevel.Raise(domain.RiskModerate)
	}

	if v.HeartRate != nil {
		hr := *v.HeartRate
		switch {
		case hr > tachycardiaThreshold:
			result.RedFlags = append(result.RedFlags, fmt.Sprintf("Tachycardia: heart rate %.0f bpm", hr))
			result.RiskLevel = result.RiskLevel.Raise(domain.RiskModerate)
		case hr < bradycardiaThreshold:
			result.RedFlags = append(result.RedFlags, fmt.Sprintf("Bradycardia: heart rate %.0f bpm", hr))
			result.RiskLevel = result.RiskLevel.Raise(domain.RiskModerate)
		}
	}

	if v.BloodPressureSystolic != nil && *v.BloodPressureSystolic > hypertensiveSystolic {
		msg := fmt.Sprintf("Severely elevated blood pressure: systolic %.0f mmHg", *v.BloodPressureSystolic)
		if v.BloodPressureDiastolic != nil {
			msg = fmt.Sprintf("Severely elevated blood pressure: %.0f/%.0f mmHg", *v.BloodPressureSystolic, *v.BloodPressureDiastolic)
		}
		result.RedFlags = append(result.RedFlags, msg)
		result.RiskLevel = result.RiskLevel.Raise(domain.RiskHigh)
	}

	if v.OxygenSaturation != nil && *v.OxygenSaturation < hypoxiaSaturationLevel {
		result.RedFlags = append(result.RedFlags, fmt.Sprintf("Low oxygen saturation: %.0f%%", *v.OxygenSaturation))
		result.RiskLevel = result.RiskLevel.Raise(domain.RiskHigh)
	}
}

// matchConditions walks the rule table in order and returns the number of
// rules that fired, including those past the truncation point.
func (r *ClinicalReasoner) matchConditions(result *domain.ClinicalAnalysisResult, symptoms symptomSet, complaint string) int {
	matched := 0
	for _, rule := range r.rules {
		if !rule.matches(symptoms, complaint) {
			continue
		}
		matched++
		if rule.RiskOverride != "" {
			result.RiskLevel = result.RiskLevel.Raise(rule.RiskOverride)
		}
		if len(result.PossibleConditions) < maxPossibleConditions {
			result.PossibleConditions = append(result.PossibleConditions, rule.Condition)
		}
	}
	return matched
}

func (rule ConditionRule) matches(symptoms symptomSet, complaint string) bool {
	if complaint != "" {
		for _, kw := range rule.Keywords {
			if strings.Contains(complaint, kw) {
				return true
			}
		}
	}

	if len(rule.Required) == 0 {
		return false
	}
	for _, s := range rule.Required {
		if !symptoms.has(s) {
			return false
		}
	}
	for _, s := range rule.Excluded {
		if symptoms.has(s) {
			return false
		}
	}
	return true
}

// buildQuestions collects up to questionsPerKey questions per key, keys in
// encounter order, and falls back to general questions when nothing applies.
func buildQuestions(symptoms symptomSet, complaint string) []string {
	keys := make([]questionKey, 0, len(symptoms)+2)
	for _, s := range symptoms {
		keys = append(keys, questionKey(s))
	}
	if strings.Contains(complaint, "pain") {
		keys = append(keys, questionKeyAbdominalPain)
	}
	if strings.Contains(complaint, "headache") {
		keys = append(keys, questionKeyHeadache)
	}

	questions := collectQuestions(keys)
	if len(questions) == 0 {
		questions = collectQuestions([]questionKey{questionKeyGeneral})
	}
	return questions
}

func collectQuestions(keys []questionKey) []string {
	questions := []string{}
	seen := make(map[questionKey]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		list, ok := questionTable[key]
		if !ok {
			continue
		}
		if len(list) > questionsPerKey {
			list = list[:questionsPerKey]
		}
		for _, q := range list {
			if len(questions) == maxRecommendedQuestions {
				return questions
			}
			questions = append(questions, q)
		}
	}
	return questions
}

func buildSummary(sex domain.Sex, age *int, complaint string, result *domain.ClinicalAnalysisResult) string {
	if complaint == "" {
		complaint = "an unspecified complaint"
	}

	var b strings.Builder
	b.WriteString(describePatient(sex, age))
	b.WriteString(" presenting with ")
	b.WriteString(complaint)

	if len(result.PossibleConditions) == 0 {
		b.WriteString("; no specific condition pattern identified")
	} else {
		names := make([]string, len(result.PossibleConditions))
		for i, c := range result.PossibleConditions {
			names[i] = c.Name
		}
		b.WriteString("; possible conditions include ")
		b.WriteString(strings.Join(names, ", "))
	}

	if n := len(result.RedFlags); n > 0 {
		fmt.Fprintf(&b, ", with %d red flag(s) requiring urgent attention", n)
	}
	b.WriteString(".")
	return b.String()
}

func describePatient(sex domain.Sex, age *int) string {
	known := sex != "" && sex != domain.SexUnknown
	switch {
	case age != nil && known:
		return fmt.Sprintf("%d-year-old %s", *age, sex)
	case age != nil:
		return fmt.Sprintf("%d-year-old patient", *age)
	case known:
		return fmt.Sprintf("%s%s patient", strings.ToUpper(string(sex[:1])), sex[1:])
	default:
		return "Patient"
	}
}
