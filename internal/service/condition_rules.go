package service

import (
	"github.com/cds-reasoning-server/internal/domain"
)

// CautionText is attached to every clinical analysis result.
const CautionText = "This is an experimental AI-supported analysis for research and educational purposes only.\n" +
	"It does NOT provide a medical diagnosis or treatment plan.\n" +
	"The clinician remains fully responsible for all clinical decisions."

// Vital sign thresholds
const (
	feverThresholdC        = 38.5
	tachycardiaThreshold   = 120.0
	bradycardiaThreshold   = 50.0
	hypertensiveSystolic   = 180.0
	hypoxiaSaturationLevel = 90.0
)

const (
	maxPossibleConditions   = 5
	maxRecommendedQuestions = 5
	questionsPerKey         = 2
)

// questionKey indexes the clarifying question table.
type questionKey string

const (
	questionKeyAbdominalPain questionKey = "abdominal_pain"
	questionKeyHeadache      questionKey = "headache"
	questionKeyGeneral       questionKey = "general"
)

// ConditionRule is one entry of the differential rule table. A rule matches
// when any keyword appears in the chief complaint, or when every required
// symptom is present and no excluded symptom is.
type ConditionRule struct {
	Keywords     []string
	Required     []domain.Symptom
	Excluded     []domain.Symptom
	Condition    domain.PossibleCondition
	RiskOverride domain.RiskLevel
}

// redFlagMessages maps each red flag to its advisory text.
var redFlagMessages = map[domain.RedFlagType]string{
	domain.RedFlagChestPain:           "Chest pain reported - rule out acute coronary syndrome and other cardiac causes",
	domain.RedFlagSuddenWeakness:      "Sudden weakness or paralysis - assess urgently for stroke or other neurological emergency",
	domain.RedFlagSevereAbdominalPain: "Severe abdominal pain - consider surgical causes",
	domain.RedFlagAlteredMentalStatus: "Altered mental status - urgent assessment needed",
	domain.RedFlagDifficultyBreathing: "Difficulty breathing - assess airway, breathing and oxygenation immediately",
	domain.RedFlagSevereHeadache:      "Severe or worst-ever headache - consider subarachnoid hemorrhage or other intracranial cause",
	domain.RedFlagSignsOfStroke:       "Signs of stroke (FAST) - activate the stroke pathway immediately",
}

// RedFlagMessage returns the advisory text for a red flag.
func RedFlagMessage(flag domain.RedFlagType) (string, bool) {
	msg, ok := redFlagMessages[flag]
	return msg, ok
}

// questionTable holds the clarifying questions per key. Only the first
// questionsPerKey entries of each list are ever asked.
var questionTable = map[questionKey][]string{
	questionKey(domain.SymptomFever): {
		"How high is the temperature?",
		"Any recent travel or sick contacts?",
		"Any localizing symptoms (dysuria, sore throat, etc.)?",
	},
	questionKey(domain.SymptomCough): {
		"Is there sputum production? What color?",
		"Any wheezing or stridor?",
		"History of asthma, COPD, or smoking?",
	},
	questionKey(domain.SymptomShortnessOfBreath): {
		"Does the breathlessness occur at rest or only on exertion?",
		"Any history of asthma, COPD, or heart failure?",
		"Any leg swelling or recent immobility?",
	},
	questionKey(domain.SymptomChestPain): {
		"Is the chest pain central, left-sided, or elsewhere?",
		"Does the pain radiate to the arm, jaw, or back?",
		"Is the pain brought on by exertion or present at rest?",
		"Are there associated symptoms like sweating, nausea, or palpitations?",
	},
	questionKeyAbdominalPain: {
		"Where exactly is the abdominal pain located?",
		"Is the pain constant or intermittent?",
		"Any vomiting, diarrhea, constipation, or blood in stool?",
	},
	questionKeyHeadache: {
		"Was the onset sudden (seconds to minutes) or gradual?",
		"Any visual changes, neck stiffness, or sensitivity to light?",
		"Any history of similar headaches or migraine?",
	},
	questionKeyGeneral: {
		"When did the symptoms start, and have they changed since?",
		"Any known comorbidities (hypertension, diabetes, heart disease)?",
	},
}

// conditionRules is evaluated in declaration order. Order is priority: the
// differential keeps the first maxPossibleConditions matches and identical
// codes from different rules are not merged.
var conditionRules = []ConditionRule{
	{
		Required: []domain.Symptom{domain.SymptomFever, domain.SymptomCough, domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Possible lower respiratory tract infection (e.g., pneumonia)",
			ICD10Code:   "J18.9",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Fever, cough, and shortness of breath may indicate LRTI. Clinical examination and imaging required.",
		},
	},
	{
		Keywords: []string{"chest pain", "chest tightness"},
		Required: []domain.Symptom{domain.SymptomChestPain, domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Possible acute coronary syndrome",
			ICD10Code:   "I21.9",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Chest pain with dyspnea warrants urgent cardiac workup. ECG and troponins recommended.",
		},
		RiskOverride: domain.RiskHigh,
	},
	{
		Required: []domain.Symptom{domain.SymptomFever, domain.SymptomCough},
		Excluded: []domain.Symptom{domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Possible upper respiratory tract infection",
			ICD10Code:   "J06.9",
			Likelihood:  domain.LikelihoodHigh,
			Explanation: "Fever and cough without respiratory distress suggests viral URTI.",
		},
	},
	{
		Keywords: []string{"fever", "pyrexia", "high temperature"},
		Required: []domain.Symptom{domain.SymptomFever},
		Excluded: []domain.Symptom{domain.SymptomCough, domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Undifferentiated febrile illness",
			ICD10Code:   "R50.9",
			Likelihood:  domain.LikelihoodLow,
			Explanation: "Fever without localizing symptoms. Further history and examination needed.",
		},
	},
	{
		Required: []domain.Symptom{domain.SymptomChestPain},
		Excluded: []domain.Symptom{domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Chest pain, unspecified",
			ICD10Code:   "R07.9",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Chest pain without dyspnea. Characterize the pain and obtain an ECG to exclude cardiac causes.",
		},
		RiskOverride: domain.RiskModerate,
	},
	{
		Keywords: []string{"headache", "migraine"},
		Condition: domain.PossibleCondition{
			Name:        "Possible migraine or primary headache",
			ICD10Code:   "G43.909",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Headache without documented neurological deficit. Screen for red-flag features before attributing to a primary headache.",
		},
	},
	{
		Keywords: []string{"abdominal pain", "stomach pain", "belly pain"},
		Condition: domain.PossibleCondition{
			Name:        "Acute abdominal pain - cause to be determined",
			ICD10Code:   "R10.9",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Abdominal pain requires assessment to rule out surgical causes.",
		},
		RiskOverride: domain.RiskModerate,
	},
	{
		Keywords: []string{"shortness of breath", "dyspnea", "breathless"},
		Required: []domain.Symptom{domain.SymptomShortnessOfBreath},
		Excluded: []domain.Symptom{domain.SymptomFever, domain.SymptomChestPain},
		Condition: domain.PossibleCondition{
			Name:        "Dyspnea, cause to be determined",
			ICD10Code:   "R06.00",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "Shortness of breath without fever or chest pain. Consider asthma, COPD exacerbation, heart failure and pulmonary embolism.",
		},
		RiskOverride: domain.RiskModerate,
	},
	{
		Keywords: []string{"cough", "coughing"},
		Required: []domain.Symptom{domain.SymptomCough},
		Excluded: []domain.Symptom{domain.SymptomFever, domain.SymptomShortnessOfBreath},
		Condition: domain.PossibleCondition{
			Name:        "Cough, unspecified",
			ICD10Code:   "R05.9",
			Likelihood:  domain.LikelihoodLow,
			Explanation: "Isolated cough. Duration and sputum character guide further workup.",
		},
	},
	{
		Keywords: []string{"confusion", "altered mental status", "disoriented"},
		Condition: domain.PossibleCondition{
			Name:        "Altered mental status, unspecified",
			ICD10Code:   "R41.82",
			Likelihood:  domain.LikelihoodMedium,
			Explanation: "New confusion requires urgent evaluation for metabolic, infectious, toxic and neurological causes.",
		},
		RiskOverride: domain.RiskHigh,
	},
}
