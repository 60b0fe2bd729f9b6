package service

import (
	"fmt"
	"strings"

	"github.com/cds-reasoning-server/internal/domain"
)

// interpretationText is the descriptive block attached to a lab finding.
type interpretationText struct {
	Description     string
	Causes          []string
	Recommendations []string
}

// testInterpretations holds the per-test blocks. The critical entry has a
// variant for each side of the range.
type testInterpretations struct {
	Low          interpretationText
	High         interpretationText
	CriticalLow  interpretationText
	CriticalHigh interpretationText
}

var normalInterpretation = interpretationText{
	Description:     "Value within normal range",
	Causes:          []string{},
	Recommendations: []string{"Continue routine monitoring"},
}

var unknownTestInterpretation = interpretationText{
	Description:     "Reference range not available for this test",
	Causes:          []string{},
	Recommendations: []string{"Consult with healthcare provider for interpretation"},
}

// creatinineCritical is used for both sides of the creatinine range.
var creatinineCritical = interpretationText{
	Description:     "CRITICAL: Severe renal impairment",
	Causes:          []string{"Acute kidney injury", "End-stage renal disease", "Severe dehydration", "Urinary obstruction"},
	Recommendations: []string{"URGENT: Nephrology consult", "Consider dialysis", "Check for obstruction", "IV fluids if volume depleted"},
}

var labInterpretations = map[string]testInterpretations{
	"hemoglobin": {
		Low: interpretationText{
			Description:     "Anemia detected - reduced oxygen-carrying capacity",
			Causes:          []string{"Iron deficiency", "Vitamin B12 deficiency", "Chronic disease", "Blood loss", "Hemolysis"},
			Recommendations: []string{"Check iron studies", "Evaluate for bleeding source", "Consider B12/folate levels", "Assess for chronic diseases"},
		},
		High: interpretationText{
			Description:     "Elevated hemoglobin - possible polycythemia",
			Causes:          []string{"Dehydration", "Chronic lung disease", "Smoking", "Polycythemia vera", "High altitude"},
			Recommendations: []string{"Check hydration status", "Evaluate oxygen levels", "Consider hematology consult if persistently elevated"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe anemia - transfusion may be needed",
			Causes:          []string{"Acute blood loss", "Severe hemolysis", "Bone marrow failure"},
			Recommendations: []string{"URGENT: Consider blood transfusion", "Hospitalize", "Find bleeding source"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Severe polycythemia",
			Causes:          []string{"Polycythemia vera", "Severe dehydration"},
			Recommendations: []string{"URGENT: Phlebotomy may be needed", "Hematology consult"},
		},
	},
	"wbc": {
		Low: interpretationText{
			Description:     "Leukopenia - reduced white blood cell count",
			Causes:          []string{"Viral infection", "Medication side effect", "Bone marrow disorders", "Autoimmune disease"},
			Recommendations: []string{"Review medications", "Check for infection", "Consider immune workup", "Avoid sick contacts if severe"},
		},
		High: interpretationText{
			Description:     "Leukocytosis - elevated white blood cell count",
			Causes:          []string{"Infection", "Inflammation", "Stress", "Medications (steroids)", "Leukemia"},
			Recommendations: []string{"Evaluate for infection", "Check differential count", "Consider inflammatory markers", "If very high, rule out leukemia"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe leukopenia - high infection risk",
			Causes:          []string{"Chemotherapy", "Severe infection", "Bone marrow failure"},
			Recommendations: []string{"URGENT: Neutropenic precautions", "Consider G-CSF", "Hematology consult"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Severe leukocytosis",
			Causes:          []string{"Leukemia", "Severe infection", "Leukemoid reaction"},
			Recommendations: []string{"URGENT: Rule out leukemia", "Immediate hematology consult"},
		},
	},
	"platelets": {
		Low: interpretationText{
			Description:     "Thrombocytopenia - increased bleeding risk",
			Causes:          []string{"Viral infection", "Medications (heparin, antibiotics)", "Immune thrombocytopenia", "Liver disease", "Bone marrow disorders"},
			Recommendations: []string{"Repeat to exclude clumping artifact", "Review medications", "Check peripheral smear", "Assess for bleeding"},
		},
		High: interpretationText{
			Description:     "Thrombocytosis - increased clotting risk",
			Causes:          []string{"Reactive (infection, inflammation)", "Iron deficiency", "Post-splenectomy", "Myeloproliferative disorder"},
			Recommendations: []string{"Check inflammatory markers", "Check iron studies", "Repeat count", "Consider hematology consult if persistent"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe thrombocytopenia - spontaneous bleeding risk",
			Causes:          []string{"Immune thrombocytopenia", "DIC", "Bone marrow failure", "TTP/HUS"},
			Recommendations: []string{"URGENT: Bleeding precautions", "Consider platelet transfusion", "Immediate hematology consult"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Extreme thrombocytosis - thrombosis risk",
			Causes:          []string{"Essential thrombocythemia", "Myeloproliferative disorder"},
			Recommendations: []string{"URGENT: Hematology consult", "Assess thrombotic risk"},
		},
	},
	"glucose": {
		Low: interpretationText{
			Description:     "Hypoglycemia - low blood sugar",
			Causes:          []string{"Excessive insulin/medications", "Missed meal", "Excess exercise", "Insulinoma (rare)"},
			Recommendations: []string{"Immediate glucose administration", "Adjust diabetes medications", "Check insulin dosing", "Frequent monitoring"},
		},
		High: interpretationText{
			Description:     "Hyperglycemia - elevated blood sugar",
			Causes:          []string{"Diabetes mellitus", "Stress", "Medications (steroids)", "Infection", "Pancreatitis"},
			Recommendations: []string{"Check HbA1c", "Diabetes screening", "Dietary modifications", "Consider medications if persistent"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe hypoglycemia",
			Causes:          []string{"Insulin overdose", "Severe illness", "Adrenal insufficiency"},
			Recommendations: []string{"URGENT: IV dextrose", "Continuous monitoring", "Find cause"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Severe hyperglycemia - DKA/HHS risk",
			Causes:          []string{"Uncontrolled diabetes", "DKA", "HHS"},
			Recommendations: []string{"URGENT: Check for DKA/HHS", "IV fluids", "Insulin drip", "Hospitalize"},
		},
	},
	"sodium": {
		Low: interpretationText{
			Description:     "Hyponatremia - confusion, seizures possible",
			Causes:          []string{"SIADH", "Diuretics", "Heart failure", "Cirrhosis", "Excess water intake"},
			Recommendations: []string{"Assess volume status", "Check serum and urine osmolality", "Review medications", "Correct slowly"},
		},
		High: interpretationText{
			Description:     "Hypernatremia - dehydration, altered mental status",
			Causes:          []string{"Dehydration", "Diabetes insipidus", "Excess sodium intake"},
			Recommendations: []string{"Assess fluid status", "Free water replacement", "Check urine osmolality"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe hyponatremia - seizure risk",
			Causes:          []string{"SIADH", "Psychogenic polydipsia", "Severe diuretic use"},
			Recommendations: []string{"URGENT: Hospitalize", "Controlled correction to avoid osmotic demyelination", "Seizure precautions"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Severe hypernatremia - neurological damage risk",
			Causes:          []string{"Severe dehydration", "Diabetes insipidus"},
			Recommendations: []string{"URGENT: Hospitalize", "Gradual free water replacement", "Frequent sodium checks"},
		},
	},
	"potassium": {
		Low: interpretationText{
			Description:     "Hypokalemia - low potassium",
			Causes:          []string{"Diuretics", "Vomiting/diarrhea", "Alkalosis", "Hyperaldosteronism"},
			Recommendations: []string{"Potassium supplementation", "Check magnesium", "ECG if severe", "Adjust diuretics"},
		},
		High: interpretationText{
			Description:     "Hyperkalemia - high potassium",
			Causes:          []string{"Kidney disease", "ACE inhibitors/ARBs", "Potassium supplements", "Hemolysis (spurious)"},
			Recommendations: []string{"Repeat to confirm", "ECG", "Stop potassium sources", "Consider kayexalate/insulin+glucose if high"},
		},
		CriticalLow: interpretationText{
			Description:     "CRITICAL: Severe hypokalemia - arrhythmia risk",
			Causes:          []string{"Severe GI losses", "Diuretic abuse", "Renal tubular acidosis"},
			Recommendations: []string{"URGENT: IV potassium", "Cardiac monitor", "Frequent recheck"},
		},
		CriticalHigh: interpretationText{
			Description:     "CRITICAL: Severe hyperkalemia - life-threatening",
			Causes:          []string{"Acute kidney injury", "Medication accumulation", "Tumor lysis"},
			Recommendations: []string{"URGENT: Calcium gluconate", "Insulin+glucose", "Dialysis may be needed", "ECG"},
		},
	},
	"creatinine": {
		Low: interpretationText{
			Description:     "Low creatinine - usually benign",
			Causes:          []string{"Low muscle mass", "Malnutrition", "Pregnancy"},
			Recommendations: []string{"Generally no action needed", "Assess nutritional status if very low"},
		},
		High: interpretationText{
			Description:     "Elevated creatinine - impaired kidney function",
			Causes:          []string{"Acute kidney injury", "Chronic kidney disease", "Dehydration", "Medications", "Rhabdomyolysis"},
			Recommendations: []string{"Calculate eGFR", "Check previous values", "Renal ultrasound", "Review nephrotoxic medications", "Urine studies"},
		},
		CriticalLow:  creatinineCritical,
		CriticalHigh: creatinineCritical,
	},
}

// describeFinding picks the text block for a classified value. belowRange
// selects the low-side critical text.
func describeFinding(testName string, status domain.LabStatus, belowRange bool) interpretationText {
	block, ok := labInterpretations[testName]
	if !ok {
		return interpretationText{
			Description:     fmt.Sprintf("%s value detected", strings.ToUpper(string(status))),
			Causes:          []string{"Multiple possible causes"},
			Recommendations: []string{"Consult healthcare provider for interpretation"},
		}
	}

	switch status {
	case domain.LabStatusNormal:
		return normalInterpretation
	case domain.LabStatusLow:
		return block.Low
	case domain.LabStatusHigh:
		return block.High
	case domain.LabStatusCritical:
		if belowRange {
			return block.CriticalLow
		}
		return block.CriticalHigh
	default:
		return normalInterpretation
	}
}
