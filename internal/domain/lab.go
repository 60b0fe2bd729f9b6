package domain

// LabStatus classifies a lab value against its reference range.
type LabStatus string

const (
	LabStatusLow      LabStatus = "low"
	LabStatusNormal   LabStatus = "normal"
	LabStatusHigh     LabStatus = "high"
	LabStatusCritical LabStatus = "critical"
)

// Severity grades how far a lab value deviates from its reference range.
type Severity string

const (
	SeverityNormal   Severity = "normal"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityCritical Severity = "critical"
)

// Urgency is the recommended response tier for a lab finding.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyUrgent   Urgency = "urgent"
	UrgencyEmergent Urgency = "emergent"
)

// IsValid reports whether s is a known lab status.
func (s LabStatus) IsValid() bool {
	switch s {
	case LabStatusLow, LabStatusNormal, LabStatusHigh, LabStatusCritical:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNormal, SeverityMild, SeverityModerate, SeveritySevere, SeverityCritical:
		return true
	default:
		return false
	}
}

// IsValid reports whether u is a known urgency tier.
func (u Urgency) IsValid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergent:
		return true
	default:
		return false
	}
}

// RequiresPromptAction reports whether the finding belongs in a panel's
// urgent findings.
func (u Urgency) RequiresPromptAction() bool {
	return u == UrgencyUrgent || u == UrgencyEmergent
}

// LabTest is a single lab value submitted for interpretation. Name is matched
// case-insensitively against the reference table.
type LabTest struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// Range is a closed numeric interval.
type Range struct {
	Min float64 `json:"min" mapstructure:"min"`
	Max float64 `json:"max" mapstructure:"max"`
}

// CriticalBand marks the values beyond which a result is emergent.
type CriticalBand struct {
	Low  float64 `json:"low" mapstructure:"low"`
	High float64 `json:"high" mapstructure:"high"`
}

// LabReferenceRange is the reference entry for one test.
type LabReferenceRange struct {
	Unit        string        `json:"unit" mapstructure:"unit"`
	Normal      Range         `json:"normal" mapstructure:"normal"`
	Critical    *CriticalBand `json:"critical,omitempty" mapstructure:"critical"`
	Description string        `json:"description" mapstructure:"description"`
}

// LabInterpretation is the derived interpretation of one lab value.
type LabInterpretation struct {
	Test            string    `json:"test"`
	Value           float64   `json:"value"`
	Unit            string    `json:"unit"`
	Status          LabStatus `json:"status"`
	Severity        Severity  `json:"severity"`
	Interpretation  string    `json:"interpretation"`
	PossibleCauses  []string  `json:"possible_causes"`
	Recommendations []string  `json:"recommendations"`
	Urgency         Urgency   `json:"urgency"`
}

// LabPanelResult aggregates the interpretations of a panel.
type LabPanelResult struct {
	Interpretations []LabInterpretation `json:"interpretations"`
	Summary         string              `json:"summary"`
	UrgentFindings  []LabInterpretation `json:"urgent_findings"`
}
