package service

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cds-reasoning-server/internal/domain"
)

// Deviation thresholds, in percent of the breached normal bound.
const (
	severeDeviationPct   = 30.0
	moderateDeviationPct = 15.0
)

// LabInterpreterService classifies lab values against a reference table
// that is fixed at construction.
type LabInterpreterService struct {
	logger *logrus.Logger
	ranges map[string]domain.LabReferenceRange
}

// NewLabInterpreter creates an interpreter over the given reference table.
// A nil table selects the built-in ranges. Keys are normalized to lowercase.
func NewLabInterpreter(logger *logrus.Logger, ranges map[string]domain.LabReferenceRange) *LabInterpreterService {
	if logger == nil {
		logger = logrus.New()
	}
	if ranges == nil {
		ranges = defaultReferenceRanges
	}
	frozen := make(map[string]domain.LabReferenceRange, len(ranges))
	for name, ref := range ranges {
		frozen[strings.ToLower(name)] = ref
	}

	logger.WithField("reference_ranges", len(frozen)).Debug("Initialized lab interpreter")

	return &LabInterpreterService{
		logger: logger,
		ranges: frozen,
	}
}

// ReferenceRanges returns a copy of the reference table.
func (s *LabInterpreterService) ReferenceRanges() map[string]domain.LabReferenceRange {
	out := make(map[string]domain.LabReferenceRange, len(s.ranges))
	for k, v := range s.ranges {
		out[k] = v
	}
	return out
}

// InterpretOne classifies a single lab value. Unknown tests get a neutral
// routine interpretation.
func (s *LabInterpreterService) InterpretOne(test domain.LabTest) domain.LabInterpretation {
	name := strings.ToLower(strings.TrimSpace(test.Name))
	interp := domain.LabInterpretation{
		Test:  test.Name,
		Value: test.Value,
		Unit:  test.Unit,
	}

	ref, ok := s.ranges[name]
	if !ok {
		interp.Status = domain.LabStatusNormal
		interp.Severity = domain.SeverityNormal
		interp.Urgency = domain.UrgencyRoutine
		applyText(&interp, unknownTestInterpretation)
		return interp
	}

	belowRange := test.Value < ref.Normal.Min
	switch {
	case belowRange:
		if ref.Critical != nil && test.Value < ref.Critical.Low {
			setCritical(&interp)
		} else {
			interp.Status = domain.LabStatusLow
			interp.Severity, interp.Urgency = gradeDeviation(deviationPct(ref.Normal.Min-test.Value, ref.Normal.Min))
		}
	case test.Value > ref.Normal.Max:
		if ref.Critical != nil && test.Value > ref.Critical.High {
			setCritical(&interp)
		} else {
			interp.Status = domain.LabStatusHigh
			interp.Severity, interp.Urgency = gradeDeviation(deviationPct(test.Value-ref.Normal.Max, ref.Normal.Max))
		}
	default:
		interp.Status = domain.LabStatusNormal
		interp.Severity = domain.SeverityNormal
		interp.Urgency = domain.UrgencyRoutine
	}

	applyText(&interp, describeFinding(name, interp.Status, belowRange))
	return interp
}

// InterpretPanel interprets every test and picks exactly one summary by
// precedence: critical, then urgent, then abnormal, then all normal.
func (s *LabInterpreterService) InterpretPanel(tests []domain.LabTest) *domain.LabPanelResult {
	result := &domain.LabPanelResult{
		Interpretations: make([]domain.LabInterpretation, 0, len(tests)),
		UrgentFindings:  []domain.LabInterpretation{},
	}

	criticalCount, abnormalCount := 0, 0
	for _, test := range tests {
		interp := s.InterpretOne(test)
		result.Interpretations = append(result.Interpretations, interp)

		if interp.Urgency.RequiresPromptAction() {
			result.UrgentFindings = append(result.UrgentFindings, interp)
		}
		if interp.Severity == domain.SeverityCritical {
			criticalCount++
		}
		if interp.Status != domain.LabStatusNormal {
			abnormalCount++
		}
	}

	switch {
	case criticalCount > 0:
		result.Summary = fmt.Sprintf("CRITICAL: %d critical finding(s) requiring immediate attention", criticalCount)
	case len(result.UrgentFindings) > 0:
		result.Summary = fmt.Sprintf("%d urgent finding(s) requiring prompt evaluation", len(result.UrgentFindings))
	case abnormalCount > 0:
		result.Summary = fmt.Sprintf("%d abnormal finding(s) - routine follow-up recommended", abnormalCount)
	default:
		result.Summary = "All values within normal range"
	}

	s.logger.WithFields(logrus.Fields{
		"tests":    len(tests),
		"critical": criticalCount,
		"urgent":   len(result.UrgentFindings),
		"abnormal": abnormalCount,
	}).Debug("Interpreted lab panel")

	return result
}

func setCritical(interp *domain.LabInterpretation) {
	interp.Status = domain.LabStatusCritical
	interp.Severity = domain.SeverityCritical
	interp.Urgency = domain.UrgencyEmergent
}

// deviationPct is the distance past a bound as a percentage of that bound.
// A zero bound counts as a full deviation.
func deviationPct(distance, bound float64) float64 {
	if bound == 0 {
		return 100
	}
	return distance / bound * 100
}

func gradeDeviation(pct float64) (domain.Severity, domain.Urgency) {
	switch {
	case pct > severeDeviationPct:
		return domain.SeveritySevere, domain.UrgencyUrgent
	case pct > moderateDeviationPct:
		return domain.SeverityModerate, domain.UrgencyUrgent
	default:
		return domain.SeverityMild, domain.UrgencyRoutine
	}
}

func applyText(interp *domain.LabInterpretation, text interpretationText) {
	interp.Interpretation = text.Description
	interp.PossibleCauses = append([]string{}, text.Causes...)
	interp.Recommendations = append([]string{}, text.Recommendations...)
}
