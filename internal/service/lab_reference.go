package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cds-reasoning-server/internal/domain"
)

// defaultReferenceRanges is keyed by lowercase test name.
var defaultReferenceRanges = map[string]domain.LabReferenceRange{
	"hemoglobin": {
		Unit:        "g/dL",
		Normal:      domain.Range{Min: 12, Max: 16},
		Critical:    &domain.CriticalBand{Low: 7, High: 20},
		Description: "Oxygen-carrying protein in red blood cells",
	},
	"hematocrit": {
		Unit:        "%",
		Normal:      domain.Range{Min: 36, Max: 48},
		Critical:    &domain.CriticalBand{Low: 20, High: 60},
		Description: "Percentage of blood volume occupied by red cells",
	},
	"wbc": {
		Unit:        "×10³/μL",
		Normal:      domain.Range{Min: 4.5, Max: 11},
		Critical:    &domain.CriticalBand{Low: 2, High: 30},
		Description: "White blood cell count - immune system cells",
	},
	"platelets": {
		Unit:        "×10³/μL",
		Normal:      domain.Range{Min: 150, Max: 400},
		Critical:    &domain.CriticalBand{Low: 20, High: 1000},
		Description: "Blood clotting cells",
	},
	"glucose": {
		Unit:        "mg/dL",
		Normal:      domain.Range{Min: 70, Max: 100},
		Critical:    &domain.CriticalBand{Low: 40, High: 400},
		Description: "Blood sugar level (fasting)",
	},
	"creatinine": {
		Unit:        "mg/dL",
		Normal:      domain.Range{Min: 0.6, Max: 1.2},
		Critical:    &domain.CriticalBand{Low: 0, High: 5},
		Description: "Kidney function marker",
	},
	"bun": {
		Unit:        "mg/dL",
		Normal:      domain.Range{Min: 7, Max: 20},
		Critical:    &domain.CriticalBand{Low: 0, High: 100},
		Description: "Blood urea nitrogen - kidney function",
	},
	"sodium": {
		Unit:        "mEq/L",
		Normal:      domain.Range{Min: 135, Max: 145},
		Critical:    &domain.CriticalBand{Low: 120, High: 160},
		Description: "Electrolyte - regulates fluid balance",
	},
	"potassium": {
		Unit:        "mEq/L",
		Normal:      domain.Range{Min: 3.5, Max: 5.0},
		Critical:    &domain.CriticalBand{Low: 2.5, High: 6.5},
		Description: "Electrolyte - critical for heart rhythm",
	},
	"alt": {
		Unit:        "U/L",
		Normal:      domain.Range{Min: 7, Max: 56},
		Critical:    &domain.CriticalBand{Low: 0, High: 1000},
		Description: "Alanine aminotransferase - liver enzyme",
	},
	"ast": {
		Unit:        "U/L",
		Normal:      domain.Range{Min: 10, Max: 40},
		Critical:    &domain.CriticalBand{Low: 0, High: 1000},
		Description: "Aspartate aminotransferase - liver enzyme",
	},
	"tsh": {
		Unit:        "μIU/mL",
		Normal:      domain.Range{Min: 0.4, Max: 4.0},
		Critical:    &domain.CriticalBand{Low: 0.01, High: 20},
		Description: "Thyroid stimulating hormone",
	},
	"inr": {
		Unit:        "ratio",
		Normal:      domain.Range{Min: 0.8, Max: 1.2},
		Critical:    &domain.CriticalBand{Low: 0, High: 5},
		Description: "International normalized ratio - blood clotting",
	},
}

// DefaultReferenceRanges returns a copy of the built-in reference table.
func DefaultReferenceRanges() map[string]domain.LabReferenceRange {
	out := make(map[string]domain.LabReferenceRange, len(defaultReferenceRanges))
	for k, v := range defaultReferenceRanges {
		out[k] = v
	}
	return out
}

// referenceFile is the on-disk layout of a reference range override file:
//
//	reference_ranges:
//	  ferritin:
//	    unit: ng/mL
//	    normal: {min: 30, max: 400}
//	    description: Iron storage protein
type referenceFile struct {
	ReferenceRanges map[string]domain.LabReferenceRange `mapstructure:"reference_ranges"`
}

// LoadReferenceRanges returns the built-in table merged with the entries of
// the YAML or JSON file at path. Entries in the file replace built-in entries
// of the same (case-insensitive) name. An empty path returns the defaults.
func LoadReferenceRanges(path string) (map[string]domain.LabReferenceRange, error) {
	ranges := DefaultReferenceRanges()
	if path == "" {
		return ranges, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read reference ranges file: %w", err)
	}

	var file referenceFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to parse reference ranges file: %w", err)
	}

	for name, ref := range file.ReferenceRanges {
		if err := validateReferenceRange(name, ref); err != nil {
			return nil, err
		}
		ranges[strings.ToLower(name)] = ref
	}

	return ranges, nil
}

func validateReferenceRange(name string, ref domain.LabReferenceRange) error {
	if ref.Normal.Min > ref.Normal.Max {
		return domain.NewValidationError("reference_ranges."+name+".normal", "min must not exceed max", ref.Normal)
	}
	if ref.Critical != nil {
		if ref.Critical.Low > ref.Normal.Min || ref.Critical.High < ref.Normal.Max {
			return domain.NewValidationError("reference_ranges."+name+".critical", "critical band must enclose the normal range", *ref.Critical)
		}
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("reference range with empty test name")
	}
	return nil
}
