package labunits

import (
	"fmt"
)

// ValidationResult is the outcome of validating and normalizing one raw
// field value.
type ValidationResult struct {
	IsValid         bool    `json:"is_valid"`
	NormalizedValue float64 `json:"normalized_value"`
	ConvertedValue  float64 `json:"converted_value,omitempty"` // value in the non-canonical unit
	Warning         string  `json:"warning,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// fieldRange holds the plausible range for an analyte in its canonical unit,
// and the ceiling above which a unitless value is assumed to be mg/dL.
type fieldRange struct {
	min, max     float64
	mgdlCutoff   float64 // 0 when unit detection does not apply
	canonical    Unit
}

var fieldRanges = map[Analyte]fieldRange{
	AnalyteLDL:              {min: 0.3, max: 15, mgdlCutoff: 20, canonical: UnitMmolL},
	AnalyteHDL:              {min: 0.3, max: 5, mgdlCutoff: 12, canonical: UnitMmolL},
	AnalyteTotalCholesterol: {min: 1.0, max: 20, mgdlCutoff: 25, canonical: UnitMmolL},
	AnalyteNonHDL:           {min: 0.3, max: 18, mgdlCutoff: 22, canonical: UnitMmolL},
	AnalyteTriglycerides:    {min: 0.1, max: 30, mgdlCutoff: 40, canonical: UnitMmolL},
	AnalyteApoB:             {min: 0.1, max: 4, mgdlCutoff: 10, canonical: UnitGPerL},
	AnalyteLpa:              {min: 0, max: 500, canonical: UnitMgDL},
	AnalyteHbA1c:            {min: 3, max: 20, canonical: UnitPct},
	AnalyteSystolicBP:       {min: 60, max: 260, canonical: UnitMmHg},
}

// Validator normalizes raw lab values into canonical units and enforces
// per-field plausible ranges before the decision engines run.
type Validator struct{}

// NewValidator creates a new lab value validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate normalizes a raw value reported in the given unit. An empty unit
// triggers unit detection: values above the analyte's mg/dL cutoff are
// treated as mg/dL and converted, with a warning.
func (v *Validator) Validate(raw float64, analyte Analyte, unit Unit) ValidationResult {
	fr, ok := fieldRanges[analyte]
	if !ok {
		return ValidationResult{
			IsValid: false,
			Error:   fmt.Sprintf("unknown analyte %q", analyte),
		}
	}

	value := raw
	warning := ""

	switch {
	case unit == "" || unit == fr.canonical:
		if unit == "" && fr.mgdlCutoff > 0 && raw > fr.mgdlCutoff {
			value = toCanonical(raw, analyte)
			warning = fmt.Sprintf("value %g assumed to be mg/dL and converted to %s", raw, fr.canonical)
		}
	case unit == UnitMgDL && fr.canonical == UnitMmolL:
		value = toCanonical(raw, analyte)
	case unit == UnitMgDL && fr.canonical == UnitGPerL:
		// apoB mg/dL -> g/L
		value = round3(raw / 100)
	case unit == UnitNmolL && analyte == AnalyteLpa:
		value = round1(raw / LpaNmolLPerMgDL)
	default:
		return ValidationResult{
			IsValid: false,
			Error:   fmt.Sprintf("unsupported unit %q for analyte %q", unit, analyte),
		}
	}

	if value < fr.min || value > fr.max {
		return ValidationResult{
			IsValid:         false,
			NormalizedValue: value,
			Error: fmt.Sprintf("%s value %g %s outside plausible range [%g, %g]",
				analyte, value, fr.canonical, fr.min, fr.max),
		}
	}

	res := ValidationResult{
		IsValid:         true,
		NormalizedValue: value,
		Warning:         warning,
	}
	if fr.canonical == UnitMmolL {
		res.ConvertedValue = fromCanonical(value, analyte)
	}
	return res
}

func toCanonical(mgdl float64, analyte Analyte) float64 {
	if analyte == AnalyteTriglycerides {
		return TriglyceridesToMmolL(mgdl)
	}
	return CholesterolToMmolL(mgdl)
}

func fromCanonical(mmoll float64, analyte Analyte) float64 {
	if analyte == AnalyteTriglycerides {
		return TriglyceridesToMgDL(mmoll)
	}
	return CholesterolToMgDL(mmoll)
}
