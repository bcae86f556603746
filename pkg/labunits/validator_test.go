package labunits

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator_CanonicalUnitPassthrough(t *testing.T) {
	v := NewValidator()

	res := v.Validate(3.4, AnalyteLDL, UnitMmolL)
	assert.True(t, res.IsValid)
	assert.Equal(t, 3.4, res.NormalizedValue)
	assert.Empty(t, res.Warning)
}

func TestValidator_ExplicitConversion(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		raw     float64
		analyte Analyte
		unit    Unit
		want    float64
	}{
		{"LDL mg/dL", 130, AnalyteLDL, UnitMgDL, 3.362},
		{"HDL mg/dL", 50, AnalyteHDL, UnitMgDL, 1.293},
		{"Total cholesterol mg/dL", 240, AnalyteTotalCholesterol, UnitMgDL, 6.206},
		{"Triglycerides mg/dL", 150, AnalyteTriglycerides, UnitMgDL, 1.694},
		{"ApoB mg/dL to g/L", 110, AnalyteApoB, UnitMgDL, 1.1},
		{"Lp(a) nmol/L to mg/dL", 107.5, AnalyteLpa, UnitNmolL, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.raw, tt.analyte, tt.unit)
			assert.True(t, res.IsValid, res.Error)
			assert.InDelta(t, tt.want, res.NormalizedValue, 0.005)
		})
	}
}

func TestValidator_UnitDetection(t *testing.T) {
	v := NewValidator()

	// 130 exceeds the LDL mg/dL cutoff: assumed mg/dL, converted, warned.
	res := v.Validate(130, AnalyteLDL, "")
	assert.True(t, res.IsValid)
	assert.InDelta(t, 3.362, res.NormalizedValue, 0.005)
	assert.NotEmpty(t, res.Warning)

	// 3.4 is plausible mmol/L: taken as-is, no warning.
	res = v.Validate(3.4, AnalyteLDL, "")
	assert.True(t, res.IsValid)
	assert.Equal(t, 3.4, res.NormalizedValue)
	assert.Empty(t, res.Warning)
}

func TestValidator_RangeRejection(t *testing.T) {
	v := NewValidator()

	tests := []struct {
		name    string
		raw     float64
		analyte Analyte
		unit    Unit
	}{
		{"LDL too low", 0.1, AnalyteLDL, UnitMmolL},
		{"LDL too high", 16, AnalyteLDL, UnitMmolL},
		{"Negative Lp(a)", -5, AnalyteLpa, UnitMgDL},
		{"HbA1c implausible", 25, AnalyteHbA1c, UnitPct},
		{"Systolic BP implausible", 40, AnalyteSystolicBP, UnitMmHg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.Validate(tt.raw, tt.analyte, tt.unit)
			assert.False(t, res.IsValid)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestValidator_UnknownAnalyteAndUnit(t *testing.T) {
	v := NewValidator()

	res := v.Validate(1.0, Analyte("creatinine"), UnitMmolL)
	assert.False(t, res.IsValid)

	res = v.Validate(1.0, AnalyteLDL, Unit("mEq/L"))
	assert.False(t, res.IsValid)
}

func TestConversion_RoundTrip(t *testing.T) {
	// A full mg/dL -> mmol/L -> mg/dL round trip stays within 0.5%.
	for _, mgdl := range []float64{40, 70, 100, 130, 160, 190, 250, 400} {
		back := CholesterolToMgDL(CholesterolToMmolL(mgdl))
		relErr := math.Abs(back-mgdl) / mgdl
		assert.Less(t, relErr, 0.005, "cholesterol round trip at %g mg/dL", mgdl)
	}

	for _, mgdl := range []float64{50, 100, 150, 300, 500, 1000} {
		back := TriglyceridesToMgDL(TriglyceridesToMmolL(mgdl))
		relErr := math.Abs(back-mgdl) / mgdl
		assert.Less(t, relErr, 0.005, "triglyceride round trip at %g mg/dL", mgdl)
	}
}

func TestLpaToNmolL(t *testing.T) {
	assert.InDelta(t, 107.5, LpaToNmolL(50), 0.01)
}
