// Package labunits converts lipid laboratory values between reporting units
// and validates them against per-field plausible ranges. Every rule in the
// decision engines consumes one canonical unit per analyte: mmol/L for
// cholesterol fractions and triglycerides, mg/dL for Lp(a), percent for HbA1c.
package labunits

import (
	"math"
)

// Conversion factors between mg/dL and mmol/L.
const (
	// CholesterolMgDLPerMmolL converts cholesterol mmol/L to mg/dL.
	CholesterolMgDLPerMmolL = 38.67
	// TriglycerideMgDLPerMmolL converts triglyceride mmol/L to mg/dL.
	TriglycerideMgDLPerMmolL = 88.57
	// LpaNmolLPerMgDL approximates Lp(a) mass-to-molar conversion.
	LpaNmolLPerMgDL = 2.15
)

// Analyte identifies a lab field handled by the normalizer.
type Analyte string

const (
	AnalyteLDL              Analyte = "ldl"
	AnalyteHDL              Analyte = "hdl"
	AnalyteTotalCholesterol Analyte = "total_cholesterol"
	AnalyteNonHDL           Analyte = "non_hdl"
	AnalyteTriglycerides    Analyte = "triglycerides"
	AnalyteApoB             Analyte = "apo_b"
	AnalyteLpa              Analyte = "lpa"
	AnalyteHbA1c            Analyte = "hba1c"
	AnalyteSystolicBP       Analyte = "systolic_bp"
)

// Unit identifies a reporting unit.
type Unit string

const (
	UnitMmolL  Unit = "mmol/L"
	UnitMgDL   Unit = "mg/dL"
	UnitGPerL  Unit = "g/L"
	UnitNmolL  Unit = "nmol/L"
	UnitPct    Unit = "%"
	UnitMmHg   Unit = "mmHg"
)

// CholesterolToMmolL converts a cholesterol value in mg/dL to mmol/L.
func CholesterolToMmolL(mgdl float64) float64 {
	return round3(mgdl / CholesterolMgDLPerMmolL)
}

// CholesterolToMgDL converts a cholesterol value in mmol/L to mg/dL.
func CholesterolToMgDL(mmoll float64) float64 {
	return round1(mmoll * CholesterolMgDLPerMmolL)
}

// TriglyceridesToMmolL converts a triglyceride value in mg/dL to mmol/L.
func TriglyceridesToMmolL(mgdl float64) float64 {
	return round3(mgdl / TriglycerideMgDLPerMmolL)
}

// TriglyceridesToMgDL converts a triglyceride value in mmol/L to mg/dL.
func TriglyceridesToMgDL(mmoll float64) float64 {
	return round1(mmoll * TriglycerideMgDLPerMmolL)
}

// LpaToNmolL converts Lp(a) mg/dL to an approximate nmol/L value. The
// conversion is informational; coverage thresholds in this engine use mg/dL.
func LpaToNmolL(mgdl float64) float64 {
	return round1(mgdl * LpaNmolLPerMgDL)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
