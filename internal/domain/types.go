// Package domain contains core business entities and types for cardiovascular
// risk categorization, lipid target resolution and lipid-lowering therapy
// decisions.
//
// Risk categories and target bundles follow contemporary lipid guideline
// conventions (categories by 10-year event risk; targets in mmol/L).
package domain

import (
	"errors"
)

// RiskCategory represents the discrete cardiovascular risk category assigned
// to a patient. It is assigned exactly once per evaluation and never
// recomputed mid-pipeline.
type RiskCategory string

const (
	RiskLow      RiskCategory = "LOW"
	RiskModerate RiskCategory = "MODERATE"
	RiskHigh     RiskCategory = "HIGH"
	RiskVeryHigh RiskCategory = "VERY_HIGH"
)

// Numeric 10-year risk thresholds (fractions) separating the categories.
const (
	ThresholdModerate = 0.10
	ThresholdHigh     = 0.20
	ThresholdVeryHigh = 0.30
)

// StatinIntensity represents the statin intensity tier of current therapy.
type StatinIntensity string

const (
	StatinNone     StatinIntensity = "NONE"
	StatinLow      StatinIntensity = "LOW"
	StatinModerate StatinIntensity = "MODERATE"
	StatinHigh     StatinIntensity = "HIGH"
)

// AgreementLevel describes how closely two independent risk estimates match.
type AgreementLevel string

const (
	AgreementHigh     AgreementLevel = "HIGH"
	AgreementModerate AgreementLevel = "MODERATE"
	AgreementLow      AgreementLevel = "LOW"
)

// AlgorithmID identifies one of the two external risk-score algorithms.
type AlgorithmID string

const (
	AlgorithmFramingham AlgorithmID = "FRAMINGHAM"
	AlgorithmQRISK3     AlgorithmID = "QRISK3"
)

// MedicationClass represents the therapeutic class of a lipid-lowering agent.
type MedicationClass string

const (
	ClassStatin      MedicationClass = "STATIN"
	ClassEzetimibe   MedicationClass = "EZETIMIBE"
	ClassPCSK9       MedicationClass = "PCSK9"
	ClassSequestrant MedicationClass = "SEQUESTRANT"
	ClassFibrate     MedicationClass = "FIBRATE"
	ClassNiacin      MedicationClass = "NIACIN"
	ClassBempedoic   MedicationClass = "BEMPEDOIC"
	ClassIcosapent   MedicationClass = "ICOSAPENT"
	ClassOther       MedicationClass = "OTHER"
)

// Validation errors for clinical data integrity.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidRiskCategory = errors.New("invalid risk category")
	ErrInvalidIntensity    = errors.New("invalid statin intensity")
	ErrInvalidAgreement    = errors.New("invalid agreement level")
	ErrInvalidAlgorithm    = errors.New("invalid algorithm identifier")
)

// IsValid validates the risk category. Only valid categories may enter
// clinical decision-making downstream.
func (rc RiskCategory) IsValid() bool {
	switch rc {
	case RiskLow, RiskModerate, RiskHigh, RiskVeryHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation for logging and audit trails.
func (rc RiskCategory) String() string {
	return string(rc)
}

// Rank returns the ordinal severity of the category, Low=0 .. VeryHigh=3.
// Used for monotonicity checks and category bumps.
func (rc RiskCategory) Rank() int {
	switch rc {
	case RiskLow:
		return 0
	case RiskModerate:
		return 1
	case RiskHigh:
		return 2
	case RiskVeryHigh:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether the category is at least as severe as other.
func (rc RiskCategory) AtLeast(other RiskCategory) bool {
	return rc.Rank() >= other.Rank()
}

// LogFields returns structured logging fields for audit trails.
func (rc RiskCategory) LogFields() map[string]any {
	return map[string]any{
		"risk_category": string(rc),
		"rank":          rc.Rank(),
		"is_valid":      rc.IsValid(),
	}
}

// CategoryForRisk maps a numeric 10-year risk fraction to a category using
// the numeric thresholds alone. Clinical overrides are the categorizer's job.
func CategoryForRisk(risk float64) RiskCategory {
	switch {
	case risk < ThresholdModerate:
		return RiskLow
	case risk < ThresholdHigh:
		return RiskModerate
	case risk < ThresholdVeryHigh:
		return RiskHigh
	default:
		return RiskVeryHigh
	}
}

// IsValid validates the statin intensity tier.
func (si StatinIntensity) IsValid() bool {
	switch si {
	case StatinNone, StatinLow, StatinModerate, StatinHigh:
		return true
	default:
		return false
	}
}

// String returns the string representation of the intensity tier.
func (si StatinIntensity) String() string {
	return string(si)
}

// Rank returns the ordinal tier, None=0 .. High=3. The therapy classifier
// keeps the maximum tier found across the medication list.
func (si StatinIntensity) Rank() int {
	switch si {
	case StatinNone:
		return 0
	case StatinLow:
		return 1
	case StatinModerate:
		return 2
	case StatinHigh:
		return 3
	default:
		return -1
	}
}

// IsValid validates the agreement level.
func (al AgreementLevel) IsValid() bool {
	switch al {
	case AgreementHigh, AgreementModerate, AgreementLow:
		return true
	default:
		return false
	}
}

// String returns the string representation of the agreement level.
func (al AgreementLevel) String() string {
	return string(al)
}

// IsValid validates the algorithm identifier.
func (id AlgorithmID) IsValid() bool {
	switch id {
	case AlgorithmFramingham, AlgorithmQRISK3:
		return true
	default:
		return false
	}
}

// String returns the string representation of the algorithm identifier.
func (id AlgorithmID) String() string {
	return string(id)
}
