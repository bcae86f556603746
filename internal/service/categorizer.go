package service

import (
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// RiskCategorizer maps a numeric base risk plus clinical flags to a discrete
// risk category. Clinical overrides are evaluated before the numeric
// thresholds; the first matching override wins and short-circuits the rest.
type RiskCategorizer struct {
	logger *logrus.Logger
}

// NewRiskCategorizer creates a new risk categorizer.
func NewRiskCategorizer(logger *logrus.Logger) *RiskCategorizer {
	return &RiskCategorizer{logger: logger}
}

// Categorize assigns the risk category for a base risk fraction in [0,1] and
// the patient's clinical flags. A missing (negative) risk value is treated
// as 0. The evaluation order is:
//
//  1. Confirmed ASCVD                              -> High
//  2. Confirmed familial hypercholesterolemia      -> VeryHigh
//  3. CKD, or diabetes >=15y or with complications -> High
//  4. Lp(a) >= 50 mg/dL within the 5-20% band      -> bump one category
//  5. Numeric thresholds
//
// Very-high-risk target refinement for ASCVD is the target resolver's
// concern; categorization stops at High for ASCVD alone.
func (c *RiskCategorizer) Categorize(profile *domain.PatientProfile, baseRisk float64) domain.RiskCategory {
	if baseRisk < 0 {
		baseRisk = 0
	}

	conditions := profile.ConditionSet()
	category := c.categorize(profile, conditions, baseRisk)

	c.logger.WithFields(logrus.Fields{
		"base_risk":     baseRisk,
		"risk_category": category.String(),
	}).Debug("Assigned risk category")

	return category
}

func (c *RiskCategorizer) categorize(profile *domain.PatientProfile, conditions domain.ConditionSet, baseRisk float64) domain.RiskCategory {
	if conditions.HasASCVD() {
		return domain.RiskHigh
	}

	if conditions.HasFH() {
		return domain.RiskVeryHigh
	}

	if conditions.HasCKD() {
		return domain.RiskHigh
	}
	if conditions.HasDiabetes() &&
		(profile.DiabetesDurationYears >= 15 || profile.DiabetesComplications) {
		return domain.RiskHigh
	}

	category := domain.CategoryForRisk(baseRisk)

	// Elevated Lp(a) bumps one category, only inside the 5-20% base-risk band.
	if profile.HasElevatedLpa() && baseRisk >= 0.05 && baseRisk < domain.ThresholdHigh {
		switch category {
		case domain.RiskLow:
			category = domain.RiskModerate
		case domain.RiskModerate:
			category = domain.RiskHigh
		}
	}

	return category
}
