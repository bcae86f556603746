package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Percent-above-target below which low/moderate-risk patients get a
// lifestyle trial before pharmacotherapy.
const lifestyleTrialMargin = 20.0

// IntensificationEngine decides the next recommended escalation step from
// the current therapy state and whether lipid targets are met. The decision
// table is keyed on (statin intensity, ezetimibe, PCSK9) and evaluated as
// ordered guard clauses so each branch stays auditable.
type IntensificationEngine struct {
	logger      *logrus.Logger
	eligibility *EligibilityEngine
}

// NewIntensificationEngine creates a new treatment intensification engine.
func NewIntensificationEngine(logger *logrus.Logger, eligibility *EligibilityEngine) *IntensificationEngine {
	return &IntensificationEngine{logger: logger, eligibility: eligibility}
}

// NextStep returns the escalation recommendation. therapy may be nil or
// empty when the patient is treatment-naive; that delegates to the initial
// recommendation path driven by the risk category and how far LDL exceeds
// target.
func (e *IntensificationEngine) NextStep(
	profile *domain.PatientProfile,
	therapy *domain.TherapyState,
	category domain.RiskCategory,
	targets domain.LipidTargets,
	targetMet bool,
) *domain.TreatmentRecommendation {
	rec := e.nextStep(profile, therapy, category, targets, targetMet)

	e.logger.WithFields(logrus.Fields{
		"action":        string(rec.Action),
		"risk_category": category.String(),
		"target_met":    targetMet,
	}).Info("Intensification recommendation")

	return rec
}

func (e *IntensificationEngine) nextStep(
	profile *domain.PatientProfile,
	therapy *domain.TherapyState,
	category domain.RiskCategory,
	targets domain.LipidTargets,
	targetMet bool,
) *domain.TreatmentRecommendation {
	if therapy == nil || !therapy.OnAnyTherapy() {
		return e.initialRecommendation(profile, category, targets)
	}

	if targetMet {
		return &domain.TreatmentRecommendation{
			Action:    domain.ActionContinueCurrent,
			Rationale: "lipid targets met on current therapy",
		}
	}

	// PCSK9 on board: nothing further to add, work on adherence.
	if therapy.HasPCSK9 {
		return &domain.TreatmentRecommendation{
			Action:    domain.ActionReinforceAdherence,
			Rationale: "already on PCSK9-class therapy; optimize adherence before further changes",
		}
	}

	switch therapy.StatinIntensity {
	case domain.StatinLow:
		return &domain.TreatmentRecommendation{
			Action:    domain.ActionIncreaseStatin,
			Rationale: "low-intensity statin leaves headroom for intensification",
		}
	case domain.StatinModerate:
		if !therapy.HasEzetimibe {
			return &domain.TreatmentRecommendation{
				Action:    domain.ActionAddEzetimibe,
				Rationale: "moderate-intensity statin without ezetimibe",
			}
		}
		return &domain.TreatmentRecommendation{
			Action:    domain.ActionIncreaseToHigh,
			Rationale: "moderate-intensity statin plus ezetimibe; escalate statin to high intensity",
		}
	case domain.StatinHigh:
		if !therapy.HasEzetimibe {
			return &domain.TreatmentRecommendation{
				Action:    domain.ActionAddEzetimibe,
				Rationale: "high-intensity statin without ezetimibe",
			}
		}
		return e.considerPCSK9(profile, therapy)
	default: // no statin recognized
		return &domain.TreatmentRecommendation{
			Action:          domain.ActionStartStatin,
			StatinIntensity: statinIntensityForCategory(category),
			Rationale:       "no statin in current regimen",
		}
	}
}

// considerPCSK9 handles the high-intensity + ezetimibe + no-PCSK9 branch:
// the coverage eligibility engine decides between recommending PCSK9
// addition and maximizing current therapy.
func (e *IntensificationEngine) considerPCSK9(profile *domain.PatientProfile, therapy *domain.TherapyState) *domain.TreatmentRecommendation {
	assessment := e.eligibility.Assess(profile, therapy)

	if assessment.Eligible {
		return &domain.TreatmentRecommendation{
			Action:      domain.ActionConsiderPCSK9,
			Rationale:   "maximal oral therapy without target attainment; coverage criteria met",
			Eligibility: assessment,
		}
	}

	return &domain.TreatmentRecommendation{
		Action:      domain.ActionMaximizeTherapy,
		Rationale:   "maximal oral therapy without target attainment; coverage criteria not met",
		Details:     assessment.Recommendations,
		Eligibility: assessment,
	}
}

// initialRecommendation is the treatment-naive path. Low/moderate-risk
// patients within 20% of target get a lifestyle trial first; everyone else
// starts a statin at the intensity appropriate to the risk category.
func (e *IntensificationEngine) initialRecommendation(
	profile *domain.PatientProfile,
	category domain.RiskCategory,
	targets domain.LipidTargets,
) *domain.TreatmentRecommendation {
	if targets.AlternativeGoal {
		return &domain.TreatmentRecommendation{
			Action:    domain.ActionLifestyleTrial,
			Rationale: "low risk; pharmacotherapy generally not indicated",
		}
	}

	pctAbove := percentAboveTarget(profile.LDL, targets.LDLMax)
	lowOrModerate := category == domain.RiskLow || category == domain.RiskModerate

	if lowOrModerate && pctAbove < lifestyleTrialMargin {
		return &domain.TreatmentRecommendation{
			Action: domain.ActionLifestyleTrial,
			Rationale: fmt.Sprintf("LDL %.0f%% above target in %s risk; trial of lifestyle measures first",
				pctAbove, category.String()),
		}
	}

	return &domain.TreatmentRecommendation{
		Action:          domain.ActionStartStatin,
		StatinIntensity: statinIntensityForCategory(category),
		Rationale:       "treatment-naive with LDL above target",
	}
}

// percentAboveTarget returns how far LDL exceeds the target, in percent of
// the target. Zero when at or below target or when the target is unset.
func percentAboveTarget(ldl, target float64) float64 {
	if target <= 0 || ldl <= target {
		return 0
	}
	return (ldl - target) / target * 100
}

func statinIntensityForCategory(category domain.RiskCategory) domain.StatinIntensity {
	if category == domain.RiskHigh || category == domain.RiskVeryHigh {
		return domain.StatinHigh
	}
	return domain.StatinModerate
}
