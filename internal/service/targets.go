package service

import (
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Lipid target bundles in canonical units (LDL and non-HDL in mmol/L,
// apoB in g/L).
var (
	targetsVeryHigh = domain.LipidTargets{
		LDLMax: 1.4, NonHDLMax: 2.2, ApoBMax: 0.65, PercentReductionGoal: 50,
	}
	targetsHigh = domain.LipidTargets{
		LDLMax: 1.8, NonHDLMax: 2.6, ApoBMax: 0.80, PercentReductionGoal: 50,
	}
	targetsModerate = domain.LipidTargets{
		LDLMax: 2.6, NonHDLMax: 3.4, ApoBMax: 1.00, PercentReductionGoal: 30,
	}
	targetsLow = domain.LipidTargets{
		LDLMax: 3.0, NonHDLMax: 3.8, ApoBMax: 1.10, PercentReductionGoal: 30,
	}
)

// LDL cutoffs used inside the Moderate and Low branches.
const (
	moderateEscalationLDL = 3.5
	lowTreatmentLDL       = 5.0
)

// TargetResolver selects the applicable lipid target bundle for a risk
// category and patient flags. It is a pure decision table evaluated in
// strict priority order:
//
//	ASCVD > FH > diabetes with additional risk factors > High/VeryHigh
//	category > Moderate category > Low category
type TargetResolver struct {
	logger *logrus.Logger
}

// NewTargetResolver creates a new lipid target resolver.
func NewTargetResolver(logger *logrus.Logger) *TargetResolver {
	return &TargetResolver{logger: logger}
}

// Resolve returns the lipid targets for the given category and profile.
func (r *TargetResolver) Resolve(category domain.RiskCategory, profile *domain.PatientProfile) domain.LipidTargets {
	targets := r.resolve(category, profile)

	r.logger.WithFields(logrus.Fields{
		"risk_category": category.String(),
		"ldl_max":       targets.LDLMax,
		"basis":         targets.Basis,
	}).Debug("Resolved lipid targets")

	return targets
}

func (r *TargetResolver) resolve(category domain.RiskCategory, profile *domain.PatientProfile) domain.LipidTargets {
	conditions := profile.ConditionSet()

	// Secondary prevention outranks everything.
	if conditions.HasASCVD() {
		if HasVeryHighRiskFeatures(profile, conditions) {
			return withBasis(targetsVeryHigh, "ASCVD with very-high-risk features")
		}
		return withBasis(targetsHigh, "ASCVD secondary prevention")
	}

	if conditions.HasFH() {
		if HasVeryHighRiskFeatures(profile, conditions) {
			return withBasis(targetsVeryHigh, "FH with very-high-risk features")
		}
		return withBasis(targetsHigh, "familial hypercholesterolemia")
	}

	if conditions.HasDiabetes() && hasAdditionalDiabetesRisk(profile, conditions) {
		return withBasis(targetsHigh, "diabetes with additional risk factors")
	}

	switch category {
	case domain.RiskVeryHigh:
		return withBasis(targetsVeryHigh, "very high calculated risk")
	case domain.RiskHigh:
		return withBasis(targetsHigh, "high calculated risk")
	case domain.RiskModerate:
		// Current LDL >= 3.5 mmol/L or elevated Lp(a) forces the stricter
		// high-risk bundle.
		if profile.LDL >= moderateEscalationLDL || profile.HasElevatedLpa() {
			return withBasis(targetsHigh, "moderate risk with escalating features")
		}
		return withBasis(targetsModerate, "moderate calculated risk")
	default:
		if profile.LDL >= lowTreatmentLDL {
			// Severe hypercholesterolemia warrants treatment regardless of
			// calculated risk.
			t := targetsLow
			t.PercentReductionGoal = 50
			return withBasis(t, "low risk with LDL >= 5.0 mmol/L")
		}
		t := targetsLow
		t.AlternativeGoal = true
		return withBasis(t, "low risk, pharmacotherapy generally not indicated")
	}
}

// HasVeryHighRiskFeatures reports the very-high-risk sub-check shared by the
// target resolver and the eligibility engine: >=2 affected vascular beds,
// recent acute coronary syndrome, or ASCVD co-occurring with diabetes, CKD,
// FH or elevated Lp(a).
func HasVeryHighRiskFeatures(profile *domain.PatientProfile, conditions domain.ConditionSet) bool {
	if profile.VascularBeds >= 2 {
		return true
	}
	if profile.HasRecentACS() {
		return true
	}
	if conditions.HasASCVD() &&
		(conditions.HasDiabetes() || conditions.HasCKD() || conditions.HasFH() || profile.HasElevatedLpa()) {
		return true
	}
	return false
}

func hasAdditionalDiabetesRisk(profile *domain.PatientProfile, conditions domain.ConditionSet) bool {
	return profile.DiabetesDurationYears >= 10 ||
		profile.DiabetesComplications ||
		profile.Smoker ||
		profile.SystolicBP >= 140 ||
		conditions.HasCKD() ||
		profile.HasElevatedLpa()
}

func withBasis(t domain.LipidTargets, basis string) domain.LipidTargets {
	t.Basis = basis
	return t
}
