package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Eligibility thresholds.
const (
	minEligibilityAge       = 18
	uncontrolledHbA1c       = 8.5
	minEligibilityLDL       = 1.8 // mmol/L
	minTherapyMonths        = 3
	minDLCNScore            = 6
	fhVeryHighLDLMale       = 5.0 // mmol/L
	fhVeryHighLDLFemale     = 4.9 // mmol/L
	minStatinIntolerances   = 2
	extremeRiskTargetLDL    = 1.4 // mmol/L annotation
)

// Criterion strings reported in assessments. Kept stable: callers and tests
// match on them.
const (
	CriterionConfirmedFH       = "confirmed familial hypercholesterolemia"
	CriterionConfirmedASCVD    = "confirmed ASCVD"
	CriterionLDLAboveThreshold = "current LDL >= 1.8 mmol/L"
	CriterionHighIntensity3Mo  = "high-intensity statin for >= 3 months"
	CriterionStatinIntolerance = "documented intolerance to >= 2 statins"
	CriterionEzetimibe3Mo      = "ezetimibe for >= 3 months"

	ExclusionAge            = "age under 18"
	ExclusionPregnancy      = "pregnancy or breastfeeding"
	ExclusionSecondaryCause = "secondary dyslipidemia cause present"

	// Emitted on every ineligible assessment, exclusion or not.
	AdviceAlternatives = "alternatives while not covered: maximize statin dose, add bempedoic acid, reinforce lifestyle measures"
)

// EligibilityEngine evaluates coverage eligibility for PCSK9-inhibitor-class
// therapy. Exclusions are checked first and exit early; the base diagnostic
// requirement and the three additional requirements are then tracked
// individually, with a statin-intolerance alternate qualification path.
//
// The engine implements a documented rule interpretation of coverage
// criteria; it does not predict any payer's actual adjudication.
type EligibilityEngine struct {
	logger *logrus.Logger
}

// NewEligibilityEngine creates a new coverage eligibility engine.
func NewEligibilityEngine(logger *logrus.Logger) *EligibilityEngine {
	return &EligibilityEngine{logger: logger}
}

// Assess evaluates eligibility for the given profile and therapy state.
// Any unexpected fault inside the evaluation is absorbed and converted into
// an ineligible result flagged for manual review; it never propagates.
func (e *EligibilityEngine) Assess(profile *domain.PatientProfile, therapy *domain.TherapyState) (assessment *domain.EligibilityAssessment) {
	defer func() {
		if r := recover(); r != nil {
			err := &domain.EligibilityEvaluationError{Cause: fmt.Errorf("%v", r)}
			e.logger.WithError(err).Error("Eligibility evaluation fault, requiring manual review")
			assessment = &domain.EligibilityAssessment{
				Eligible:             false,
				UnmetCriteria:        []string{"evaluation fault"},
				Recommendations:      []string{"manual review required"},
				ManualReviewRequired: true,
			}
		}
	}()

	assessment = e.assess(profile, therapy)

	e.logger.WithFields(logrus.Fields{
		"eligible":   assessment.Eligible,
		"met":        len(assessment.MetCriteria),
		"unmet":      len(assessment.UnmetCriteria),
		"exclusions": len(assessment.Exclusions),
	}).Info("Completed coverage eligibility assessment")

	return assessment
}

func (e *EligibilityEngine) assess(profile *domain.PatientProfile, therapy *domain.TherapyState) *domain.EligibilityAssessment {
	a := &domain.EligibilityAssessment{
		MetCriteria:   []string{},
		UnmetCriteria: []string{},
		Exclusions:    []string{},
	}
	conditions := profile.ConditionSet()

	// Step 1: exclusions. Any hit makes the patient ineligible immediately;
	// no further criteria are evaluated.
	if excl := e.exclusions(profile, conditions); len(excl) > 0 {
		a.Exclusions = excl
		a.Eligible = false
		a.Recommendations = append(a.Recommendations,
			"address exclusion criteria before re-assessment",
			AdviceAlternatives)
		return a
	}

	// Step 2: base diagnostic requirement, FH or ASCVD.
	hasFH := e.confirmedFH(profile, conditions)
	hasASCVD := conditions.HasASCVD()
	if hasFH {
		a.MetCriteria = append(a.MetCriteria, CriterionConfirmedFH)
	}
	if hasASCVD {
		a.MetCriteria = append(a.MetCriteria, CriterionConfirmedASCVD)
	}
	baseMet := hasFH || hasASCVD
	if !baseMet {
		a.UnmetCriteria = append(a.UnmetCriteria, "confirmed FH or ASCVD diagnosis")
	}

	// Step 3: additional requirements, each tracked independently.
	ldlMet := profile.LDL >= minEligibilityLDL
	track(a, ldlMet, CriterionLDLAboveThreshold)

	highIntensityMet := therapy != nil &&
		therapy.StatinIntensity == domain.StatinHigh &&
		profile.MonthsOnStatin >= minTherapyMonths
	intoleranceMet := profile.StatinIntoleranceCount >= minStatinIntolerances
	track(a, highIntensityMet, CriterionHighIntensity3Mo)
	if intoleranceMet {
		a.MetCriteria = append(a.MetCriteria, CriterionStatinIntolerance)
	}

	ezetimibeMet := therapy != nil && therapy.HasEzetimibe &&
		profile.MonthsOnEzetimibe >= minTherapyMonths
	track(a, ezetimibeMet, CriterionEzetimibe3Mo)

	// Step 4: extreme-high-risk override tightens the target annotation but
	// does not by itself grant eligibility.
	if HasVeryHighRiskFeatures(profile, conditions) {
		a.TargetLDLOverride = extremeRiskTargetLDL
		a.SpecialConsiderations = append(a.SpecialConsiderations,
			fmt.Sprintf("extreme high risk: target LDL < %.1f mmol/L", extremeRiskTargetLDL))
	}

	// Step 5: final eligibility.
	a.Eligible = baseMet &&
		((ldlMet && highIntensityMet && ezetimibeMet) ||
			(intoleranceMet && ldlMet && ezetimibeMet))

	if !a.Eligible {
		a.Recommendations = e.pathToEligibility(baseMet, ldlMet, highIntensityMet, intoleranceMet, ezetimibeMet)
	}

	return a
}

// exclusions returns every exclusion criterion that fires, in evaluation
// order.
func (e *EligibilityEngine) exclusions(profile *domain.PatientProfile, conditions domain.ConditionSet) []string {
	var out []string

	if profile.Age < minEligibilityAge {
		out = append(out, ExclusionAge)
	}
	if profile.Pregnant || profile.Breastfeeding || conditions.HasPregnancyOrLactation() {
		out = append(out, ExclusionPregnancy)
	}

	secondary := profile.UntreatedHypothyroidism ||
		profile.NephroticSyndrome ||
		profile.ObstructiveLiverDisease ||
		profile.LipidRaisingMedication ||
		conditions.HasSecondaryDyslipidemiaCause() ||
		(conditions.HasDiabetes() && profile.HbA1c > uncontrolledHbA1c)
	if secondary {
		out = append(out, ExclusionSecondaryCause)
	}

	return out
}

// confirmedFH applies the FH confirmation rule: a diagnosis flag AND any of
// genetic confirmation, DLCN score >= 6, very-high LDL (sex-specific) with
// family history, or a specific causal gene.
func (e *EligibilityEngine) confirmedFH(profile *domain.PatientProfile, conditions domain.ConditionSet) bool {
	if !conditions.HasFH() {
		return false
	}
	if profile.GeneticConfirmation {
		return true
	}
	if profile.DLCNScore >= minDLCNScore {
		return true
	}
	threshold := fhVeryHighLDLMale
	if profile.Sex == "female" {
		threshold = fhVeryHighLDLFemale
	}
	if profile.LDL >= threshold && profile.FamilyHistoryPrematureASCVD {
		return true
	}
	switch profile.CausalGene {
	case "LDLR", "APOB", "PCSK9":
		return true
	}
	return false
}

// pathToEligibility lists the concrete steps still needed, plus non-covered
// alternatives to consider in the meantime.
func (e *EligibilityEngine) pathToEligibility(baseMet, ldlMet, highIntensityMet, intoleranceMet, ezetimibeMet bool) []string {
	var steps []string

	if !baseMet {
		steps = append(steps, "document FH (genetic test or DLCN scoring) or confirm ASCVD diagnosis")
	}
	if !ldlMet {
		steps = append(steps, "re-measure LDL; values below 1.8 mmol/L do not qualify")
	}
	if !highIntensityMet && !intoleranceMet {
		steps = append(steps,
			"complete >= 3 months of high-intensity statin, or document intolerance to >= 2 statins")
	}
	if !ezetimibeMet {
		steps = append(steps, "complete >= 3 months of ezetimibe")
	}

	steps = append(steps, AdviceAlternatives)
	return steps
}

func track(a *domain.EligibilityAssessment, met bool, criterion string) {
	if met {
		a.MetCriteria = append(a.MetCriteria, criterion)
	} else {
		a.UnmetCriteria = append(a.UnmetCriteria, criterion)
	}
}
