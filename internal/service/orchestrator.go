package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Agreement thresholds in absolute risk percentage points.
const (
	agreementHighMaxDiff     = 3.0
	agreementModerateMaxDiff = 7.5
)

// Defaults for the combined intervention projection.
const (
	defaultSBPReduction = 10.0  // mmHg
	elevatedSBP         = 140.0 // mmHg
	qrisk3MinAge        = 25
	qrisk3MaxAge        = 84
)

// Orchestrator fans the same profile out to every configured risk algorithm
// concurrently, joins the per-branch pipeline results, compares the
// estimates and synthesizes combined guidance plus intervention scenarios.
// One branch failing degrades that branch only; the whole evaluation fails
// only when every branch does.
type Orchestrator struct {
	logger     *logrus.Logger
	evaluator  *Evaluator
	simulator  *InterventionSimulator
	algorithms []domain.RiskAlgorithm
}

// NewOrchestrator creates a multi-algorithm orchestrator over the given
// algorithms.
func NewOrchestrator(logger *logrus.Logger, evaluator *Evaluator, algorithms ...domain.RiskAlgorithm) *Orchestrator {
	return &Orchestrator{
		logger:     logger,
		evaluator:  evaluator,
		simulator:  NewInterventionSimulator(logger),
		algorithms: algorithms,
	}
}

type branchOutcome struct {
	id     domain.AlgorithmID
	result *domain.EvaluationResult
	err    error
}

// Evaluate runs the full dual evaluation. Input validation failures are
// returned before any branch is started.
func (o *Orchestrator) Evaluate(ctx context.Context, profile *domain.PatientProfile) (*domain.DualEvaluation, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if len(o.algorithms) == 0 {
		return nil, &domain.ConfigurationError{Subject: "algorithms", Message: "no risk algorithms configured"}
	}

	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan branchOutcome, len(o.algorithms))
	for _, alg := range o.algorithms {
		go func(alg domain.RiskAlgorithm) {
			result, err := o.evaluator.Evaluate(ctx, profile, alg)
			outcomes <- branchOutcome{id: alg.ID(), result: result, err: err}
		}(alg)
	}

	dual := &domain.DualEvaluation{
		ID:        uuid.NewString(),
		Results:   make(map[domain.AlgorithmID]*domain.EvaluationResult, len(o.algorithms)),
		CreatedAt: time.Now().UTC(),
	}

	for range o.algorithms {
		out := <-outcomes
		if out.err != nil {
			o.logger.WithError(out.err).WithField("algorithm", out.id.String()).
				Warn("Risk algorithm branch failed")
			if dual.BranchErrors == nil {
				dual.BranchErrors = make(map[domain.AlgorithmID]string)
			}
			dual.BranchErrors[out.id] = out.err.Error()
			continue
		}
		dual.Results[out.id] = out.result
	}

	if len(dual.Results) == 0 {
		return nil, fmt.Errorf("all risk algorithm branches failed: %s", joinBranchErrors(dual.BranchErrors))
	}

	if len(dual.Results) >= 2 {
		dual.Comparison = o.compare(profile, dual.Results)
	} else {
		dual.ComparisonUnavailable = true
	}

	dual.CombinedRecommendations = o.synthesize(dual)
	dual.Scenarios = o.projectScenarios(profile, dual)

	o.logger.WithFields(logrus.Fields{
		"evaluation_id":   dual.ID,
		"branches_ok":     len(dual.Results),
		"branches_failed": len(dual.BranchErrors),
		"processing_time": time.Since(start),
	}).Info("Dual evaluation completed")

	return dual, nil
}

// compare builds the symmetric pairwise comparison between the two branch
// estimates. With more than two successful branches it compares the extreme
// pair, which bounds every other pairing.
func (o *Orchestrator) compare(profile *domain.PatientProfile, results map[domain.AlgorithmID]*domain.EvaluationResult) *domain.RiskComparison {
	lo, hi := extremeResults(results)
	a := lo.Risk.TenYearRiskPercent
	b := hi.Risk.TenYearRiskPercent

	absDiff := math.Abs(a - b)
	mean := (a + b) / 2

	cmp := &domain.RiskComparison{
		AbsoluteDifference: round2(absDiff),
		AgreementLevel:     agreementForDiff(absDiff),
		CategoryAgreement:  lo.Category == hi.Category,
	}
	if mean > 0 {
		cmp.RelativeDifference = round2(absDiff / mean * 100)
	}

	cmp.SuggestedAlgorithm, cmp.ExplanatoryFactors = o.suggestAlgorithm(profile, lo, hi, cmp.AgreementLevel)

	o.logger.WithFields(logrus.Fields{
		"absolute_difference": cmp.AbsoluteDifference,
		"agreement":           string(cmp.AgreementLevel),
		"suggested":           cmp.SuggestedAlgorithm.String(),
	}).Debug("Compared risk estimates")

	return cmp
}

func agreementForDiff(absDiff float64) domain.AgreementLevel {
	switch {
	case absDiff <= agreementHighMaxDiff:
		return domain.AgreementHigh
	case absDiff <= agreementModerateMaxDiff:
		return domain.AgreementModerate
	default:
		return domain.AgreementLow
	}
}

// suggestAlgorithm scores which estimate to anchor clinical reasoning on.
// QRISK3 starts favored because its input set covers more of the profile;
// factors specific to the patient shift or reinforce that.
func (o *Orchestrator) suggestAlgorithm(
	profile *domain.PatientProfile,
	lo, hi *domain.EvaluationResult,
	agreement domain.AgreementLevel,
) (domain.AlgorithmID, []string) {
	scores := map[domain.AlgorithmID]int{
		domain.AlgorithmQRISK3:     2,
		domain.AlgorithmFramingham: 1,
	}
	factors := []string{"broader risk-factor coverage favors QRISK3 by default"}

	ethnicity := strings.ToLower(strings.TrimSpace(profile.Ethnicity))
	if ethnicity != "" && ethnicity != "white" {
		scores[domain.AlgorithmQRISK3] += 2
		factors = append(factors, "ethnicity is an explicit QRISK3 input")
	}

	if profile.Age < qrisk3MinAge || profile.Age > qrisk3MaxAge {
		scores[domain.AlgorithmFramingham]++
		factors = append(factors,
			fmt.Sprintf("age %d is outside the QRISK3 derivation range (%d-%d)", profile.Age, qrisk3MinAge, qrisk3MaxAge))
	}

	if n := qrisk3Comorbidities(profile); n > 0 {
		scores[domain.AlgorithmQRISK3] += n
		factors = append(factors,
			fmt.Sprintf("%d comorbidity factor(s) only QRISK3 models", n))
	}

	if agreement == domain.AgreementLow {
		// Disagreement without a structural tiebreaker: lean conservative,
		// toward the higher estimate.
		higher := hi.Algorithm
		if lo.Risk.TenYearRiskPercent > hi.Risk.TenYearRiskPercent {
			higher = lo.Algorithm
		}
		scores[higher] += 2
		factors = append(factors, "low agreement; weighting the more conservative (higher) estimate")
	}

	suggested := domain.AlgorithmQRISK3
	if scores[domain.AlgorithmFramingham] > scores[domain.AlgorithmQRISK3] {
		suggested = domain.AlgorithmFramingham
	}
	return suggested, factors
}

func qrisk3Comorbidities(p *domain.PatientProfile) int {
	n := 0
	for _, present := range []bool{
		p.AtrialFibrillation,
		p.RheumatoidArthritis,
		p.SLE,
		p.Migraine,
		p.SevereMentalIllness,
		p.ConditionSet().HasCKD(),
	} {
		if present {
			n++
		}
	}
	return n
}

// synthesize merges the per-branch recommendations into a deduplicated,
// annotated set of combined guidance strings.
func (o *Orchestrator) synthesize(dual *domain.DualEvaluation) []string {
	var out []string

	anchor := o.anchorResult(dual)
	if anchor == nil {
		return nil
	}

	if rec := anchor.Recommendation; rec != nil {
		line := fmt.Sprintf("%s: %s", rec.Action, rec.Rationale)
		out = append(out, line)
	}
	if anchor.Eligibility != nil && anchor.Eligibility.Eligible {
		out = append(out, "coverage criteria for PCSK9-class therapy are met")
	}

	if dual.Comparison != nil {
		switch dual.Comparison.AgreementLevel {
		case domain.AgreementHigh:
			out = append(out, "both risk algorithms agree closely; estimates are reliable")
		case domain.AgreementModerate:
			out = append(out, "risk algorithms diverge moderately; review the explanatory factors")
		case domain.AgreementLow:
			out = append(out, "risk algorithms disagree substantially; clinical judgment should arbitrate")
		}
		if !dual.Comparison.CategoryAgreement {
			out = append(out, "algorithms map to different risk categories; the higher category governs targets")
		}
	}
	if dual.ComparisonUnavailable {
		out = append(out, "single-algorithm result only; cross-algorithm comparison unavailable")
	}

	// Recommendation actions from non-anchor branches that differ from the
	// anchor are surfaced rather than discarded.
	for id, res := range dual.Results {
		if res == anchor || res.Recommendation == nil {
			continue
		}
		if anchor.Recommendation == nil || res.Recommendation.Action != anchor.Recommendation.Action {
			out = append(out, fmt.Sprintf("%s branch recommends %s instead", id, res.Recommendation.Action))
		}
	}

	return dedupe(out)
}

// projectScenarios builds the applicable intervention projections on the
// anchor branch's risk estimate.
func (o *Orchestrator) projectScenarios(profile *domain.PatientProfile, dual *domain.DualEvaluation) []domain.InterventionScenario {
	anchor := o.anchorResult(dual)
	if anchor == nil {
		return nil
	}
	baseline := anchor.Risk.TenYearRiskPercent
	if baseline <= 0 {
		return nil
	}

	var scenarios []domain.InterventionScenario

	if anchor.Therapy.StatinIntensity != domain.StatinHigh {
		reduction := 1 - remainingStatinHigh
		if anchor.Therapy.EstimatedLDLReduction > 0 {
			// Model only the incremental effect over current therapy.
			reduction -= anchor.Therapy.EstimatedLDLReduction
		}
		if reduction > 0 {
			scenarios = append(scenarios, o.simulator.StatinScenario(baseline, reduction))
		}
	}
	if profile.SystolicBP >= elevatedSBP {
		scenarios = append(scenarios, o.simulator.BPScenario(baseline, defaultSBPReduction))
	}
	if profile.Smoker {
		scenarios = append(scenarios, o.simulator.SmokingCessationScenario(baseline))
	}

	if len(scenarios) > 1 {
		scenarios = append(scenarios, o.simulator.Combine(baseline, scenarios...))
	}
	return scenarios
}

// anchorResult picks the branch whose result drives synthesis: the suggested
// algorithm when a comparison exists, otherwise the single successful
// branch, otherwise the higher estimate.
func (o *Orchestrator) anchorResult(dual *domain.DualEvaluation) *domain.EvaluationResult {
	if dual.Comparison != nil {
		if res, ok := dual.Results[dual.Comparison.SuggestedAlgorithm]; ok {
			return res
		}
	}
	var anchor *domain.EvaluationResult
	for _, res := range dual.Results {
		if anchor == nil || res.Risk.TenYearRiskPercent > anchor.Risk.TenYearRiskPercent {
			anchor = res
		}
	}
	return anchor
}

// extremeResults returns the lowest and highest estimates among the
// successful branches, in that order.
func extremeResults(results map[domain.AlgorithmID]*domain.EvaluationResult) (lo, hi *domain.EvaluationResult) {
	for _, res := range results {
		if lo == nil || res.Risk.TenYearRiskPercent < lo.Risk.TenYearRiskPercent {
			lo = res
		}
		if hi == nil || res.Risk.TenYearRiskPercent > hi.Risk.TenYearRiskPercent {
			hi = res
		}
	}
	return lo, hi
}

func joinBranchErrors(branchErrors map[domain.AlgorithmID]string) string {
	parts := make([]string, 0, len(branchErrors))
	for id, msg := range branchErrors {
		parts = append(parts, fmt.Sprintf("%s: %s", id, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
