package service

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// Intervention effect model constants.
const (
	// AssumedBaselineLDL is the LDL (mmol/L) the statin effect model assumes
	// when projecting from a population baseline.
	AssumedBaselineLDL = 3.5
	// RelativeReductionPerMmolLDL is the relative risk reduction per mmol/L
	// of LDL lowering.
	RelativeReductionPerMmolLDL = 0.20
	// RelativeReductionPer10mmHg is the relative risk reduction per 10 mmHg
	// of systolic blood pressure lowering.
	RelativeReductionPer10mmHg = 0.20
	// SmokingCessationRelativeReduction is the flat relative risk reduction
	// for stopping smoking.
	SmokingCessationRelativeReduction = 0.35
)

// InterventionSimulator projects risk under hypothetical statin, blood
// pressure and smoking-cessation interventions. Each scenario is a pure
// transformation of a baseline risk percentage; combined scenarios compose
// their relative reductions multiplicatively.
type InterventionSimulator struct {
	logger *logrus.Logger
}

// NewInterventionSimulator creates a new intervention effect simulator.
func NewInterventionSimulator(logger *logrus.Logger) *InterventionSimulator {
	return &InterventionSimulator{logger: logger}
}

// StatinScenario projects the effect of a statin producing the given LDL
// reduction fraction on a baseline risk percentage.
func (s *InterventionSimulator) StatinScenario(baselineRiskPercent, ldlReductionFraction float64) domain.InterventionScenario {
	relative := ldlReductionFraction * AssumedBaselineLDL * RelativeReductionPerMmolLDL
	return s.scenario(domain.InterventionStatin, baselineRiskPercent, relative, map[string]float64{
		"ldl_reduction_fraction": ldlReductionFraction,
		"assumed_baseline_ldl":   AssumedBaselineLDL,
	})
}

// BPScenario projects the effect of lowering systolic blood pressure by
// sbpReductionMmHg on a baseline risk percentage.
func (s *InterventionSimulator) BPScenario(baselineRiskPercent, sbpReductionMmHg float64) domain.InterventionScenario {
	relative := sbpReductionMmHg / 10 * RelativeReductionPer10mmHg
	return s.scenario(domain.InterventionBPReduction, baselineRiskPercent, relative, map[string]float64{
		"sbp_reduction_mmhg": sbpReductionMmHg,
	})
}

// SmokingCessationScenario projects the effect of smoking cessation on a
// baseline risk percentage.
func (s *InterventionSimulator) SmokingCessationScenario(baselineRiskPercent float64) domain.InterventionScenario {
	return s.scenario(domain.InterventionSmokingCessation, baselineRiskPercent,
		SmokingCessationRelativeReduction, nil)
}

// Combine composes the given scenarios sequentially on the same baseline:
// each scenario's relative reduction multiplies the remaining risk. The
// returned scenario reports the aggregate effect.
func (s *InterventionSimulator) Combine(baselineRiskPercent float64, scenarios ...domain.InterventionScenario) domain.InterventionScenario {
	remaining := 1.0
	for _, sc := range scenarios {
		remaining *= 1 - sc.RelativeRiskReduction
	}
	return s.scenario("COMBINED", baselineRiskPercent, 1-remaining, map[string]float64{
		"scenario_count": float64(len(scenarios)),
	})
}

func (s *InterventionSimulator) scenario(
	kind domain.InterventionType,
	baselineRiskPercent, relativeReduction float64,
	params map[string]float64,
) domain.InterventionScenario {
	if relativeReduction < 0 {
		relativeReduction = 0
	}
	if relativeReduction > 1 {
		relativeReduction = 1
	}

	projected := baselineRiskPercent * (1 - relativeReduction)
	arr := baselineRiskPercent - projected

	sc := domain.InterventionScenario{
		Type:                  kind,
		Parameters:            params,
		ProjectedRiskPercent:  round2(projected),
		AbsoluteRiskReduction: round2(arr),
		RelativeRiskReduction: round4(relativeReduction),
		NumberNeededToTreat:   numberNeededToTreat(arr),
	}

	s.logger.WithFields(logrus.Fields{
		"type":           string(kind),
		"baseline_risk":  baselineRiskPercent,
		"projected_risk": sc.ProjectedRiskPercent,
		"nnt":            sc.NumberNeededToTreat,
	}).Debug("Simulated intervention scenario")

	return sc
}

// numberNeededToTreat is round(100 / absolute reduction in points); zero
// when the intervention produces no absolute reduction.
func numberNeededToTreat(absoluteReductionPoints float64) int {
	if absoluteReductionPoints <= 0 {
		return 0
	}
	return int(math.Round(100 / absoluteReductionPoints))
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
