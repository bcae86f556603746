package service

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cvrisk-engine/internal/domain"
)

// MaxLDLReduction caps the estimated cumulative LDL reduction.
const MaxLDLReduction = 0.90

// Remaining-fraction multipliers per statin tier. Non-statin multipliers
// come from the medication taxonomy entries.
const (
	remainingStatinLow      = 0.80
	remainingStatinModerate = 0.65
	remainingStatinHigh     = 0.50
)

// TherapyClassifier parses a free-form medication list into a structured
// current-therapy state using the medication database taxonomy, and
// estimates cumulative LDL reduction with a multiplicative
// remaining-fraction model.
type TherapyClassifier struct {
	logger *logrus.Logger
	meds   domain.MedicationDatabase
}

// NewTherapyClassifier creates a new therapy state classifier.
func NewTherapyClassifier(logger *logrus.Logger, meds domain.MedicationDatabase) *TherapyClassifier {
	return &TherapyClassifier{logger: logger, meds: meds}
}

// Entries exposes the underlying medication taxonomy.
func (t *TherapyClassifier) Entries() []domain.MedicationEntry {
	return t.meds.Entries()
}

// Classify derives the therapy state from the medication list. The
// derivation is idempotent: the same list always yields the same state.
// Unrecognized names degrade to the unrecognized list instead of failing.
func (t *TherapyClassifier) Classify(medications []string) domain.TherapyState {
	state := domain.TherapyState{StatinIntensity: domain.StatinNone}
	var ezetimibeFactor, pcsk9Factor float64
	otherFactors := make([]float64, 0, 2)

	for _, raw := range medications {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}

		entry, ok := t.meds.Lookup(name)
		if !ok {
			t.logger.WithField("medication", name).Warn("Unrecognized medication, treating as other")
			state.UnrecognizedAgents = append(state.UnrecognizedAgents, name)
			continue
		}

		switch entry.Class {
		case domain.ClassStatin:
			if entry.Tier.Rank() > state.StatinIntensity.Rank() {
				state.StatinIntensity = entry.Tier
			}
		case domain.ClassEzetimibe:
			state.HasEzetimibe = true
			ezetimibeFactor = entry.Factor
		case domain.ClassPCSK9:
			state.HasPCSK9 = true
			pcsk9Factor = entry.Factor
		default:
			state.OtherAgents = append(state.OtherAgents, entry.Name)
			otherFactors = append(otherFactors, entry.Factor)
		}
	}

	state.EstimatedLDLReduction = estimateLDLReduction(state.StatinIntensity, ezetimibeFactor, pcsk9Factor, otherFactors)

	t.logger.WithFields(logrus.Fields{
		"statin_intensity": state.StatinIntensity.String(),
		"has_ezetimibe":    state.HasEzetimibe,
		"has_pcsk9":        state.HasPCSK9,
		"other_agents":     len(state.OtherAgents),
		"ldl_reduction":    state.EstimatedLDLReduction,
	}).Debug("Classified therapy state")

	return state
}

// estimateLDLReduction applies the canonical multiplicative
// remaining-fraction model, in fixed order: statin, ezetimibe, PCSK9, then
// each other agent. The order is part of the contract; the result is capped
// at MaxLDLReduction. A zero factor means the agent is absent; factors
// outside (0, 1] are skipped.
func estimateLDLReduction(intensity domain.StatinIntensity, ezetimibeFactor, pcsk9Factor float64, otherFactors []float64) float64 {
	remaining := 1.0

	switch intensity {
	case domain.StatinLow:
		remaining *= remainingStatinLow
	case domain.StatinModerate:
		remaining *= remainingStatinModerate
	case domain.StatinHigh:
		remaining *= remainingStatinHigh
	}

	factors := make([]float64, 0, len(otherFactors)+2)
	factors = append(factors, ezetimibeFactor, pcsk9Factor)
	factors = append(factors, otherFactors...)
	for _, f := range factors {
		if f > 0 && f <= 1 {
			remaining *= f
		}
	}

	reduction := 1 - remaining
	if reduction > MaxLDLReduction {
		reduction = MaxLDLReduction
	}
	if reduction < 0 {
		reduction = 0
	}
	return reduction
}
