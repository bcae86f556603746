package service

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cvrisk-engine/internal/domain"
	"github.com/cvrisk-engine/pkg/external"
)

func newTestClassifier() *TherapyClassifier {
	return NewTherapyClassifier(testLogger(), external.NewBuiltinMedicationDB())
}

func TestTherapyClassifier_Classify(t *testing.T) {
	classifier := newTestClassifier()

	tests := []struct {
		name          string
		medications   []string
		wantIntensity domain.StatinIntensity
		wantEzetimibe bool
		wantPCSK9     bool
	}{
		{
			name:          "Empty list",
			medications:   nil,
			wantIntensity: domain.StatinNone,
		},
		{
			name:          "High-intensity statin with dose text",
			medications:   []string{"Atorvastatin 40mg"},
			wantIntensity: domain.StatinHigh,
		},
		{
			name:          "Moderate statin",
			medications:   []string{"simvastatin"},
			wantIntensity: domain.StatinModerate,
		},
		{
			name:          "Low statin",
			medications:   []string{"pravastatin 20mg daily"},
			wantIntensity: domain.StatinLow,
		},
		{
			name:          "Highest statin tier wins",
			medications:   []string{"pravastatin", "rosuvastatin"},
			wantIntensity: domain.StatinHigh,
		},
		{
			name:          "Statin plus ezetimibe",
			medications:   []string{"atorvastatin", "ezetimibe 10mg"},
			wantIntensity: domain.StatinHigh,
			wantEzetimibe: true,
		},
		{
			name:          "Brand-name PCSK9",
			medications:   []string{"Repatha"},
			wantIntensity: domain.StatinNone,
			wantPCSK9:     true,
		},
		{
			name:          "Full triple therapy",
			medications:   []string{"rosuvastatin 20mg", "ezetimibe", "evolocumab"},
			wantIntensity: domain.StatinHigh,
			wantEzetimibe: true,
			wantPCSK9:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := classifier.Classify(tt.medications)
			assert.Equal(t, tt.wantIntensity, state.StatinIntensity)
			assert.Equal(t, tt.wantEzetimibe, state.HasEzetimibe)
			assert.Equal(t, tt.wantPCSK9, state.HasPCSK9)
		})
	}
}

func TestTherapyClassifier_UnrecognizedDegrade(t *testing.T) {
	classifier := newTestClassifier()

	state := classifier.Classify([]string{"atorvastatin", "metformin", "  ", "lisinopril"})

	assert.Equal(t, domain.StatinHigh, state.StatinIntensity)
	assert.ElementsMatch(t, []string{"metformin", "lisinopril"}, state.UnrecognizedAgents)
	// Unrecognized agents contribute nothing to the effect estimate.
	assert.InDelta(t, 0.50, state.EstimatedLDLReduction, 1e-9)
}

func TestTherapyClassifier_Idempotent(t *testing.T) {
	classifier := newTestClassifier()
	meds := []string{"rosuvastatin", "ezetimibe", "fenofibrate"}

	first := classifier.Classify(meds)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, classifier.Classify(meds))
	}
}

func TestEstimateLDLReduction(t *testing.T) {
	tests := []struct {
		name      string
		intensity domain.StatinIntensity
		ezetimibe float64
		pcsk9     float64
		others    []float64
		want      float64
	}{
		{"Nothing", domain.StatinNone, 0, 0, nil, 0},
		{"Low statin", domain.StatinLow, 0, 0, nil, 0.20},
		{"Moderate statin", domain.StatinModerate, 0, 0, nil, 0.35},
		{"High statin", domain.StatinHigh, 0, 0, nil, 0.50},
		{"High statin plus ezetimibe", domain.StatinHigh, 0.76, 0, nil, 1 - 0.50*0.76},
		{"High statin plus ezetimibe plus PCSK9", domain.StatinHigh, 0.76, 0.40, nil, 1 - 0.50*0.76*0.40},
		{"Ezetimibe alone", domain.StatinNone, 0.76, 0, nil, 0.24},
		{"Other agent multiplies", domain.StatinModerate, 0, 0, []float64{0.82}, 1 - 0.65*0.82},
		{"Invalid factor ignored", domain.StatinModerate, 0, 0, []float64{0, 1.5, -2}, 0.35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimateLDLReduction(tt.intensity, tt.ezetimibe, tt.pcsk9, tt.others)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestEstimateLDLReduction_AlwaysWithinBounds(t *testing.T) {
	intensities := []domain.StatinIntensity{
		domain.StatinNone, domain.StatinLow, domain.StatinModerate, domain.StatinHigh,
	}
	factorSets := [][]float64{
		nil,
		{0.76},
		{0.40, 0.82, 0.83, 0.93},
		{0.01, 0.01, 0.01},
	}

	for _, intensity := range intensities {
		for _, ez := range []float64{0, 0.76} {
			for _, pcsk9 := range []float64{0, 0.40} {
				for _, factors := range factorSets {
					got := estimateLDLReduction(intensity, ez, pcsk9, factors)
					assert.GreaterOrEqual(t, got, 0.0)
					assert.LessOrEqual(t, got, MaxLDLReduction)
					assert.False(t, math.IsNaN(got))
				}
			}
		}
	}
}

// taxonomyStub is a one-entry medication database with a non-default factor.
type taxonomyStub struct {
	entry domain.MedicationEntry
}

func (s *taxonomyStub) Lookup(name string) (domain.MedicationEntry, bool) {
	if strings.Contains(strings.ToLower(name), strings.ToLower(s.entry.Name)) {
		return s.entry, true
	}
	return domain.MedicationEntry{}, false
}

func (s *taxonomyStub) Entries() []domain.MedicationEntry {
	return []domain.MedicationEntry{s.entry}
}

func TestClassify_UsesTaxonomyFactors(t *testing.T) {
	// The reduction model must read non-statin factors from the taxonomy
	// entry, not from classifier-local values.
	meds := &taxonomyStub{entry: domain.MedicationEntry{
		Name: "ezetimibe", Class: domain.ClassEzetimibe, Factor: 0.70,
	}}
	classifier := NewTherapyClassifier(testLogger(), meds)

	state := classifier.Classify([]string{"ezetimibe 10mg"})

	assert.True(t, state.HasEzetimibe)
	assert.InDelta(t, 0.30, state.EstimatedLDLReduction, 1e-9)
}
