package domain

import (
	"strings"
)

// ConditionSet is the single lookup surface for clinical condition flags.
// A condition holds when its name matches an entry in the patient's condition
// label list OR when the same-named direct boolean field is set; every rule in
// the engines goes through this lookup instead of re-implementing the check.
type ConditionSet struct {
	labels []string
	flags  map[string]bool
}

// NewConditionSet builds a lookup over normalized condition labels and direct
// boolean flags keyed by normalized flag name.
func NewConditionSet(labels []string, flags map[string]bool) ConditionSet {
	normalized := make([]string, 0, len(labels))
	for _, l := range labels {
		l = normalizeCondition(l)
		if l != "" {
			normalized = append(normalized, l)
		}
	}
	nf := make(map[string]bool, len(flags))
	for k, v := range flags {
		if v {
			nf[normalizeCondition(k)] = true
		}
	}
	return ConditionSet{labels: normalized, flags: nf}
}

// Has reports whether the named condition holds, matching labels by
// case-insensitive substring and flags by exact normalized name.
func (cs ConditionSet) Has(name string) bool {
	name = normalizeCondition(name)
	if name == "" {
		return false
	}
	if cs.flags[name] {
		return true
	}
	for _, l := range cs.labels {
		// Short abbreviations ("mi", "fh", "pad") must match a whole label,
		// otherwise "mi" would match "migraine".
		if len(name) < 4 || len(l) < 4 {
			if l == name {
				return true
			}
			continue
		}
		if strings.Contains(l, name) || strings.Contains(name, l) {
			return true
		}
	}
	return false
}

// HasAny reports whether any of the named conditions holds.
func (cs ConditionSet) HasAny(names ...string) bool {
	for _, n := range names {
		if cs.Has(n) {
			return true
		}
	}
	return false
}

// Labels returns a copy of the normalized label list.
func (cs ConditionSet) Labels() []string {
	out := make([]string, len(cs.labels))
	copy(out, cs.labels)
	return out
}

func normalizeCondition(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Condition term groups. The broad ASCVD match deliberately covers the common
// clinical spellings and abbreviations seen in condition lists.
var (
	ascvdTerms = []string{
		"myocardial infarction", "prior mi", "mi",
		"stroke", "ischemic stroke", "tia", "transient ischemic attack",
		"peripheral arterial disease", "peripheral artery disease", "pad",
		"coronary artery disease", "cad",
		"coronary revascularization", "revascularization", "cabg", "pci", "stent",
		"carotid stenosis", "carotid artery disease",
		"acute coronary syndrome", "acs",
		"angina", "ascvd", "atherosclerosis", "atherosclerotic",
	}

	fhTerms = []string{
		"familial hypercholesterolemia", "familial hypercholesterolaemia",
		"hefh", "hofh", "fh",
	}

	ckdTerms = []string{
		"chronic kidney disease", "ckd", "renal insufficiency",
		"chronic renal failure", "egfr",
	}

	diabetesTerms = []string{
		"diabetes", "t1dm", "t2dm", "diabetes mellitus",
	}

	pregnancyTerms = []string{
		"pregnancy", "pregnant", "breastfeeding", "lactation", "lactating",
	}

	secondaryCauseTerms = []string{
		"untreated hypothyroidism", "hypothyroidism",
		"nephrotic syndrome",
		"obstructive liver disease", "cholestasis", "biliary obstruction",
	}
)

// HasASCVD reports any confirmed atherosclerotic cardiovascular disease.
func (cs ConditionSet) HasASCVD() bool { return cs.HasAny(ascvdTerms...) }

// HasFH reports familial hypercholesterolemia markers.
func (cs ConditionSet) HasFH() bool { return cs.HasAny(fhTerms...) }

// HasCKD reports chronic kidney disease.
func (cs ConditionSet) HasCKD() bool { return cs.HasAny(ckdTerms...) }

// HasDiabetes reports diabetes mellitus of either type.
func (cs ConditionSet) HasDiabetes() bool { return cs.HasAny(diabetesTerms...) }

// HasPregnancyOrLactation reports pregnancy or breastfeeding.
func (cs ConditionSet) HasPregnancyOrLactation() bool { return cs.HasAny(pregnancyTerms...) }

// HasSecondaryDyslipidemiaCause reports label-based secondary causes of
// dyslipidemia. Lab-derived causes (uncontrolled diabetes by HbA1c) are
// checked by the eligibility engine directly.
func (cs ConditionSet) HasSecondaryDyslipidemiaCause() bool {
	return cs.HasAny(secondaryCauseTerms...)
}
