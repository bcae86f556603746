package domain

import (
	"errors"
	"fmt"
	"time"
)

// Lp(a) level (mg/dL) above which the categorizer and target resolver treat
// lipoprotein(a) as elevated.
const ElevatedLpaMgDL = 50.0

// PatientProfile is the immutable-per-call snapshot of patient data consumed
// by the decision pipeline. Lab values are in canonical units (mmol/L for
// lipids, mg/dL for Lp(a), percent for HbA1c); the validator/normalizer runs
// before this struct is built. Downstream components read a defensive copy.
type PatientProfile struct {
	ID        string `json:"id,omitempty"`
	Age       int    `json:"age" validate:"required"`
	Sex       string `json:"sex" validate:"required"` // "male" or "female"
	Ethnicity string `json:"ethnicity,omitempty"`

	// Lipid panel, canonical units
	LDL              float64 `json:"ldl_mmol_l"`
	HDL              float64 `json:"hdl_mmol_l"`
	TotalCholesterol float64 `json:"total_cholesterol_mmol_l"`
	Triglycerides    float64 `json:"triglycerides_mmol_l"`
	NonHDL           float64 `json:"non_hdl_mmol_l"`
	ApoB             float64 `json:"apo_b_g_l"`
	Lpa              float64 `json:"lpa_mg_dl"`
	HbA1c            float64 `json:"hba1c_percent"`
	SystolicBP       float64 `json:"systolic_bp_mmhg"`

	Smoker        bool `json:"smoker"`
	OnBPTreatment bool `json:"on_bp_treatment"`

	// Clinical conditions: free-form labels plus direct boolean flags.
	// Both forms are honored via ConditionSet.
	Conditions []string `json:"conditions,omitempty"`

	PriorMI                   bool `json:"prior_mi"`
	Stroke                    bool `json:"stroke"`
	PeripheralArterialDisease bool `json:"peripheral_arterial_disease"`
	CoronaryRevascularization bool `json:"coronary_revascularization"`
	CarotidStenosis           bool `json:"carotid_stenosis"`

	FamilialHypercholesterolemia bool   `json:"familial_hypercholesterolemia"`
	GeneticConfirmation          bool   `json:"genetic_confirmation"`
	DLCNScore                    int    `json:"dlcn_score"`
	FamilyHistoryPrematureASCVD  bool   `json:"family_history_premature_ascvd"`
	CausalGene                   string `json:"causal_gene,omitempty"` // LDLR, APOB, PCSK9

	CKD                   bool `json:"ckd"`
	Diabetes              bool `json:"diabetes"`
	DiabetesDurationYears int  `json:"diabetes_duration_years"`
	DiabetesComplications bool `json:"diabetes_complications"`

	// MonthsSinceACS is 0 when the patient has no ACS/MI history; an event
	// this month is recorded as 1.
	MonthsSinceACS  int  `json:"months_since_acs"`
	RecurrentEvents bool `json:"recurrent_events"`
	VascularBeds    int  `json:"vascular_beds"`

	Pregnant                bool `json:"pregnant"`
	Breastfeeding           bool `json:"breastfeeding"`
	UntreatedHypothyroidism bool `json:"untreated_hypothyroidism"`
	NephroticSyndrome       bool `json:"nephrotic_syndrome"`
	ObstructiveLiverDisease bool `json:"obstructive_liver_disease"`
	LipidRaisingMedication  bool `json:"lipid_raising_medication"`

	// Current therapy
	CurrentMedications     []string `json:"current_medications,omitempty"`
	MonthsOnStatin         int      `json:"months_on_statin"`
	MonthsOnEzetimibe      int      `json:"months_on_ezetimibe"`
	StatinIntoleranceCount int      `json:"statin_intolerance_count"`

	// Comorbidities relevant to algorithm suitability scoring
	AtrialFibrillation  bool `json:"atrial_fibrillation"`
	RheumatoidArthritis bool `json:"rheumatoid_arthritis"`
	SLE                 bool `json:"sle"`
	Migraine            bool `json:"migraine"`
	SevereMentalIllness bool `json:"severe_mental_illness"`
}

// Validate enforces the structurally required fields. Anything else degrades
// gracefully downstream; missing age or sex is a hard failure.
func (p *PatientProfile) Validate() error {
	if p.Age <= 0 {
		return NewValidationError("age", "age is required and must be positive", p.Age)
	}
	if p.Sex != "male" && p.Sex != "female" {
		return NewValidationError("sex", "sex must be \"male\" or \"female\"", p.Sex)
	}
	return nil
}

// Clone returns a defensive copy. The pipeline hands each component a clone
// so no stage can mutate the caller's snapshot.
func (p *PatientProfile) Clone() *PatientProfile {
	cp := *p
	cp.Conditions = append([]string(nil), p.Conditions...)
	cp.CurrentMedications = append([]string(nil), p.CurrentMedications...)
	return &cp
}

// ConditionSet builds the capability-style condition lookup from the label
// list and every same-named boolean field.
func (p *PatientProfile) ConditionSet() ConditionSet {
	return NewConditionSet(p.Conditions, map[string]bool{
		"prior mi":                     p.PriorMI,
		"stroke":                       p.Stroke,
		"peripheral arterial disease":  p.PeripheralArterialDisease,
		"coronary revascularization":   p.CoronaryRevascularization,
		"carotid stenosis":             p.CarotidStenosis,
		"familial hypercholesterolemia": p.FamilialHypercholesterolemia,
		"ckd":                     p.CKD,
		"diabetes":                p.Diabetes,
		"pregnancy":               p.Pregnant,
		"breastfeeding":           p.Breastfeeding,
		"untreated hypothyroidism": p.UntreatedHypothyroidism,
		"nephrotic syndrome":      p.NephroticSyndrome,
		"obstructive liver disease": p.ObstructiveLiverDisease,
		"atrial fibrillation":     p.AtrialFibrillation,
		"rheumatoid arthritis":    p.RheumatoidArthritis,
		"sle":                     p.SLE,
		"migraine":                p.Migraine,
	})
}

// HasElevatedLpa reports Lp(a) at or above the elevated threshold.
func (p *PatientProfile) HasElevatedLpa() bool {
	return p.Lpa >= ElevatedLpaMgDL
}

// HasRecentACS reports an acute coronary syndrome within the last 12 months.
func (p *PatientProfile) HasRecentACS() bool {
	return p.MonthsSinceACS > 0 && p.MonthsSinceACS <= 12
}

// NormalizedProfile is the input shape handed to the external risk-score
// algorithms. The mapping layer fills it from a validated PatientProfile.
type NormalizedProfile struct {
	Age              int     `json:"age"`
	Sex              string  `json:"sex"`
	Ethnicity        string  `json:"ethnicity,omitempty"`
	TotalCholesterol float64 `json:"total_cholesterol_mmol_l"`
	HDL              float64 `json:"hdl_mmol_l"`
	SystolicBP       float64 `json:"systolic_bp_mmhg"`
	Smoker           bool    `json:"smoker"`
	Diabetes         bool    `json:"diabetes"`
	OnBPTreatment    bool    `json:"on_bp_treatment"`
	BMI              float64 `json:"bmi,omitempty"`

	AtrialFibrillation  bool `json:"atrial_fibrillation"`
	RheumatoidArthritis bool `json:"rheumatoid_arthritis"`
	CKD                 bool `json:"ckd"`
	SLE                 bool `json:"sle"`
	Migraine            bool `json:"migraine"`
	SevereMentalIllness bool `json:"severe_mental_illness"`
	FamilyHistoryCVD    bool `json:"family_history_cvd"`
}

// RiskResult is the outcome of one external risk-score algorithm run.
type RiskResult struct {
	Algorithm          AlgorithmID        `json:"algorithm"`
	TenYearRiskPercent float64            `json:"ten_year_risk_percent"`
	Category           RiskCategory       `json:"category,omitempty"`
	Breakdown          map[string]float64 `json:"risk_factor_breakdown,omitempty"`
}

// LipidTargets is the target bundle resolved for a (category, profile) pair.
// Pure function of its inputs; no hidden state.
type LipidTargets struct {
	LDLMax               float64 `json:"ldl_max_mmol_l"`
	NonHDLMax            float64 `json:"non_hdl_max_mmol_l"`
	ApoBMax              float64 `json:"apo_b_max_g_l"`
	PercentReductionGoal float64 `json:"percent_reduction_goal"`
	// AlternativeGoal marks the low-risk branch where pharmacotherapy is
	// generally not indicated and LDLMax is a non-binding reference value.
	AlternativeGoal bool   `json:"alternative_goal"`
	Basis           string `json:"basis"`
}

// TherapyState is the structured view of the current medication list.
// Re-derivable idempotently from the same list.
type TherapyState struct {
	StatinIntensity       StatinIntensity `json:"statin_intensity"`
	HasEzetimibe          bool            `json:"has_ezetimibe"`
	HasPCSK9              bool            `json:"has_pcsk9"`
	OtherAgents           []string        `json:"other_agents,omitempty"`
	UnrecognizedAgents    []string        `json:"unrecognized_agents,omitempty"`
	EstimatedLDLReduction float64         `json:"estimated_ldl_reduction"`
}

// OnAnyTherapy reports whether any lipid-lowering agent was recognized.
// An unset intensity counts as no statin.
func (t *TherapyState) OnAnyTherapy() bool {
	onStatin := t.StatinIntensity != "" && t.StatinIntensity != StatinNone
	return onStatin || t.HasEzetimibe || t.HasPCSK9 || len(t.OtherAgents) > 0
}

// MedicationEntry is one row of the drug taxonomy supplied by the medication
// database collaborator.
type MedicationEntry struct {
	Name   string          `json:"name"`
	Class  MedicationClass `json:"class"`
	Tier   StatinIntensity `json:"tier,omitempty"` // statins only
	Factor float64         `json:"factor"`         // remaining-fraction multiplier for non-statins
}

// TreatmentAction enumerates the intensification engine's recommendations.
type TreatmentAction string

const (
	ActionStartStatin          TreatmentAction = "START_STATIN"
	ActionIncreaseStatin       TreatmentAction = "INCREASE_STATIN"
	ActionAddEzetimibe         TreatmentAction = "ADD_EZETIMIBE"
	ActionIncreaseToHigh       TreatmentAction = "INCREASE_TO_HIGH_INTENSITY"
	ActionConsiderPCSK9        TreatmentAction = "CONSIDER_PCSK9"
	ActionMaximizeTherapy      TreatmentAction = "MAXIMIZE_CURRENT_THERAPY"
	ActionReinforceAdherence   TreatmentAction = "REINFORCE_ADHERENCE"
	ActionLifestyleTrial       TreatmentAction = "LIFESTYLE_TRIAL"
	ActionContinueCurrent      TreatmentAction = "CONTINUE_CURRENT_THERAPY"
)

// TreatmentRecommendation is the intensification engine's output.
type TreatmentRecommendation struct {
	Action           TreatmentAction        `json:"action"`
	StatinIntensity  StatinIntensity        `json:"statin_intensity,omitempty"` // for start-statin actions
	Rationale        string                 `json:"rationale"`
	Details          []string               `json:"details,omitempty"`
	Eligibility      *EligibilityAssessment `json:"eligibility,omitempty"`
}

// EligibilityAssessment is the coverage eligibility engine's output.
// Constructed fresh per evaluation call; never cached across patients.
type EligibilityAssessment struct {
	Eligible              bool     `json:"eligible"`
	MetCriteria           []string `json:"met_criteria"`
	UnmetCriteria         []string `json:"unmet_criteria"`
	Exclusions            []string `json:"exclusions"`
	SpecialConsiderations []string `json:"special_considerations,omitempty"`
	TargetLDLOverride     float64  `json:"target_ldl_override,omitempty"`
	Recommendations       []string `json:"recommendations,omitempty"`
	ManualReviewRequired  bool     `json:"manual_review_required,omitempty"`
}

// RiskComparison compares the two algorithms' independent estimates.
type RiskComparison struct {
	AbsoluteDifference float64        `json:"absolute_difference"`
	RelativeDifference float64        `json:"relative_difference"`
	AgreementLevel     AgreementLevel `json:"agreement_level"`
	CategoryAgreement  bool           `json:"category_agreement"`
	ExplanatoryFactors []string       `json:"explanatory_factors,omitempty"`
	SuggestedAlgorithm AlgorithmID    `json:"suggested_algorithm"`
}

// InterventionType enumerates the simulator's hypothetical interventions.
type InterventionType string

const (
	InterventionStatin           InterventionType = "STATIN"
	InterventionBPReduction      InterventionType = "BP_REDUCTION"
	InterventionSmokingCessation InterventionType = "SMOKING_CESSATION"
)

// InterventionScenario is one projected treatment change. Scenarios compose
// sequentially (multiplicatively) when combined.
type InterventionScenario struct {
	Type                  InterventionType   `json:"type"`
	Parameters            map[string]float64 `json:"parameters,omitempty"`
	ProjectedRiskPercent  float64            `json:"projected_risk_percent"`
	AbsoluteRiskReduction float64            `json:"absolute_risk_reduction"`
	RelativeRiskReduction float64            `json:"relative_risk_reduction"`
	NumberNeededToTreat   int                `json:"number_needed_to_treat"`
}

// EvaluationResult is the single-algorithm pipeline result bundle.
type EvaluationResult struct {
	ID             string                   `json:"id"`
	Algorithm      AlgorithmID              `json:"algorithm"`
	Risk           RiskResult               `json:"risk"`
	Category       RiskCategory             `json:"category"`
	Targets        LipidTargets             `json:"targets"`
	Therapy        TherapyState             `json:"therapy"`
	TargetMet      bool                     `json:"target_met"`
	Recommendation *TreatmentRecommendation `json:"recommendation,omitempty"`
	Eligibility    *EligibilityAssessment   `json:"eligibility,omitempty"`
	Warnings       []string                 `json:"warnings,omitempty"`
	CreatedAt      time.Time                `json:"created_at"`
}

// DualEvaluation is the orchestrator's combined result across both
// algorithms. A failed branch is reported, never silently defaulted.
type DualEvaluation struct {
	ID                      string                         `json:"id"`
	Results                 map[AlgorithmID]*EvaluationResult `json:"results"`
	BranchErrors            map[AlgorithmID]string         `json:"branch_errors,omitempty"`
	Comparison              *RiskComparison                `json:"comparison,omitempty"`
	ComparisonUnavailable   bool                           `json:"comparison_unavailable,omitempty"`
	CombinedRecommendations []string                       `json:"combined_recommendations,omitempty"`
	Scenarios               []InterventionScenario         `json:"scenarios,omitempty"`
	CreatedAt               time.Time                      `json:"created_at"`
}

// EvaluationRecord is the persisted audit row for a completed evaluation.
type EvaluationRecord struct {
	ID          string       `json:"id"`
	PatientHash string       `json:"patient_hash"`
	Algorithm   AlgorithmID  `json:"algorithm"`
	Category    RiskCategory `json:"category"`
	Eligible    bool         `json:"eligible"`
	Payload     []byte       `json:"payload"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Validate ensures a record is storable.
func (r *EvaluationRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("evaluation record validation: %w", errors.New("ID is required"))
	}
	if !r.Algorithm.IsValid() {
		return fmt.Errorf("evaluation record validation: %w", ErrInvalidAlgorithm)
	}
	if r.Category != "" && !r.Category.IsValid() {
		return fmt.Errorf("evaluation record validation: %w", ErrInvalidRiskCategory)
	}
	return nil
}

// Event is the fire-and-forget notification payload emitted on evaluation
// completion or failure. No return value is consumed by the core.
type Event struct {
	Type         string       `json:"type"` // "evaluation.completed" | "evaluation.failed"
	EvaluationID string       `json:"evaluation_id"`
	Algorithm    AlgorithmID  `json:"algorithm,omitempty"`
	Category     RiskCategory `json:"category,omitempty"`
	Error        string       `json:"error,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
}
