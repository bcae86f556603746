package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cvrisk-engine/internal/domain"
	"github.com/cvrisk-engine/pkg/labunits"
)

// LabValue is one raw laboratory value as reported, before unit
// normalization. An empty unit triggers magnitude-based unit detection.
type LabValue struct {
	Analyte string  `json:"analyte" binding:"required"`
	Value   float64 `json:"value" binding:"required"`
	Unit    string  `json:"unit,omitempty"`
}

// EvaluateRequest is the dual-evaluation request payload. Lab values may be
// supplied pre-normalized on the profile, as raw entries in labs, or both;
// raw entries win.
type EvaluateRequest struct {
	Profile domain.PatientProfile `json:"profile" binding:"required"`
	Labs    []LabValue            `json:"labs,omitempty"`
}

// EvaluateResponse wraps the dual evaluation with normalization warnings.
type EvaluateResponse struct {
	Evaluation *domain.DualEvaluation `json:"evaluation"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// handleEvaluate runs the full dual-algorithm evaluation.
func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid request body", err.Error())
		return
	}

	warnings, err := applyLabs(&req.Profile, req.Labs)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "lab value rejected", err.Error())
		return
	}

	evaluation, err := s.orchestrator.Evaluate(c.Request.Context(), &req.Profile)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, EvaluateResponse{Evaluation: evaluation, Warnings: warnings})
}

// EligibilityRequest is the standalone coverage assessment payload.
type EligibilityRequest struct {
	Profile domain.PatientProfile `json:"profile" binding:"required"`
	Labs    []LabValue            `json:"labs,omitempty"`
}

// handleEligibility runs a standalone coverage eligibility assessment.
func (s *Server) handleEligibility(c *gin.Context) {
	var req EligibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid request body", err.Error())
		return
	}
	if _, err := applyLabs(&req.Profile, req.Labs); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "lab value rejected", err.Error())
		return
	}
	if err := req.Profile.Validate(); err != nil {
		s.respondDomainError(c, err)
		return
	}

	therapy := s.evaluator.Therapy().Classify(req.Profile.CurrentMedications)
	assessment := s.evaluator.Eligibility().Assess(&req.Profile, &therapy)

	c.JSON(http.StatusOK, gin.H{
		"therapy":    therapy,
		"assessment": assessment,
	})
}

// SimulateRequest asks for intervention projections on a baseline risk.
type SimulateRequest struct {
	BaselineRiskPercent float64                 `json:"baseline_risk_percent" binding:"required"`
	Interventions       []InterventionRequest   `json:"interventions" binding:"required,min=1"`
}

// InterventionRequest is one requested hypothetical intervention.
type InterventionRequest struct {
	Type                 domain.InterventionType `json:"type" binding:"required"`
	LDLReductionFraction float64                 `json:"ldl_reduction_fraction,omitempty"`
	SBPReductionMmHg     float64                 `json:"sbp_reduction_mmhg,omitempty"`
}

// handleSimulate projects the requested intervention scenarios.
func (s *Server) handleSimulate(c *gin.Context) {
	var req SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, "invalid request body", err.Error())
		return
	}
	if req.BaselineRiskPercent < 0 || req.BaselineRiskPercent > 100 {
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation,
			"baseline risk out of range", "baseline_risk_percent must be within [0, 100]")
		return
	}

	scenarios := make([]domain.InterventionScenario, 0, len(req.Interventions)+1)
	for _, iv := range req.Interventions {
		switch iv.Type {
		case domain.InterventionStatin:
			scenarios = append(scenarios, s.simulator.StatinScenario(req.BaselineRiskPercent, iv.LDLReductionFraction))
		case domain.InterventionBPReduction:
			scenarios = append(scenarios, s.simulator.BPScenario(req.BaselineRiskPercent, iv.SBPReductionMmHg))
		case domain.InterventionSmokingCessation:
			scenarios = append(scenarios, s.simulator.SmokingCessationScenario(req.BaselineRiskPercent))
		default:
			s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation,
				"unknown intervention type", string(iv.Type))
			return
		}
	}

	combined := s.simulator.Combine(req.BaselineRiskPercent, scenarios...)

	c.JSON(http.StatusOK, gin.H{
		"scenarios": scenarios,
		"combined":  combined,
	})
}

// handleGetEvaluation retrieves one persisted evaluation record.
func (s *Server) handleGetEvaluation(c *gin.Context) {
	if s.store == nil {
		s.respondError(c, http.StatusNotImplemented, domain.ErrCodeStore,
			"evaluation store disabled", "")
		return
	}

	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeStore,
			"failed to load evaluation", err.Error())
		return
	}
	if record == nil {
		s.respondError(c, http.StatusNotFound, domain.ErrCodeStore,
			"evaluation not found", c.Param("id"))
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleListMedications returns the medication taxonomy used by the therapy
// classifier.
func (s *Server) handleListMedications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"medications": s.evaluator.Therapy().Entries(),
	})
}

// applyLabs normalizes the raw lab entries onto the profile's canonical
// fields. The first invalid value rejects the request.
func applyLabs(profile *domain.PatientProfile, labs []LabValue) ([]string, error) {
	if len(labs) == 0 {
		return nil, nil
	}

	validator := labunits.NewValidator()
	var warnings []string

	for _, lab := range labs {
		analyte := labunits.Analyte(lab.Analyte)
		res := validator.Validate(lab.Value, analyte, labunits.Unit(lab.Unit))
		if !res.IsValid {
			return warnings, &domain.ValidationError{
				Field:   lab.Analyte,
				Message: res.Error,
				Value:   lab.Value,
			}
		}
		if res.Warning != "" {
			warnings = append(warnings, res.Warning)
		}

		switch analyte {
		case labunits.AnalyteLDL:
			profile.LDL = res.NormalizedValue
		case labunits.AnalyteHDL:
			profile.HDL = res.NormalizedValue
		case labunits.AnalyteTotalCholesterol:
			profile.TotalCholesterol = res.NormalizedValue
		case labunits.AnalyteNonHDL:
			profile.NonHDL = res.NormalizedValue
		case labunits.AnalyteTriglycerides:
			profile.Triglycerides = res.NormalizedValue
		case labunits.AnalyteApoB:
			profile.ApoB = res.NormalizedValue
		case labunits.AnalyteLpa:
			profile.Lpa = res.NormalizedValue
		case labunits.AnalyteHbA1c:
			profile.HbA1c = res.NormalizedValue
		case labunits.AnalyteSystolicBP:
			profile.SystolicBP = res.NormalizedValue
		}
	}

	return warnings, nil
}

// respondDomainError maps domain error types to HTTP statuses.
func (s *Server) respondDomainError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *domain.ValidationError:
		s.respondError(c, http.StatusBadRequest, domain.ErrCodeValidation, e.Message, e.Field)
	case *domain.AlgorithmError:
		s.respondError(c, http.StatusBadGateway, domain.ErrCodeAlgorithm, e.Error(), "")
	case *domain.ConfigurationError:
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeConfiguration, e.Error(), "")
	default:
		s.respondError(c, http.StatusInternalServerError, domain.ErrCodeInternal, err.Error(), "")
	}
}

func (s *Server) respondError(c *gin.Context, status int, code, message, details string) {
	s.logger.WithFields(map[string]interface{}{
		"status":     status,
		"code":       code,
		"request_id": requestID(c),
	}).Warn(message)

	c.JSON(status, domain.NewEngineError(code, message, details, requestID(c)))
}
