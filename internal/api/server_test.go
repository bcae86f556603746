package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvrisk-engine/internal/domain"
	"github.com/cvrisk-engine/internal/service"
	"github.com/cvrisk-engine/pkg/external"
)

type stubConfigManager struct {
	config domain.Config
}

func (s *stubConfigManager) GetConfig() *domain.Config             { return &s.config }
func (s *stubConfigManager) GetServerConfig() *domain.ServerConfig { return &s.config.Server }
func (s *stubConfigManager) GetCacheConfig() *domain.CacheConfig   { return &s.config.Cache }
func (s *stubConfigManager) GetAlgorithmConfig(id domain.AlgorithmID) *domain.AlgorithmConfig {
	return nil
}
func (s *stubConfigManager) Validate() error { return nil }

type stubAlgorithm struct {
	id   domain.AlgorithmID
	risk float64
}

func (s *stubAlgorithm) ID() domain.AlgorithmID { return s.id }

func (s *stubAlgorithm) ComputeRisk(ctx context.Context, profile *domain.NormalizedProfile) (*domain.RiskResult, error) {
	return &domain.RiskResult{Algorithm: s.id, TenYearRiskPercent: s.risk}, nil
}

type stubStore struct {
	records map[string]*domain.EvaluationRecord
}

func (s *stubStore) Save(ctx context.Context, record *domain.EvaluationRecord) error { return nil }
func (s *stubStore) Get(ctx context.Context, id string) (*domain.EvaluationRecord, error) {
	return s.records[id], nil
}
func (s *stubStore) ListRecent(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	return nil, nil
}
func (s *stubStore) Close() error { return nil }

func newTestServer(t *testing.T, store domain.EvaluationStore) *Server {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	evaluator := service.NewEvaluator(logger, external.NewBuiltinMedicationDB(), nil, nil, nil, time.Minute)
	orchestrator := service.NewOrchestrator(logger, evaluator,
		&stubAlgorithm{id: domain.AlgorithmFramingham, risk: 18},
		&stubAlgorithm{id: domain.AlgorithmQRISK3, risk: 21},
	)

	return NewServer(&stubConfigManager{}, logger, orchestrator, evaluator, store, nil)
}

func performJSON(t *testing.T, server *Server, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)
	return recorder
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := performJSON(t, server, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "healthy")
	assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/evaluate", nil)
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "*", recorder.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleEvaluate(t *testing.T) {
	server := newTestServer(t, nil)

	payload := EvaluateRequest{
		Profile: domain.PatientProfile{
			Age: 58, Sex: "male",
			SystolicBP: 142, Smoker: true,
			CurrentMedications: []string{"simvastatin 40mg"},
		},
		Labs: []LabValue{
			{Analyte: "ldl", Value: 130, Unit: "mg/dL"},
			{Analyte: "hdl", Value: 1.1, Unit: "mmol/L"},
			{Analyte: "total_cholesterol", Value: 5.9, Unit: "mmol/L"},
		},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/evaluate", payload)

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp EvaluateResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.NotNil(t, resp.Evaluation)
	assert.Len(t, resp.Evaluation.Results, 2)
	require.NotNil(t, resp.Evaluation.Comparison)
	assert.NotEmpty(t, resp.Evaluation.Comparison.SuggestedAlgorithm)
}

func TestHandleEvaluate_InvalidBody(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), domain.ErrCodeValidation)
}

func TestHandleEvaluate_BadLabValue(t *testing.T) {
	server := newTestServer(t, nil)

	payload := EvaluateRequest{
		Profile: domain.PatientProfile{Age: 58, Sex: "male"},
		Labs: []LabValue{
			{Analyte: "ldl", Value: -3, Unit: "mmol/L"},
		},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/evaluate", payload)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), domain.ErrCodeValidation)
}

func TestHandleEvaluate_InvalidProfile(t *testing.T) {
	server := newTestServer(t, nil)

	payload := EvaluateRequest{
		Profile: domain.PatientProfile{Age: 58, Sex: "unknown"},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/evaluate", payload)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleEligibility(t *testing.T) {
	server := newTestServer(t, nil)

	payload := EligibilityRequest{
		Profile: domain.PatientProfile{
			Age: 61, Sex: "female",
			LDL:                2.6,
			Conditions:         []string{"prior MI"},
			CurrentMedications: []string{"atorvastatin 80mg", "ezetimibe 10mg"},
			MonthsOnStatin:     8,
			MonthsOnEzetimibe:  5,
		},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/eligibility", payload)

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp struct {
		Therapy    domain.TherapyState           `json:"therapy"`
		Assessment *domain.EligibilityAssessment `json:"assessment"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, domain.StatinHigh, resp.Therapy.StatinIntensity)
	require.NotNil(t, resp.Assessment)
	assert.True(t, resp.Assessment.Eligible)
}

func TestHandleSimulate(t *testing.T) {
	server := newTestServer(t, nil)

	payload := SimulateRequest{
		BaselineRiskPercent: 25,
		Interventions: []InterventionRequest{
			{Type: domain.InterventionStatin, LDLReductionFraction: 0.5},
			{Type: domain.InterventionSmokingCessation},
		},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/simulate", payload)

	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var resp struct {
		Scenarios []domain.InterventionScenario `json:"scenarios"`
		Combined  *domain.InterventionScenario  `json:"combined"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	require.Len(t, resp.Scenarios, 2)
	require.NotNil(t, resp.Combined)
	assert.Less(t, resp.Combined.ProjectedRiskPercent, 25.0)
}

func TestHandleSimulate_BaselineOutOfRange(t *testing.T) {
	server := newTestServer(t, nil)

	payload := SimulateRequest{
		BaselineRiskPercent: 140,
		Interventions:       []InterventionRequest{{Type: domain.InterventionStatin}},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/simulate", payload)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleSimulate_UnknownIntervention(t *testing.T) {
	server := newTestServer(t, nil)

	payload := SimulateRequest{
		BaselineRiskPercent: 25,
		Interventions:       []InterventionRequest{{Type: "ACUPUNCTURE"}},
	}

	recorder := performJSON(t, server, http.MethodPost, "/api/v1/simulate", payload)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHandleGetEvaluation(t *testing.T) {
	store := &stubStore{records: map[string]*domain.EvaluationRecord{
		"eval-1": {ID: "eval-1", Algorithm: domain.AlgorithmFramingham, Category: domain.RiskHigh},
	}}
	server := newTestServer(t, store)

	recorder := performJSON(t, server, http.MethodGet, "/api/v1/evaluations/eval-1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "eval-1")

	recorder = performJSON(t, server, http.MethodGet, "/api/v1/evaluations/missing", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHandleGetEvaluation_StoreDisabled(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := performJSON(t, server, http.MethodGet, "/api/v1/evaluations/eval-1", nil)
	assert.Equal(t, http.StatusNotImplemented, recorder.Code)
}

func TestHandleListMedications(t *testing.T) {
	server := newTestServer(t, nil)

	recorder := performJSON(t, server, http.MethodGet, "/api/v1/medications", nil)

	require.Equal(t, http.StatusOK, recorder.Code)

	var resp struct {
		Medications []domain.MedicationEntry `json:"medications"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Medications)
}

func TestRequestIDEchoed(t *testing.T) {
	server := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	recorder := httptest.NewRecorder()
	server.Router().ServeHTTP(recorder, req)

	assert.Equal(t, "req-42", recorder.Header().Get("X-Request-ID"))
}
