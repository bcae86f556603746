package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/cvrisk-engine/internal/domain"
)

// FraminghamClient calls the external Framingham risk-score service.
type FraminghamClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewFraminghamClient creates a new Framingham service client.
func NewFraminghamClient(config domain.AlgorithmConfig) *FraminghamClient {
	return &FraminghamClient{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    newLimiter(config.RateLimit),
	}
}

// ID implements domain.RiskAlgorithm.
func (f *FraminghamClient) ID() domain.AlgorithmID { return domain.AlgorithmFramingham }

// framinghamRequest is the service's scoring request payload.
type framinghamRequest struct {
	Age              int     `json:"age"`
	Sex              string  `json:"sex"`
	TotalCholesterol float64 `json:"total_cholesterol"`
	HDL              float64 `json:"hdl"`
	SystolicBP       float64 `json:"systolic_bp"`
	Smoker           bool    `json:"smoker"`
	Diabetes         bool    `json:"diabetes"`
	OnBPTreatment    bool    `json:"treated_hypertension"`
}

// framinghamResponse is the service's scoring response payload.
type framinghamResponse struct {
	TenYearRiskPercent float64            `json:"ten_year_risk_percent"`
	Breakdown          map[string]float64 `json:"breakdown,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// ComputeRisk implements domain.RiskAlgorithm.
func (f *FraminghamClient) ComputeRisk(ctx context.Context, profile *domain.NormalizedProfile) (*domain.RiskResult, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := framinghamRequest{
		Age:              profile.Age,
		Sex:              profile.Sex,
		TotalCholesterol: profile.TotalCholesterol,
		HDL:              profile.HDL,
		SystolicBP:       profile.SystolicBP,
		Smoker:           profile.Smoker,
		Diabetes:         profile.Diabetes,
		OnBPTreatment:    profile.OnBPTreatment,
	}

	var response framinghamResponse
	if err := postJSON(ctx, f.httpClient, f.baseURL+"/v1/score", f.apiKey, payload, &response); err != nil {
		return nil, fmt.Errorf("framingham query failed: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("framingham service error: %s", response.Error)
	}
	if response.TenYearRiskPercent < 0 || response.TenYearRiskPercent > 100 {
		return nil, fmt.Errorf("framingham returned out-of-range risk %.2f", response.TenYearRiskPercent)
	}

	return &domain.RiskResult{
		Algorithm:          domain.AlgorithmFramingham,
		TenYearRiskPercent: response.TenYearRiskPercent,
		Breakdown:          response.Breakdown,
	}, nil
}

// QRISK3Client calls the external QRISK3 risk-score service.
type QRISK3Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewQRISK3Client creates a new QRISK3 service client.
func NewQRISK3Client(config domain.AlgorithmConfig) *QRISK3Client {
	return &QRISK3Client{
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    newLimiter(config.RateLimit),
	}
}

// ID implements domain.RiskAlgorithm.
func (q *QRISK3Client) ID() domain.AlgorithmID { return domain.AlgorithmQRISK3 }

// qrisk3Request is the service's scoring request payload. QRISK3 takes the
// cholesterol inputs as a total/HDL ratio rather than absolute values.
type qrisk3Request struct {
	Age                 int     `json:"age"`
	Sex                 string  `json:"sex"`
	Ethnicity           string  `json:"ethnicity,omitempty"`
	CholesterolRatio    float64 `json:"cholesterol_hdl_ratio"`
	SystolicBP          float64 `json:"systolic_bp"`
	BMI                 float64 `json:"bmi,omitempty"`
	Smoker              bool    `json:"smoker"`
	Diabetes            bool    `json:"diabetes"`
	OnBPTreatment       bool    `json:"on_bp_treatment"`
	AtrialFibrillation  bool    `json:"atrial_fibrillation"`
	RheumatoidArthritis bool    `json:"rheumatoid_arthritis"`
	CKD                 bool    `json:"ckd"`
	SLE                 bool    `json:"sle"`
	Migraine            bool    `json:"migraine"`
	SevereMentalIllness bool    `json:"severe_mental_illness"`
	FamilyHistoryCVD    bool    `json:"family_history_cvd"`
}

// qrisk3Response is the service's scoring response payload.
type qrisk3Response struct {
	Score     float64            `json:"score"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// ComputeRisk implements domain.RiskAlgorithm.
func (q *QRISK3Client) ComputeRisk(ctx context.Context, profile *domain.NormalizedProfile) (*domain.RiskResult, error) {
	if err := q.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ratio := 0.0
	if profile.HDL > 0 {
		ratio = profile.TotalCholesterol / profile.HDL
	}

	payload := qrisk3Request{
		Age:                 profile.Age,
		Sex:                 profile.Sex,
		Ethnicity:           profile.Ethnicity,
		CholesterolRatio:    ratio,
		SystolicBP:          profile.SystolicBP,
		BMI:                 profile.BMI,
		Smoker:              profile.Smoker,
		Diabetes:            profile.Diabetes,
		OnBPTreatment:       profile.OnBPTreatment,
		AtrialFibrillation:  profile.AtrialFibrillation,
		RheumatoidArthritis: profile.RheumatoidArthritis,
		CKD:                 profile.CKD,
		SLE:                 profile.SLE,
		Migraine:            profile.Migraine,
		SevereMentalIllness: profile.SevereMentalIllness,
		FamilyHistoryCVD:    profile.FamilyHistoryCVD,
	}

	var response qrisk3Response
	if err := postJSON(ctx, q.httpClient, q.baseURL+"/v1/calculate", q.apiKey, payload, &response); err != nil {
		return nil, fmt.Errorf("qrisk3 query failed: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("qrisk3 service error: %s", response.Error)
	}
	if response.Score < 0 || response.Score > 100 {
		return nil, fmt.Errorf("qrisk3 returned out-of-range risk %.2f", response.Score)
	}

	return &domain.RiskResult{
		Algorithm:          domain.AlgorithmQRISK3,
		TenYearRiskPercent: response.Score,
		Breakdown:          response.Breakdown,
	}, nil
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		perSecond = 10
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("service returned status %d: %s", resp.StatusCode, string(data))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
