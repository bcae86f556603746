package external

import (
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
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testProfile() *domain.NormalizedProfile {
	return &domain.NormalizedProfile{
		Age: 55, Sex: "male",
		TotalCholesterol: 6.2, HDL: 1.1, SystolicBP: 140,
		Smoker: true,
	}
}

func algorithmConfig(baseURL string) domain.AlgorithmConfig {
	return domain.AlgorithmConfig{
		BaseURL:   baseURL,
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}
}

func TestFraminghamClient_ComputeRisk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/score", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req framinghamRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 55, req.Age)
		assert.Equal(t, "male", req.Sex)

		json.NewEncoder(w).Encode(framinghamResponse{
			TenYearRiskPercent: 18.4,
			Breakdown:          map[string]float64{"age": 6.0, "smoking": 4.2},
		})
	}))
	defer server.Close()

	client := NewFraminghamClient(algorithmConfig(server.URL))
	result, err := client.ComputeRisk(context.Background(), testProfile())

	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmFramingham, result.Algorithm)
	assert.Equal(t, 18.4, result.TenYearRiskPercent)
	assert.NotEmpty(t, result.Breakdown)
}

func TestFraminghamClient_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(framinghamResponse{Error: "missing cholesterol"})
	}))
	defer server.Close()

	client := NewFraminghamClient(algorithmConfig(server.URL))
	_, err := client.ComputeRisk(context.Background(), testProfile())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing cholesterol")
}

func TestFraminghamClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewFraminghamClient(algorithmConfig(server.URL))
	_, err := client.ComputeRisk(context.Background(), testProfile())
	require.Error(t, err)
}

func TestFraminghamClient_OutOfRangeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(framinghamResponse{TenYearRiskPercent: 140})
	}))
	defer server.Close()

	client := NewFraminghamClient(algorithmConfig(server.URL))
	_, err := client.ComputeRisk(context.Background(), testProfile())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-range")
}

func TestQRISK3Client_ComputeRisk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/calculate", r.URL.Path)

		var req qrisk3Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		// TC 6.2 / HDL 1.1
		assert.InDelta(t, 5.636, req.CholesterolRatio, 0.001)

		json.NewEncoder(w).Encode(qrisk3Response{Score: 21.7})
	}))
	defer server.Close()

	client := NewQRISK3Client(algorithmConfig(server.URL))
	result, err := client.ComputeRisk(context.Background(), testProfile())

	require.NoError(t, err)
	assert.Equal(t, domain.AlgorithmQRISK3, result.Algorithm)
	assert.Equal(t, 21.7, result.TenYearRiskPercent)
}

func TestQRISK3Client_ZeroHDLNoDivide(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req qrisk3Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 0.0, req.CholesterolRatio)
		json.NewEncoder(w).Encode(qrisk3Response{Score: 10})
	}))
	defer server.Close()

	profile := testProfile()
	profile.HDL = 0

	client := NewQRISK3Client(algorithmConfig(server.URL))
	_, err := client.ComputeRisk(context.Background(), profile)
	require.NoError(t, err)
}

func TestClients_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		json.NewEncoder(w).Encode(framinghamResponse{TenYearRiskPercent: 10})
	}))
	defer server.Close()

	client := NewFraminghamClient(algorithmConfig(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ComputeRisk(ctx, testProfile())
	require.Error(t, err)
}
