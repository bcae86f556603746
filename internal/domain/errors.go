package domain

import (
	"fmt"
	"time"
)

// Error codes for different failure scenarios
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeAlgorithm     = "ALGORITHM_ERROR"
	ErrCodeEligibility   = "ELIGIBILITY_EVALUATION_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeCache         = "CACHE_ERROR"
	ErrCodeStore         = "STORE_ERROR"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// EngineError is a standardized error envelope for API responses.
type EngineError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewEngineError creates a new EngineError with timestamp
func NewEngineError(code, message, details, requestID string) *EngineError {
	return &EngineError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents a field-level input validation failure. It
// blocks the pipeline before categorization begins and is surfaced
// field-by-field.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// AlgorithmError reports a failed external risk-score call. The orchestrator
// records it on the failed branch and still returns the other branch's result.
type AlgorithmError struct {
	Algorithm AlgorithmID `json:"algorithm"`
	Cause     error       `json:"-"`
}

// Error implements the error interface
func (e *AlgorithmError) Error() string {
	return fmt.Sprintf("risk algorithm %s failed: %v", e.Algorithm, e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *AlgorithmError) Unwrap() error { return e.Cause }

// NewAlgorithmError creates a new AlgorithmError
func NewAlgorithmError(id AlgorithmID, cause error) *AlgorithmError {
	return &AlgorithmError{Algorithm: id, Cause: cause}
}

// EligibilityEvaluationError marks an unexpected fault inside the coverage
// eligibility engine. It is caught locally and converted into an ineligible
// result annotated with manual-review-required; it never propagates.
type EligibilityEvaluationError struct {
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *EligibilityEvaluationError) Error() string {
	return fmt.Sprintf("eligibility evaluation failed: %v", e.Cause)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *EligibilityEvaluationError) Unwrap() error { return e.Cause }

// ConfigurationError reports an unknown medication name or unmapped field.
// Callers degrade to "none"/"other" categorization rather than failing.
type ConfigurationError struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error for '%s': %s", e.Subject, e.Message)
}
