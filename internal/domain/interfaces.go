package domain

import (
	"context"
	"time"
)

// RiskAlgorithm is the contract for one external risk-score collaborator.
// Two independent implementations are invoked with the same contract.
type RiskAlgorithm interface {
	ID() AlgorithmID
	ComputeRisk(ctx context.Context, profile *NormalizedProfile) (*RiskResult, error)
}

// EvaluationCache memoizes full evaluations keyed by a content hash of the
// normalized input plus algorithm identifier. Implementations must be safe
// under concurrent evaluation of different patients.
type EvaluationCache interface {
	Get(ctx context.Context, key string) (*EvaluationResult, bool, error)
	Set(ctx context.Context, key string, result *EvaluationResult, ttl time.Duration) error
}

// MedicationDatabase supplies the canonical drug-name taxonomy consumed by
// the therapy state classifier.
type MedicationDatabase interface {
	// Lookup matches a free-text medication name (case-insensitive
	// substring) against the taxonomy.
	Lookup(name string) (MedicationEntry, bool)
	Entries() []MedicationEntry
}

// Notifier is the fire-and-forget event emitter invoked on evaluation
// completion or failure. Publish must never block the pipeline.
type Notifier interface {
	Publish(event Event)
}

// EvaluationStore persists completed evaluation records for audit.
type EvaluationStore interface {
	Save(ctx context.Context, record *EvaluationRecord) error
	Get(ctx context.Context, id string) (*EvaluationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*EvaluationRecord, error)
	Close() error
}

// ConfigManager defines the interface for configuration management.
type ConfigManager interface {
	GetConfig() *Config
	GetServerConfig() *ServerConfig
	GetCacheConfig() *CacheConfig
	GetAlgorithmConfig(id AlgorithmID) *AlgorithmConfig
	Validate() error
}
