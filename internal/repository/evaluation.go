package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cvrisk-engine/internal/domain"
)

// SQLiteEvaluationStore persists completed evaluation records for audit.
// Records are append-only; an ID collision updates the existing row so a
// replayed evaluation never duplicates.
type SQLiteEvaluationStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteEvaluationStore opens (or creates) the store at dbPath and
// applies the schema.
func NewSQLiteEvaluationStore(dbPath string) (*SQLiteEvaluationStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for concurrent readers during evaluation bursts.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteEvaluationStore{db: db, dbPath: dbPath}, nil
}

// NewStoreWithDB wraps an existing database handle. Used by tests.
func NewStoreWithDB(db *sql.DB) *SQLiteEvaluationStore {
	return &SQLiteEvaluationStore{db: db}
}

// scanner is an interface for sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*domain.EvaluationRecord, error) {
	rec := &domain.EvaluationRecord{}
	var algorithm, category string
	var payload []byte

	err := s.Scan(&rec.ID, &rec.PatientHash, &algorithm, &category,
		&rec.Eligible, &payload, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	rec.Algorithm = domain.AlgorithmID(algorithm)
	rec.Category = domain.RiskCategory(category)
	rec.Payload = payload
	return rec, nil
}

func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS evaluations (
		id TEXT PRIMARY KEY,
		patient_hash TEXT NOT NULL,
		algorithm TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		eligible INTEGER NOT NULL DEFAULT 0,
		payload BLOB,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_patient_hash ON evaluations(patient_hash);
	CREATE INDEX IF NOT EXISTS idx_evaluations_created_at ON evaluations(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores one evaluation record, replacing any previous row with the
// same ID.
func (s *SQLiteEvaluationStore) Save(ctx context.Context, record *domain.EvaluationRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluations (id, patient_hash, algorithm, category, eligible, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			patient_hash = excluded.patient_hash,
			algorithm = excluded.algorithm,
			category = excluded.category,
			eligible = excluded.eligible,
			payload = excluded.payload
	`,
		record.ID,
		record.PatientHash,
		string(record.Algorithm),
		string(record.Category),
		record.Eligible,
		record.Payload,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation record: %w", err)
	}
	return nil
}

// Get retrieves one record by ID. A missing record returns (nil, nil).
func (s *SQLiteEvaluationStore) Get(ctx context.Context, id string) (*domain.EvaluationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, patient_hash, algorithm, category, eligible, payload, created_at
		FROM evaluations
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan evaluation record: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest records, most recent first.
func (s *SQLiteEvaluationStore) ListRecent(ctx context.Context, limit int) ([]*domain.EvaluationRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_hash, algorithm, category, eligible, payload, created_at
		FROM evaluations
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation records: %w", err)
	}
	defer rows.Close()

	var result []*domain.EvaluationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// CountByCategory returns record counts per risk category.
func (s *SQLiteEvaluationStore) CountByCategory(ctx context.Context) (map[domain.RiskCategory]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT category, COUNT(*) FROM evaluations GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RiskCategory]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[domain.RiskCategory(category)] = count
	}
	return counts, rows.Err()
}

// SaveResult marshals a full evaluation result into the record payload and
// stores it.
func (s *SQLiteEvaluationStore) SaveResult(ctx context.Context, patientHash string, result *domain.EvaluationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation payload: %w", err)
	}

	return s.Save(ctx, &domain.EvaluationRecord{
		ID:          result.ID,
		PatientHash: patientHash,
		Algorithm:   result.Algorithm,
		Category:    result.Category,
		Eligible:    result.Eligibility != nil && result.Eligibility.Eligible,
		Payload:     payload,
		CreatedAt:   result.CreatedAt,
	})
}

// Close closes the store and releases resources.
func (s *SQLiteEvaluationStore) Close() error {
	return s.db.Close()
}
