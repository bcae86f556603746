package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvrisk-engine/internal/domain"
)

func newMockStore(t *testing.T) (*SQLiteEvaluationStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStoreWithDB(db), mock
}

func testRecord() *domain.EvaluationRecord {
	return &domain.EvaluationRecord{
		ID:          "eval-123",
		PatientHash: "abcd1234",
		Algorithm:   domain.AlgorithmFramingham,
		Category:    domain.RiskHigh,
		Eligible:    true,
		Payload:     []byte(`{"risk":22.0}`),
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteEvaluationStore_Save(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord()

	mock.ExpectExec("INSERT INTO evaluations").
		WithArgs(record.ID, record.PatientHash, string(record.Algorithm),
			string(record.Category), record.Eligible, record.Payload, record.CreatedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Save(context.Background(), record)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_SaveSetsCreatedAt(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord()
	record.CreatedAt = time.Time{}

	mock.ExpectExec("INSERT INTO evaluations").
		WithArgs(record.ID, record.PatientHash, string(record.Algorithm),
			string(record.Category), record.Eligible, record.Payload, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Save(context.Background(), record))
	assert.False(t, record.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_SaveRejectsInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	err := store.Save(context.Background(), &domain.EvaluationRecord{
		Algorithm: domain.AlgorithmFramingham,
	})

	require.Error(t, err)
	// Validation failures never reach the database.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	record := testRecord()

	rows := sqlmock.NewRows([]string{
		"id", "patient_hash", "algorithm", "category", "eligible", "payload", "created_at",
	}).AddRow(record.ID, record.PatientHash, string(record.Algorithm),
		string(record.Category), record.Eligible, record.Payload, record.CreatedAt)

	mock.ExpectQuery("SELECT id, patient_hash, algorithm").
		WithArgs(record.ID).
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), record.ID)

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, domain.AlgorithmFramingham, got.Algorithm)
	assert.Equal(t, domain.RiskHigh, got.Category)
	assert.True(t, got.Eligible)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_GetMissing(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, patient_hash, algorithm").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	got, err := store.Get(context.Background(), "nope")

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_ListRecent(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "patient_hash", "algorithm", "category", "eligible", "payload", "created_at",
	}).
		AddRow("b", "h2", "QRISK3", "MODERATE", false, []byte("{}"), time.Now()).
		AddRow("a", "h1", "FRAMINGHAM", "HIGH", true, []byte("{}"), time.Now().Add(-time.Hour))

	mock.ExpectQuery("SELECT id, patient_hash, algorithm").
		WithArgs(10).
		WillReturnRows(rows)

	records, err := store.ListRecent(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].ID)
	assert.Equal(t, domain.AlgorithmQRISK3, records[0].Algorithm)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_ListRecentDefaultLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, patient_hash, algorithm").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "patient_hash", "algorithm", "category", "eligible", "payload", "created_at",
		}))

	records, err := store.ListRecent(context.Background(), 0)

	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_CountByCategory(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"category", "COUNT(*)"}).
		AddRow("HIGH", 4).
		AddRow("LOW", 1)

	mock.ExpectQuery("SELECT category, COUNT").WillReturnRows(rows)

	counts, err := store.CountByCategory(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int64(4), counts[domain.RiskHigh])
	assert.Equal(t, int64(1), counts[domain.RiskLow])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteEvaluationStore_SaveResult(t *testing.T) {
	store, mock := newMockStore(t)

	result := &domain.EvaluationResult{
		ID:        "eval-456",
		Algorithm: domain.AlgorithmQRISK3,
		Category:  domain.RiskModerate,
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO evaluations").
		WithArgs("eval-456", "hash-1", "QRISK3", "MODERATE", false,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.SaveResult(context.Background(), "hash-1", result)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
