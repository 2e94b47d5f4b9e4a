package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voyagerhq/llm-gateway/models"
)

func TestUsageRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rec := &models.UsageRecord{
		ID:           uuid.New(),
		RequestID:    uuid.New(),
		TenantID:     "acme",
		UserID:       "alice",
		TaskType:     "chat",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		InputTokens:  100,
		OutputTokens: 50,
		Cost:         decimal.RequireFromString("0.0002"),
		LatencyMs:    250,
		Success:      true,
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO usage_records").
		WithArgs(rec.ID, rec.RequestID, rec.TenantID, rec.UserID, rec.TaskType,
			rec.Provider, rec.Model, rec.InputTokens, rec.OutputTokens,
			"0.0002", rec.LatencyMs, rec.CacheHit, rec.Success,
			rec.ErrorCode, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewUsageRepository(db)
	require.NoError(t, repo.Insert(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageRepository_InsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO usage_records").
		WillReturnError(errors.New("connection reset"))

	repo := NewUsageRepository(db)
	err = repo.Insert(context.Background(), &models.UsageRecord{
		ID:        uuid.New(),
		RequestID: uuid.New(),
		Cost:      decimal.Zero,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert usage record")
}
