package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geno-backend/internal/models"
)

func TestExchangeRepo_CreateInsertsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	errMsg := "API key not valid"
	e := &models.Exchange{
		ID:           uuid.New(),
		SessionID:    "abc",
		RequestID:    "req-1",
		Model:        "gemini-2.5-flash",
		Status:       models.ExchangeFailed,
		Error:        &errMsg,
		HistoryTurns: 3,
		MessageChars: 5,
		ReplyChars:   0,
		LatencyMS:    420,
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	mock.ExpectExec("INSERT INTO chat_exchanges").
		WithArgs(e.ID, "abc", "req-1", "gemini-2.5-flash", "failed", &errMsg, 3, 5, 0, int64(420), e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewExchangeRepo(mock).Create(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepo_CreateFillsIDAndTimestamp(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	e := &models.Exchange{SessionID: "abc", Model: "gemini-2.5-flash", Status: models.ExchangeCompleted}

	mock.ExpectExec("INSERT INTO chat_exchanges").
		WithArgs(pgxmock.AnyArg(), "abc", "", "gemini-2.5-flash", "completed", (*string)(nil), 0, 0, 0, int64(0), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, NewExchangeRepo(mock).Create(context.Background(), e))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExchangeRepo_CreateWrapsError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	dbErr := errors.New("connection refused")
	mock.ExpectExec("INSERT INTO chat_exchanges").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(dbErr)

	err = NewExchangeRepo(mock).Create(context.Background(), &models.Exchange{SessionID: "abc"})
	assert.ErrorIs(t, err, dbErr)
	assert.Contains(t, err.Error(), "insert chat exchange")
	assert.NoError(t, mock.ExpectationsWereMet())
}
