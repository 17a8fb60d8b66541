package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"geno-backend/internal/models"
)

// execer is the part of *pgxpool.Pool the repository needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type ExchangeRepo struct {
	db execer
}

func NewExchangeRepo(db execer) *ExchangeRepo {
	return &ExchangeRepo{db: db}
}

func (r *ExchangeRepo) Create(ctx context.Context, e *models.Exchange) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO chat_exchanges
		(id, session_id, request_id, model, status, error, history_turns, message_chars, reply_chars, latency_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		e.ID, e.SessionID, e.RequestID, e.Model, string(e.Status), e.Error,
		e.HistoryTurns, e.MessageChars, e.ReplyChars, e.LatencyMS, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert chat exchange: %w", err)
	}
	return nil
}
