package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"geno-backend/internal/metrics"
	"geno-backend/internal/models"
	"geno-backend/internal/session"
)

// ExchangeRecorder receives one audit record per upstream round trip.
type ExchangeRecorder interface {
	Record(ex models.Exchange)
}

// ChatService runs one chat exchange: record the user turn, ask the
// generator with the full history, record the model turn.
type ChatService struct {
	store        session.Store
	locks        *session.Locker
	generator    Generator
	defaultModel string
	timeout      time.Duration
	events       EventPublisher
	recorder     ExchangeRecorder
	metrics      *metrics.Metrics
	now          func() time.Time
}

type ChatOption func(*ChatService)

// WithUpstreamTimeout bounds each Generate call. Zero disables the bound.
func WithUpstreamTimeout(d time.Duration) ChatOption {
	return func(s *ChatService) { s.timeout = d }
}

func WithEvents(p EventPublisher) ChatOption {
	return func(s *ChatService) { s.events = p }
}

func WithRecorder(r ExchangeRecorder) ChatOption {
	return func(s *ChatService) { s.recorder = r }
}

func WithMetrics(m *metrics.Metrics) ChatOption {
	return func(s *ChatService) { s.metrics = m }
}

func NewChatService(store session.Store, generator Generator, defaultModel string, opts ...ChatOption) *ChatService {
	s := &ChatService{
		store:        store,
		locks:        session.NewLocker(),
		generator:    generator,
		defaultModel: defaultModel,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ChatService) DefaultModel() string {
	return s.defaultModel
}

// Send validates req and runs the exchange. The whole exchange holds the
// session's lock. A failed upstream call leaves the user turn in history.
// A session evicted mid-exchange fails with session.ErrSessionEvicted.
func (s *ChatService) Send(ctx context.Context, req models.ChatRequest) (string, error) {
	if req.SessionID == "" {
		return "", ErrMissingSessionID
	}
	if req.Message == "" {
		return "", ErrMissingMessage
	}

	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	unlock, err := s.locks.Lock(ctx, req.SessionID)
	if err != nil {
		return "", fmt.Errorf("waiting for session: %w", err)
	}
	defer unlock()

	if err := s.store.Append(ctx, req.SessionID, models.Turn{Role: models.RoleUser, Text: req.Message}); err != nil {
		return "", fmt.Errorf("record user turn: %w", err)
	}

	history, err := s.store.History(ctx, req.SessionID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}

	s.publish(ctx, req.SessionID, models.EventExchangeStarted, models.ExchangeEvent{
		SessionID: req.SessionID,
		RequestID: req.RequestID,
		Model:     model,
		At:        s.now().UTC(),
	})

	callCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	reply, genErr := s.generator.Generate(callCtx, model, history)
	latency := s.now().Sub(start)

	status := models.ExchangeCompleted
	switch {
	case errors.Is(genErr, ErrUpstreamEmptyResponse):
		status = models.ExchangeEmpty
	case genErr != nil:
		status = models.ExchangeFailed
		var upErr *UpstreamError
		if !errors.As(genErr, &upErr) {
			genErr = newUpstreamError(genErr)
		}
	}

	s.metrics.UpstreamCall(model, string(status), latency)
	s.record(req, model, status, genErr, len(history), len([]rune(reply)), latency)

	eventType := models.EventExchangeCompleted
	if genErr != nil {
		eventType = models.EventExchangeFailed
	}
	s.publish(ctx, req.SessionID, eventType, models.ExchangeEvent{
		SessionID: req.SessionID,
		RequestID: req.RequestID,
		Model:     model,
		Status:    status,
		At:        s.now().UTC(),
	})

	if genErr != nil {
		return "", genErr
	}

	// The session may have been evicted while Gemini was answering; the reply
	// must not start a new session on its own.
	if err := s.store.AppendExisting(ctx, req.SessionID, models.Turn{Role: models.RoleModel, Text: reply}); err != nil {
		if errors.Is(err, session.ErrSessionEvicted) {
			log.Ctx(ctx).Warn().Str("session_id", req.SessionID).Msg("Session evicted before the reply was recorded")
		}
		return "", fmt.Errorf("record model turn: %w", err)
	}

	return reply, nil
}

func (s *ChatService) record(req models.ChatRequest, model string, status models.ExchangeStatus, err error, historyTurns, replyChars int, latency time.Duration) {
	if s.recorder == nil {
		return
	}

	ex := models.Exchange{
		ID:           uuid.New(),
		SessionID:    req.SessionID,
		RequestID:    req.RequestID,
		Model:        model,
		Status:       status,
		HistoryTurns: historyTurns,
		MessageChars: len([]rune(req.Message)),
		ReplyChars:   replyChars,
		LatencyMS:    latency.Milliseconds(),
		CreatedAt:    s.now().UTC(),
	}
	if err != nil {
		msg := err.Error()
		ex.Error = &msg
	}
	s.recorder.Record(ex)
}

func (s *ChatService) publish(ctx context.Context, sessionID, eventType string, payload models.ExchangeEvent) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, sessionID, models.WSMessage{Type: eventType, Payload: payload})
	if err != nil {
		s.metrics.EventPublishFailed()
		log.Ctx(ctx).Warn().Err(err).Str("session_id", sessionID).Str("event", eventType).Msg("Failed to publish exchange event")
	}
}
