package models

import (
	"time"

	"github.com/google/uuid"
)

// ExchangeStatus is the outcome of one upstream round trip.
type ExchangeStatus string

const (
	ExchangeCompleted ExchangeStatus = "completed"
	ExchangeEmpty     ExchangeStatus = "empty"
	ExchangeFailed    ExchangeStatus = "failed"
)

// Exchange is the audit record of a chat call that reached the upstream.
// Message and reply text are never recorded, only their sizes.
type Exchange struct {
	ID           uuid.UUID      `json:"id"`
	SessionID    string         `json:"session_id"`
	RequestID    string         `json:"request_id"`
	Model        string         `json:"model"`
	Status       ExchangeStatus `json:"status"`
	Error        *string        `json:"error,omitempty"`
	HistoryTurns int            `json:"history_turns"`
	MessageChars int            `json:"message_chars"`
	ReplyChars   int            `json:"reply_chars"`
	LatencyMS    int64          `json:"latency_ms"`
	CreatedAt    time.Time      `json:"created_at"`
}

// WSMessage is the envelope pushed to websocket subscribers.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ExchangeEvent reports the progress of an exchange on a session.
type ExchangeEvent struct {
	SessionID string         `json:"session_id"`
	RequestID string         `json:"request_id,omitempty"`
	Model     string         `json:"model"`
	Status    ExchangeStatus `json:"status,omitempty"`
	At        time.Time      `json:"at"`
}

const (
	EventExchangeStarted   = "exchange_started"
	EventExchangeCompleted = "exchange_completed"
	EventExchangeFailed    = "exchange_failed"
)
