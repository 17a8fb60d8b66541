package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"geno-backend/internal/metrics"
	"geno-backend/internal/middleware"
	"geno-backend/internal/models"
	"geno-backend/internal/services"
	"geno-backend/internal/session"
)

// MaxChatBodyBytes caps the JSON body of a chat request.
const MaxChatBodyBytes = 1 << 20

type ChatHandler struct {
	chatService *services.ChatService
	metrics     *metrics.Metrics
}

func NewChatHandler(chatService *services.ChatService, m *metrics.Metrics) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		metrics:     m,
	}
}

// chatPayload accepts any JSON type so that wrong types surface as the
// field-specific validation errors instead of a decode failure.
type chatPayload struct {
	SessionID interface{} `json:"sessionId"`
	Message   interface{} `json:"message"`
	Model     interface{} `json:"model"`
}

func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxChatBodyBytes)

	var payload chatPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.ChatRequest("body_too_large")
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("request body too large"))
			return
		}
		h.metrics.ChatRequest("invalid_body")
		writeJSON(w, http.StatusBadRequest, errorResp("invalid JSON body"))
		return
	}

	req := models.ChatRequest{
		SessionID: stringField(payload.SessionID),
		Message:   stringField(payload.Message),
		Model:     stringField(payload.Model),
		RequestID: middleware.GetRequestID(r.Context()),
	}

	reply, err := h.chatService.Send(r.Context(), req)
	if err != nil {
		h.writeChatError(w, r, req, err)
		return
	}

	h.metrics.ChatRequest("ok")
	writeJSON(w, http.StatusOK, models.ChatResponse{Reply: reply})
}

func (h *ChatHandler) writeChatError(w http.ResponseWriter, r *http.Request, req models.ChatRequest, err error) {
	logger := zerolog.Ctx(r.Context()).With().Str("session_id", req.SessionID).Logger()

	var validationErr *services.ValidationError
	var upstreamErr *services.UpstreamError

	switch {
	case errors.As(err, &validationErr):
		outcome := "missing_message"
		if errors.Is(err, services.ErrMissingSessionID) {
			outcome = "missing_session_id"
		}
		h.metrics.ChatRequest(outcome)
		writeJSON(w, http.StatusBadRequest, errorResp(validationErr.Message))
	case errors.Is(err, services.ErrUpstreamEmptyResponse):
		h.metrics.ChatRequest("empty_reply")
		logger.Warn().Msg("Empty response from Gemini")
		writeJSON(w, http.StatusBadGateway, errorResp("Empty response from Gemini"))
	case errors.As(err, &upstreamErr):
		h.metrics.ChatRequest("upstream_error")
		logger.Error().Err(err).Msg("Gemini API error")
		writeJSON(w, http.StatusInternalServerError, errorRespWithDetail("Gemini API error", upstreamErr.Message))
	case errors.Is(err, session.ErrSessionEvicted):
		h.metrics.ChatRequest("session_evicted")
		writeJSON(w, http.StatusInternalServerError, errorRespWithDetail("Gemini API error", session.ErrSessionEvicted.Error()))
	default:
		h.metrics.ChatRequest("internal_error")
		logger.Error().Err(err).Msg("Chat exchange failed")
		writeJSON(w, http.StatusInternalServerError, errorRespWithDetail("Gemini API error", err.Error()))
	}
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}
