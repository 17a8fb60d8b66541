package handlers

import (
	"encoding/json"
	"net/http"

	"geno-backend/internal/models"
)

type HealthHandler struct {
	defaultModel string
}

func NewHealthHandler(defaultModel string) *HealthHandler {
	return &HealthHandler{defaultModel: defaultModel}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{OK: true, Model: h.defaultModel})
}

// Shared helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResp(message string) models.ErrorResponse {
	return models.ErrorResponse{Error: message}
}

func errorRespWithDetail(message, detail string) models.ErrorResponse {
	if detail == "" {
		detail = "Unknown error"
	}
	return models.ErrorResponse{Error: message, Detail: detail}
}
