package models

// Role tags the speaker of a Turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Turn is one utterance in a conversation.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// ChatRequest is the validated payload of POST /api/chat.
type ChatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
	RequestID string `json:"-"`
}

// ChatResponse is the reply from the model.
type ChatResponse struct {
	Reply string `json:"reply"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

type HealthResponse struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}
