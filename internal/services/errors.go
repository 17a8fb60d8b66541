package services

import "errors"

// ErrUpstreamEmptyResponse means Gemini answered without any usable text.
var ErrUpstreamEmptyResponse = errors.New("empty response from Gemini")

// ValidationError is a client input error; Message is shown to the caller.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrMissingSessionID = &ValidationError{Message: "sessionId required"}
	ErrMissingMessage   = &ValidationError{Message: "message (string) required"}
)

// UpstreamError wraps any provider, network or auth failure.
type UpstreamError struct {
	Message string
	Err     error
}

func (e *UpstreamError) Error() string { return e.Message }

func (e *UpstreamError) Unwrap() error { return e.Err }

func newUpstreamError(err error) *UpstreamError {
	msg := "Unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return &UpstreamError{Message: msg, Err: err}
}
