package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"geno-backend/internal/models"
)

// Generator produces the next model turn for a conversation. history is the
// full conversation so far and ends with the new user turn.
type Generator interface {
	Generate(ctx context.Context, model string, history []models.Turn) (string, error)
}

type sendFunc func(ctx context.Context, modelName string, history []*genai.Content, msg genai.Part) (*genai.GenerateContentResponse, error)

// GeminiService talks to the Gemini API. It keeps no conversation state.
type GeminiService struct {
	client   *genai.Client
	send     sendFunc
	rateChan chan struct{} // Token bucket
}

func NewGeminiService(ctx context.Context, apiKey string, concurrentReqs int, opts ...option.ClientOption) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	s := newGeminiService(concurrentReqs)
	s.client = client
	s.send = s.sendChat
	return s, nil
}

func newGeminiService(concurrentReqs int) *GeminiService {
	if concurrentReqs < 1 {
		concurrentReqs = 1
	}

	// Token bucket for rate limiting
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiService{rateChan: rateChan}
}

func (s *GeminiService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

// acquireRate blocks until a rate slot is available
func (s *GeminiService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *GeminiService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Generate sends history to Gemini as a chat: every turn but the last becomes
// chat history and the last (user) turn is the message. One call is exactly
// one provider round trip.
func (s *GeminiService) Generate(ctx context.Context, modelName string, history []models.Turn) (string, error) {
	if len(history) == 0 || history[len(history)-1].Role != models.RoleUser {
		return "", &UpstreamError{Message: "conversation must end with a user turn"}
	}

	if err := s.acquireRate(ctx); err != nil {
		return "", newUpstreamError(fmt.Errorf("waiting for Gemini slot: %w", err))
	}
	defer s.releaseRate()

	last := history[len(history)-1]
	resp, err := s.send(ctx, modelName, toContents(history[:len(history)-1]), genai.Text(last.Text))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			log.Ctx(ctx).Warn().Str("model", modelName).Msg("Gemini blocked the exchange")
		}
		return "", newUpstreamError(err)
	}

	for i, cand := range resp.Candidates {
		if cand.FinishReason != genai.FinishReasonStop {
			log.Ctx(ctx).Debug().Int("candidate", i).Str("finish_reason", cand.FinishReason.String()).Msg("Gemini stopped early")
		}
	}

	reply := extractText(resp)
	if reply == "" {
		return "", ErrUpstreamEmptyResponse
	}
	return reply, nil
}

func (s *GeminiService) sendChat(ctx context.Context, modelName string, history []*genai.Content, msg genai.Part) (*genai.GenerateContentResponse, error) {
	chat := s.client.GenerativeModel(modelName).StartChat()
	chat.History = history
	return chat.SendMessage(ctx, msg)
}

// Helper functions

func toContents(turns []models.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		contents = append(contents, &genai.Content{
			Role:  string(t.Role),
			Parts: []genai.Part{genai.Text(t.Text)},
		})
	}
	return contents
}

// extractText joins the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

var _ Generator = (*GeminiService)(nil)
