package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geno-backend/internal/models"
)

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: "model"}
	for _, p := range parts {
		content.Parts = append(content.Parts, genai.Text(p))
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
	}
}

func TestGeminiGenerate_SplitsHistoryAndMessage(t *testing.T) {
	s := newGeminiService(1)

	var gotModel string
	var gotHistory []*genai.Content
	var gotMsg genai.Part
	s.send = func(_ context.Context, modelName string, history []*genai.Content, msg genai.Part) (*genai.GenerateContentResponse, error) {
		gotModel, gotHistory, gotMsg = modelName, history, msg
		return textResponse("Hi ", "there"), nil
	}

	reply, err := s.Generate(context.Background(), "gemini-2.5-flash", []models.Turn{
		{Role: models.RoleUser, Text: "Hello"},
		{Role: models.RoleModel, Text: "Hey"},
		{Role: models.RoleUser, Text: "How are you?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hi there", reply)
	assert.Equal(t, "gemini-2.5-flash", gotModel)
	assert.Equal(t, genai.Text("How are you?"), gotMsg)

	require.Len(t, gotHistory, 2)
	assert.Equal(t, "user", gotHistory[0].Role)
	assert.Equal(t, []genai.Part{genai.Text("Hello")}, gotHistory[0].Parts)
	assert.Equal(t, "model", gotHistory[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("Hey")}, gotHistory[1].Parts)
}

func TestGeminiGenerate_FirstMessageHasNoHistory(t *testing.T) {
	s := newGeminiService(1)
	s.send = func(_ context.Context, _ string, history []*genai.Content, _ genai.Part) (*genai.GenerateContentResponse, error) {
		assert.Empty(t, history)
		return textResponse("hi"), nil
	}

	_, err := s.Generate(context.Background(), "m", []models.Turn{{Role: models.RoleUser, Text: "Hello"}})
	require.NoError(t, err)
}

func TestGeminiGenerate_EmptyResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"empty text", textResponse("")},
		{"non-text parts only", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Blob{MIMEType: "image/png", Data: []byte{1}}}},
		}}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newGeminiService(1)
			s.send = func(context.Context, string, []*genai.Content, genai.Part) (*genai.GenerateContentResponse, error) {
				return tc.resp, nil
			}

			_, err := s.Generate(context.Background(), "m", []models.Turn{{Role: models.RoleUser, Text: "x"}})
			assert.ErrorIs(t, err, ErrUpstreamEmptyResponse)
		})
	}
}

func TestGeminiGenerate_ProviderError(t *testing.T) {
	s := newGeminiService(1)
	providerErr := errors.New("googleapi: Error 400: API key not valid")
	s.send = func(context.Context, string, []*genai.Content, genai.Part) (*genai.GenerateContentResponse, error) {
		return nil, providerErr
	}

	_, err := s.Generate(context.Background(), "m", []models.Turn{{Role: models.RoleUser, Text: "x"}})

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, providerErr.Error(), upErr.Message)
	assert.ErrorIs(t, err, providerErr)
}

func TestGeminiGenerate_RejectsHistoryNotEndingInUserTurn(t *testing.T) {
	s := newGeminiService(1)
	s.send = func(context.Context, string, []*genai.Content, genai.Part) (*genai.GenerateContentResponse, error) {
		t.Fatal("provider must not be called")
		return nil, nil
	}

	for _, history := range [][]models.Turn{
		nil,
		{{Role: models.RoleModel, Text: "dangling"}},
	} {
		_, err := s.Generate(context.Background(), "m", history)
		var upErr *UpstreamError
		assert.ErrorAs(t, err, &upErr)
	}
}

func TestGeminiGenerate_BoundsConcurrency(t *testing.T) {
	s := newGeminiService(2)

	var inflight, peak atomic.Int32
	release := make(chan struct{})
	s.send = func(context.Context, string, []*genai.Content, genai.Part) (*genai.GenerateContentResponse, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		inflight.Add(-1)
		return textResponse("ok"), nil
	}

	done := make(chan struct{}, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = s.Generate(context.Background(), "m", []models.Turn{{Role: models.RoleUser, Text: "x"}})
			done <- struct{}{}
		}()
	}

	require.Eventually(t, func() bool { return inflight.Load() == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}
	assert.Equal(t, int32(2), peak.Load())
}

func TestGeminiGenerate_WaitForSlotHonoursContext(t *testing.T) {
	s := newGeminiService(1)
	<-s.rateChan // occupy the only slot

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Generate(ctx, "m", []models.Turn{{Role: models.RoleUser, Text: "x"}})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestToContents(t *testing.T) {
	contents := toContents([]models.Turn{
		{Role: models.RoleUser, Text: "a"},
		{Role: models.RoleModel, Text: "b"},
	})
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Empty(t, toContents(nil))
}

func TestNewUpstreamError(t *testing.T) {
	assert.Equal(t, "Unknown error", newUpstreamError(nil).Message)
	assert.Equal(t, "boom", newUpstreamError(errors.New("boom")).Message)
}
