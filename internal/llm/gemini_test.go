package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func TestCompleteMapsRoles(t *testing.T) {
	t.Parallel()

	var gotModel string
	var gotContents []*genai.Content
	c := newGeminiClient(func(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		gotModel = model
		gotContents = contents
		return textResponse("  forty-two \n"), nil
	}, GeminiConfig{Model: "gemini-default"}, nil)

	text, err := c.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleUser, Content: "q2"},
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "forty-two", text)
	assert.Equal(t, "gemini-default", gotModel)
	require.Len(t, gotContents, 3)
	assert.Equal(t, genai.RoleUser, gotContents[0].Role)
	assert.Equal(t, genai.RoleModel, gotContents[1].Role)
	assert.Equal(t, "q2", gotContents[2].Parts[0].Text)
}

func TestCompleteFaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		err  error
		want Fault
	}{
		{"rate limited", nil, genai.APIError{Code: 429, Message: "quota"}, FaultRateLimited},
		{"rate limited pointer", nil, &genai.APIError{Code: 429}, FaultRateLimited},
		{"bad request", nil, genai.APIError{Code: 400}, FaultUpstreamError},
		{"unavailable after retries", nil, genai.APIError{Code: 503}, FaultUpstreamError},
		{"dial failure", nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, FaultConnectivity},
		{"timeout", nil, fmt.Errorf("post: %w", context.DeadlineExceeded), FaultConnectivity},
		{"something else", nil, errors.New("boom"), FaultUnknown},
		{"blocked prompt", &genai.GenerateContentResponse{
			PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
		}, nil, FaultUpstreamError},
		{"no candidates", &genai.GenerateContentResponse{}, nil, FaultUpstreamError},
		{"blank text", textResponse("   "), nil, FaultUpstreamError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newGeminiClient(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return tt.resp, tt.err
			}, GeminiConfig{Model: "m", MaxRetries: 1}, nil)

			_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, "")
			require.Error(t, err)

			var llmErr *Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.want, llmErr.Fault)
			assert.Equal(t, tt.want, FaultOf(err))
		})
	}
}

func TestRetriesServerErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	c := newGeminiClient(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		if calls == 1 {
			return nil, genai.APIError{Code: 500}
		}
		return textResponse("ok"), nil
	}, GeminiConfig{MaxRetries: 2, RetryDelay: time.Millisecond}, nil)

	text, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, "m")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, calls)
}

func TestDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	calls := 0
	c := newGeminiClient(func(context.Context, string, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		calls++
		return nil, genai.APIError{Code: 429}
	}, GeminiConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, nil)

	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "q"}}, "m")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestFaultOfForeignError(t *testing.T) {
	t.Parallel()
	assert.Equal(t, FaultUnknown, FaultOf(errors.New("x")))
}
