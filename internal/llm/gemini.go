package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiConfig configures GeminiClient.
type GeminiConfig struct {
	APIKey            string
	Model             string
	Temperature       float32
	SystemInstruction string
	MaxRetries        int
	RetryDelay        time.Duration
}

type generateFunc func(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient implements Client with the Google Gen AI SDK.
type GeminiClient struct {
	generate      generateFunc
	log           *slog.Logger
	contentConfig *genai.GenerateContentConfig
	defaultModel  string
	maxRetries    int
	retryDelay    time.Duration
}

var _ Client = (*GeminiClient)(nil)

// NewGeminiClient connects to the Gemini API.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, log *slog.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c := newGeminiClient(gi.Models.GenerateContent, cfg, log)
	c.log.Info("Gemini client initialized", "model", cfg.Model)
	return c, nil
}

func newGeminiClient(generate generateFunc, cfg GeminiConfig, log *slog.Logger) *GeminiClient {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	temperature := cfg.Temperature
	contentConfig := &genai.GenerateContentConfig{Temperature: &temperature}
	if cfg.SystemInstruction != "" {
		contentConfig.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: cfg.SystemInstruction}}}
	}

	return &GeminiClient{
		generate:      generate,
		log:           log.With("component", "gemini_client"),
		contentConfig: contentConfig,
		defaultModel:  cfg.Model,
		maxRetries:    cfg.MaxRetries,
		retryDelay:    cfg.RetryDelay,
	}
}

// Complete sends the conversation and returns the model's text.
func (c *GeminiClient) Complete(ctx context.Context, messages []Message, model string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	c.log.DebugContext(ctx, "Requesting completion", "model", model, "message_count", len(contents))

	resp, err := c.generateContentWithRetries(ctx, model, contents)
	if err != nil {
		return "", &Error{Fault: classify(err), Err: err}
	}

	text, err := c.extractText(ctx, resp)
	if err != nil {
		return "", &Error{Fault: FaultUpstreamError, Err: err}
	}
	return text, nil
}

func (c *GeminiClient) generateContentWithRetries(ctx context.Context, model string, contents []*genai.Content) (*genai.GenerateContentResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.generate(ctx, model, contents, c.contentConfig)
		if err == nil {
			return resp, nil
		}

		var apiErr genai.APIError
		retriable := asAPIError(err, &apiErr) &&
			(apiErr.Code == http.StatusInternalServerError || apiErr.Code == http.StatusServiceUnavailable)
		if !retriable || attempt >= c.maxRetries {
			c.log.ErrorContext(ctx, "Gemini API call failed", "attempt", attempt+1, "error", err)
			return nil, fmt.Errorf("gemini API call failed after %d attempts: %w", attempt+1, err)
		}

		c.log.WarnContext(ctx, "Retrying Gemini API call", "attempt", attempt+1, "code", apiErr.Code, "delay", c.retryDelay)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gemini retry aborted: %w", ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}
}

func (c *GeminiClient) extractText(ctx context.Context, resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", errors.New("gemini returned a nil response")
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reason := string(resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reason = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.WarnContext(ctx, "Gemini request blocked", "reason", reason)
		return "", fmt.Errorf("request blocked by safety filter: %s", reason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = string(resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing content", "finish_reason", finishReason)
		return "", fmt.Errorf("empty response, finish reason: %s", finishReason)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("response text is empty")
	}
	return text, nil
}

// asAPIError matches both the value and pointer forms the SDK may return.
func asAPIError(err error, target *genai.APIError) bool {
	if errors.As(err, target) {
		return true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}

func classify(err error) Fault {
	var apiErr genai.APIError
	if asAPIError(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests {
			return FaultRateLimited
		}
		return FaultUpstreamError
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return FaultConnectivity
	case errors.As(err, &netErr):
		return FaultConnectivity
	default:
		return FaultUnknown
	}
}
