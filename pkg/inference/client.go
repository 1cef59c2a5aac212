package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/teslashibe/go-voiceagents/internal/httpc"
)

const providerClient = "client"

// Client is the go-openai backed inference provider.
// Works with any OpenAI-compatible API (Gemini, OpenAI, Ollama, vLLM, etc.).
type Client struct {
	api    *openai.Client
	config *Config
	logger *slog.Logger
}

// NewClient creates a new inference client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = httpc.NewClient(cfg.Timeout)

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		config: cfg,
		logger: cfg.Logger.With("component", "inference.client"),
	}, nil
}

// Chat generates a chat completion, retrying rate limits and server errors.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	apiReq := c.buildRequest(req)

	var (
		resp    openai.ChatCompletionResponse
		lastErr error
	)
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			}
		}

		var err error
		resp, err = c.api.CreateChatCompletion(ctx, apiReq)
		if err == nil {
			lastErr = nil
			break
		}

		lastErr = mapError(err)
		var apiErr *APIError
		if !errors.As(lastErr, &apiErr) || !apiErr.IsRetryable() {
			return nil, lastErr
		}
		c.logger.Warn("retrying chat completion",
			"attempt", attempt+1,
			"status", apiErr.StatusCode,
		)
	}
	if lastErr != nil {
		return nil, lastErr
	}

	if len(resp.Choices) == 0 {
		return nil, WrapError(providerClient, ErrNoChoices)
	}

	choice := resp.Choices[0]
	return &ChatResponse{
		Message: Message{
			Role:      RoleAssistant,
			Content:   choice.Message.Content,
			ToolCalls: parseToolCalls(choice.Message.ToolCalls),
		},
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Model:     resp.Model,
		LatencyMs: time.Since(start).Milliseconds(),
	}, nil
}

// Health checks API connectivity by listing models.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return WrapError(providerClient, fmt.Errorf("health check: %w", mapError(err)))
	}
	return nil
}

// Close releases resources.
func (c *Client) Close() error {
	return nil
}

// Model returns the default model name.
func (c *Client) Model() string {
	return c.config.Model
}

func (c *Client) buildRequest(req *ChatRequest) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		m := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages[i] = m
	}

	apiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}
	apiReq.MaxTokens = maxTokens

	temp := req.Temperature
	if temp == 0 {
		temp = c.config.Temperature
	}
	apiReq.Temperature = float32(temp)

	for _, t := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	if len(apiReq.Tools) > 0 {
		toolChoice := req.ToolChoice
		if toolChoice == "" {
			toolChoice = "auto"
		}
		apiReq.ToolChoice = toolChoice
	}

	return apiReq
}

// mapError converts go-openai errors into APIError so callers can inspect status codes.
func mapError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := ""
		if s, ok := apiErr.Code.(string); ok {
			code = s
		}
		return &APIError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Code:       code,
			Provider:   providerClient,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := reqErr.HTTPStatus
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &APIError{
			StatusCode: reqErr.HTTPStatusCode,
			Message:    msg,
			Provider:   providerClient,
		}
	}

	return WrapError(providerClient, err)
}

// parseToolCalls converts API tool calls to our format.
func parseToolCalls(calls []openai.ToolCall) []ToolCall {
	if len(calls) == 0 {
		return nil
	}
	result := make([]ToolCall, len(calls))
	for i, call := range calls {
		result[i] = ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		}
	}
	return result
}

// Verify Client implements Provider at compile time.
var _ Provider = (*Client)(nil)
