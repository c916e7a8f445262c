package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aimate/memorycore/internal/errs"
)

// AnthropicClient is the narrow Client implementation built on
// anthropic-sdk-go. Construction and the New/Messages.New call shape are
// grounded in intelligencedev-manifold/internal/llm/anthropic/client.go;
// unlike that client this one is a single-turn prompt-in/text-out
// adapter with no tool calling, matching what TierHandlers and
// LifecycleManager's reflection call actually need.
type AnthropicClient struct {
	sdk   anthropic.Client
	model string
}

// NewAnthropicClient builds a client for model (e.g. Claude's latest
// Sonnet alias) using apiKey. A nil httpClient defaults to
// http.DefaultClient.
func NewAnthropicClient(apiKey, model string, httpClient *http.Client) *AnthropicClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithHTTPClient(httpClient),
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicClient{
		sdk:   anthropic.NewClient(opts...),
		model: model,
	}
}

// Call issues a single-turn completion and maps SDK failures onto the
// spec's typed failure taxonomy (TIMEOUT, RATE_LIMIT, SERVER_ERROR,
// AUTH_ERROR, INVALID_PARAMS).
func (c *AnthropicClient) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	resp, err := c.sdk.Messages.New(callCtx, params)
	if err != nil {
		if callCtx.Err() != nil {
			return Response{}, &errs.LLMError{Kind: errs.LLMTimeout, Err: err}
		}
		return Response{}, &errs.LLMError{Kind: classifyAnthropicError(err), Err: err}
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}

	return Response{
		Text:         sb.String(),
		FinishReason: string(resp.StopReason),
		Usage: Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// classifyAnthropicError maps a non-timeout SDK failure onto the spec's
// taxonomy using the status code anthropic-sdk-go attaches to *anthropic.Error,
// the same status-code switch openrouter.go runs over its raw HTTP response.
func classifyAnthropicError(err error) errs.LLMErrorKind {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return errs.LLMServerError
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.LLMAuthError
	case http.StatusTooManyRequests:
		return errs.LLMRateLimit
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return errs.LLMInvalidParams
	default:
		return errs.LLMServerError
	}
}
