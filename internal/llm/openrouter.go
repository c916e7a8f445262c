package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimate/memorycore/internal/errs"
)

const openRouterURL = "https://openrouter.ai/api/v1/chat/completions"

// openRouterRequest/openRouterResponse mirror the JSON shape
// pkg/batch/openrouter.go built for syscall/js fetch; reworked here onto
// net/http since the memory core runs as a native process, not in-browser.
type openRouterRequest struct {
	Model       string          `json:"model"`
	Messages    []openRouterMsg `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

type openRouterMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// OpenRouterClient is a Client implementation over OpenRouter's
// chat-completions endpoint.
type OpenRouterClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// NewOpenRouterClient builds a client for model using apiKey. A nil
// httpClient defaults to http.DefaultClient.
func NewOpenRouterClient(apiKey, model string, httpClient *http.Client) *OpenRouterClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OpenRouterClient{apiKey: apiKey, model: model, baseURL: openRouterURL, httpClient: httpClient}
}

// NewOpenRouterClientWithBaseURL is NewOpenRouterClient with an
// overridable endpoint, for tests that stand up a local server.
func NewOpenRouterClientWithBaseURL(apiKey, model, baseURL string, httpClient *http.Client) *OpenRouterClient {
	c := NewOpenRouterClient(apiKey, model, httpClient)
	c.baseURL = baseURL
	return c
}

// Call issues a single non-streaming completion request.
func (c *OpenRouterClient) Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reqBody := openRouterRequest{
		Model:       c.model,
		Messages:    []openRouterMsg{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return Response{}, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: err}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return Response{}, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return Response{}, &errs.LLMError{Kind: errs.LLMTimeout, Err: err}
		}
		return Response{}, &errs.LLMError{Kind: errs.LLMServerError, Err: err}
	}
	defer resp.Body.Close()

	var parsed openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Response{}, &errs.LLMError{Kind: errs.LLMParseError, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Response{}, &errs.LLMError{Kind: errs.LLMAuthError, Err: fmt.Errorf("openrouter: status %d", resp.StatusCode)}
	case http.StatusTooManyRequests:
		return Response{}, &errs.LLMError{Kind: errs.LLMRateLimit, Err: fmt.Errorf("openrouter: status %d", resp.StatusCode)}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return Response{}, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: fmt.Errorf("openrouter: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return Response{}, &errs.LLMError{Kind: errs.LLMServerError, Err: fmt.Errorf("openrouter: status %d", resp.StatusCode)}
	}
	if parsed.Error != nil {
		return Response{}, &errs.LLMError{Kind: errs.LLMServerError, Err: fmt.Errorf("openrouter: %s", parsed.Error.Message)}
	}
	if len(parsed.Choices) == 0 {
		return Response{}, &errs.LLMError{Kind: errs.LLMParseError, Err: fmt.Errorf("openrouter: empty choices")}
	}

	choice := parsed.Choices[0]
	return Response{
		Text:         choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
	}, nil
}
