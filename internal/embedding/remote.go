package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimate/memorycore/internal/errs"
)

const openRouterEmbeddingsURL = "https://openrouter.ai/api/v1/embeddings"

// remoteRequest/remoteResponse mirror the OpenRouter-style embeddings
// JSON shape, the same family of API internal/llm's OpenRouterClient
// talks to, just pointed at the embeddings endpoint instead of chat
// completions.
type remoteRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type remoteResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// RemoteClient is a Client implementation over a hosted batch-embeddings
// endpoint (OpenRouter-compatible).
type RemoteClient struct {
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	httpClient *http.Client
	timeout    time.Duration
}

// NewRemoteClient builds a client for model. dimension is the embedding
// width the model is known to produce (e.g. 1536), used to validate
// responses and to let callers size buffers ahead of the first call. A
// nil httpClient defaults to http.DefaultClient.
func NewRemoteClient(apiKey, model string, dimension int, httpClient *http.Client) *RemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RemoteClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    openRouterEmbeddingsURL,
		dimension:  dimension,
		httpClient: httpClient,
		timeout:    30 * time.Second,
	}
}

// NewRemoteClientWithBaseURL is NewRemoteClient with an overridable
// endpoint, for tests that stand up a local server.
func NewRemoteClientWithBaseURL(apiKey, model string, dimension int, baseURL string, httpClient *http.Client) *RemoteClient {
	c := NewRemoteClient(apiKey, model, dimension, httpClient)
	c.baseURL = baseURL
	return c
}

// Dimension returns the configured embedding width.
func (c *RemoteClient) Dimension() int {
	return c.dimension
}

// Embed batch-embeds texts in a single round trip.
func (c *RemoteClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(remoteRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: err}
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if callCtx.Err() != nil {
			return nil, &errs.LLMError{Kind: errs.LLMTimeout, Err: err}
		}
		return nil, &errs.LLMError{Kind: errs.LLMServerError, Err: err}
	}
	defer resp.Body.Close()

	var parsed remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &errs.LLMError{Kind: errs.LLMParseError, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &errs.LLMError{Kind: errs.LLMAuthError, Err: fmt.Errorf("embeddings: status %d", resp.StatusCode)}
	case http.StatusTooManyRequests:
		return nil, &errs.LLMError{Kind: errs.LLMRateLimit, Err: fmt.Errorf("embeddings: status %d", resp.StatusCode)}
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, &errs.LLMError{Kind: errs.LLMInvalidParams, Err: fmt.Errorf("embeddings: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 500 {
		return nil, &errs.LLMError{Kind: errs.LLMServerError, Err: fmt.Errorf("embeddings: status %d", resp.StatusCode)}
	}
	if parsed.Error != nil {
		return nil, &errs.LLMError{Kind: errs.LLMServerError, Err: fmt.Errorf("embeddings: %s", parsed.Error.Message)}
	}
	if len(parsed.Data) != len(texts) {
		return nil, &errs.LLMError{Kind: errs.LLMParseError, Err: fmt.Errorf("embeddings: expected %d vectors, got %d", len(texts), len(parsed.Data))}
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &errs.LLMError{Kind: errs.LLMParseError, Err: fmt.Errorf("embeddings: index %d out of range", d.Index)}
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, &errs.LLMError{Kind: errs.LLMParseError, Err: fmt.Errorf("embeddings: dimension mismatch: got %d, expected %d", len(d.Embedding), c.dimension)}
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
