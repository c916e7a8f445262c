// Package llm is the narrow collaborator contract the spec's external
// interfaces name: call(prompt, max_tokens, temperature, timeout_seconds)
// -> {text, finish_reason, usage}, with a typed failure taxonomy UCM
// retries selectively on.
package llm

import (
	"context"
	"time"
)

// Usage mirrors the spec's external-interface response shape.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is one completed LLM call.
type Response struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Client is the contract TierHandlers' Tier 3 and LifecycleManager's
// daily reflection both call through.
type Client interface {
	Call(ctx context.Context, prompt string, maxTokens int, temperature float64, timeout time.Duration) (Response, error)
}
