// Package llm contains the model-provider boundary: the Provider interface,
// the Anthropic and OpenAI HTTP clients, and a retrying Client wrapper that
// callers in the agent pipeline use for every completion.
package llm

import (
	"context"
	"time"

	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
)

var tracer = supportflowotel.Tracer("github.com/kmufti7/intelliflow-supportflow/internal/llm")

// TimeoutLLMCall bounds a single completion request.
const TimeoutLLMCall = 60 * time.Second

// Provider is the interface all LLM providers implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single completion request: one system prompt, one user
// message, and the sampling budget for the call.
type Request struct {
	Model        string
	SystemPrompt string
	UserMessage  string
	MaxTokens    int
	Temperature  float64
}

// Response is a completed generation with token accounting.
type Response struct {
	Content      string
	Model        string
	Provider     string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	FinishReason string
}
