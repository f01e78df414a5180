package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/trace"

	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
)

// OpenAIProvider implements Provider for the OpenAI chat completions API.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey)}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider with a custom base
// URL (e.g. for tests pointing at a mock server). baseURL is scheme+host
// without path; the client appends /v1 as needed.
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL + "/v1"
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(
			supportflowotel.GenAISystem.String("openai"),
			supportflowotel.GenAIRequestModel.String(req.Model),
			supportflowotel.GenAIRequestTemperature.Float64(req.Temperature),
			supportflowotel.GenAIRequestMaxTokens.Int(req.MaxTokens),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserMessage},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		perr := &ProviderError{Provider: "openai", Model: req.Model, Message: err.Error(), Err: err}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			perr.StatusCode = apiErr.HTTPStatusCode
		}
		return nil, perr
	}

	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: "openai", Model: req.Model, Message: "no choices returned"}
	}

	cachedTokens := 0
	if resp.Usage.PromptTokensDetails != nil {
		cachedTokens = resp.Usage.PromptTokensDetails.CachedTokens
	}

	span.SetAttributes(
		supportflowotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		supportflowotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		supportflowotel.GenAIUsageCachedTokens.Int(cachedTokens),
		supportflowotel.GenAIResponseFinishReason.String(string(resp.Choices[0].FinishReason)),
		supportflowotel.GenAIResponseID.String(resp.ID),
	)

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		Provider:     "openai",
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CachedTokens: cachedTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}
