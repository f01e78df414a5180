package agent

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

const positiveHandlerName = "positive_handler"

// PositiveHandler responds to satisfied customers. Always resolves at
// minimal priority, never escalates.
type PositiveHandler struct {
	deps *Deps
}

// NewPositiveHandler builds the positive-feedback handler.
func NewPositiveHandler(deps *Deps) *PositiveHandler {
	return &PositiveHandler{deps: deps}
}

func (h *PositiveHandler) Name() string { return positiveHandlerName }

// Handle drafts an appreciation response.
func (h *PositiveHandler) Handle(ctx context.Context, ticket *store.Ticket) (*HandlerResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.handle_positive",
		trace.WithAttributes(attribute.String("ticket_id", ticket.ID)))
	defer span.End()

	h.deps.Log.Info().Str("ticket_id", ticket.ID).Msg("handling positive feedback")

	resp, err := callModel(ctx, h.deps, positiveHandlerName, ticket.ID, store.ActionRespond, &llm.Request{
		SystemPrompt: positiveSystemPrompt,
		UserMessage:  ticket.CustomerMessage,
		MaxTokens:    512,
		Temperature:  0.7,
	})
	if err != nil {
		return nil, err
	}

	h.deps.Log.Info().
		Str("ticket_id", ticket.ID).
		Int("response_length", len(resp.Content)).
		Msg("positive response generated")

	return &HandlerResponse{
		Response: sanitizeResponse(resp.Content),
		Priority: store.PriorityMinimal,
	}, nil
}
