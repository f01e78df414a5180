package agent

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

const queryHandlerName = "query_handler"

// historyLimit caps how many previous tickets feed the customer context.
const historyLimit = 5

// mediumPriorityKeywords mark queries about higher-stakes operations.
var mediumPriorityKeywords = []string{
	"how do i transfer",
	"wire transfer",
	"international",
	"investment",
	"mortgage",
	"loan application",
	"account opening",
}

// QueryHandler answers informational questions. It enriches the prompt
// with the customer's recent ticket history and relevant policies.
type QueryHandler struct {
	deps *Deps
}

// NewQueryHandler builds the query handler.
func NewQueryHandler(deps *Deps) *QueryHandler {
	return &QueryHandler{deps: deps}
}

func (h *QueryHandler) Name() string { return queryHandlerName }

// Handle drafts an answer to a customer question.
func (h *QueryHandler) Handle(ctx context.Context, ticket *store.Ticket) (*HandlerResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.handle_query",
		trace.WithAttributes(attribute.String("ticket_id", ticket.ID)))
	defer span.End()

	h.deps.Log.Info().Str("ticket_id", ticket.ID).Msg("handling query")

	message := ticket.CustomerMessage
	priority := queryPriority(message)

	customerContext, err := h.customerContext(ctx, ticket)
	if err != nil {
		return nil, err
	}

	relevant := h.deps.Policies.Search(message, policy.DefaultMaxResults)
	policyContext := policy.FormatForPrompt(relevant)

	var contextParts []string
	if customerContext != "" {
		contextParts = append(contextParts, customerContext)
		h.deps.Log.Info().
			Str("ticket_id", ticket.ID).
			Int("context_length", len(customerContext)).
			Msg("using customer context")
	}
	if policyContext != "" {
		contextParts = append(contextParts, policyContext)
	}

	userMessage := message
	if len(contextParts) > 0 {
		userMessage = strings.Join(contextParts, "\n\n") + "\n\n[Current query:]\n" + message
	}

	resp, err := callModel(ctx, h.deps, queryHandlerName, ticket.ID, store.ActionRespond, &llm.Request{
		SystemPrompt: querySystemPrompt,
		UserMessage:  userMessage,
		MaxTokens:    512,
		Temperature:  0.7,
	})
	if err != nil {
		return nil, err
	}

	h.deps.Log.Info().
		Str("ticket_id", ticket.ID).
		Int("response_length", len(resp.Content)).
		Int("priority", int(priority)).
		Int("policies_cited", len(relevant)).
		Msg("query response generated")

	return &HandlerResponse{
		Response:      sanitizeResponse(resp.Content),
		Priority:      priority,
		CitedPolicies: relevant,
	}, nil
}

// customerContext summarizes the customer's recent tickets, excluding the
// current one.
func (h *QueryHandler) customerContext(ctx context.Context, ticket *store.Ticket) (string, error) {
	previous, err := h.deps.DB.TicketsByCustomer(ctx, ticket.CustomerID, 0)
	if err != nil {
		return "", err
	}

	var history []*store.Ticket
	for _, t := range previous {
		if t.ID == ticket.ID {
			continue
		}
		history = append(history, t)
		if len(history) == historyLimit {
			break
		}
	}
	if len(history) == 0 {
		return "", nil
	}

	lines := []string{"[Previous interactions with this customer:]"}
	for _, t := range history {
		preview := t.CustomerMessage
		if runes := []rune(preview); len(runes) > 100 {
			preview = string(runes[:100])
		}
		lines = append(lines, fmt.Sprintf("- [%s] %s... (Status: %s)",
			strings.ToUpper(string(t.Category)), preview, t.Status))
	}
	return strings.Join(lines, "\n"), nil
}

func queryPriority(message string) store.Priority {
	lower := strings.ToLower(message)
	for _, keyword := range mediumPriorityKeywords {
		if strings.Contains(lower, keyword) {
			return store.PriorityMedium
		}
	}
	return store.PriorityLow
}
