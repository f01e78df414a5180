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

const negativeHandlerName = "negative_handler"

// escalationKeywords force escalation when present in a complaint.
var escalationKeywords = []string{
	"fraud",
	"unauthorized",
	"stolen",
	"lawsuit",
	"lawyer",
	"attorney",
	"legal",
	"sue",
	"compensation",
	"report",
	"authorities",
	"police",
	"security breach",
	"identity theft",
}

// highPriorityKeywords bump a complaint to high priority without
// escalating it.
var highPriorityKeywords = []string{
	"urgent",
	"immediately",
	"asap",
	"emergency",
	"cannot access",
	"locked out",
	"missing money",
	"large amount",
}

// NegativeHandler responds to complaints. It checks for escalation
// triggers, sets priority from the message content, and cites relevant
// policies in the prompt.
type NegativeHandler struct {
	deps *Deps
}

// NewNegativeHandler builds the complaint handler.
func NewNegativeHandler(deps *Deps) *NegativeHandler {
	return &NegativeHandler{deps: deps}
}

func (h *NegativeHandler) Name() string { return negativeHandlerName }

// Handle drafts an empathetic complaint response.
func (h *NegativeHandler) Handle(ctx context.Context, ticket *store.Ticket) (*HandlerResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.handle_negative",
		trace.WithAttributes(attribute.String("ticket_id", ticket.ID)))
	defer span.End()

	h.deps.Log.Info().Str("ticket_id", ticket.ID).Msg("handling complaint")

	message := ticket.CustomerMessage
	escalate, reason := checkEscalation(message)
	priority := complaintPriority(message, escalate)

	relevant := h.deps.Policies.Search(message, policy.DefaultMaxResults)
	userMessage := message
	if policyContext := policy.FormatForPrompt(relevant); policyContext != "" {
		userMessage = message + "\n\n" + policyContext
	}

	resp, err := callModel(ctx, h.deps, negativeHandlerName, ticket.ID, store.ActionRespond, &llm.Request{
		SystemPrompt: negativeSystemPrompt,
		UserMessage:  userMessage,
		MaxTokens:    768,
		Temperature:  0.6,
	})
	if err != nil {
		return nil, err
	}

	h.deps.Log.Info().
		Str("ticket_id", ticket.ID).
		Int("response_length", len(resp.Content)).
		Int("priority", int(priority)).
		Bool("escalation_needed", escalate).
		Int("policies_cited", len(relevant)).
		Msg("complaint response generated")

	return &HandlerResponse{
		Response:           sanitizeResponse(resp.Content),
		Priority:           priority,
		RequiresEscalation: escalate,
		EscalationReason:   reason,
		CitedPolicies:      relevant,
	}, nil
}

func checkEscalation(message string) (bool, string) {
	lower := strings.ToLower(message)
	for _, keyword := range escalationKeywords {
		if strings.Contains(lower, keyword) {
			return true, fmt.Sprintf("Message contains escalation trigger: '%s'", keyword)
		}
	}
	return false, ""
}

// complaintPriority defaults complaints to high; escalations are critical.
func complaintPriority(message string, escalate bool) store.Priority {
	if escalate {
		return store.PriorityCritical
	}
	lower := strings.ToLower(message)
	for _, keyword := range highPriorityKeywords {
		if strings.Contains(lower, keyword) {
			return store.PriorityHigh
		}
	}
	return store.PriorityHigh
}
