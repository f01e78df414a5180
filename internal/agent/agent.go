// Package agent implements the support workflow: a classifier that labels
// incoming messages, category handlers that draft responses, and an
// orchestrator that runs a message through the full pipeline against a
// ticket.
package agent

import (
	"context"
	"html"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/kmufti7/intelliflow-supportflow/internal/audit"
	"github.com/kmufti7/intelliflow-supportflow/internal/costs"
	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

var tracer = supportflowotel.Tracer("github.com/kmufti7/intelliflow-supportflow/internal/agent")

// Deps carries the shared services every agent needs. All agents receive
// the same instance set; nothing is resolved from globals.
type Deps struct {
	DB       *store.DB
	LLM      *llm.Client
	Costs    *costs.Tracker
	Audit    *audit.Service
	Policies *policy.Store
	Log      zerolog.Logger
}

// HandlerResponse is what a category handler produces for a ticket.
type HandlerResponse struct {
	Response           string
	Priority           store.Priority
	RequiresEscalation bool
	EscalationReason   string
	CitedPolicies      []*policy.Policy
}

// Handler drafts a customer-facing response for one message category.
type Handler interface {
	Name() string
	Handle(ctx context.Context, ticket *store.Ticket) (*HandlerResponse, error)
}

// callModel runs one LLM call under an audit tracker and records its token
// cost. The tracker writes exactly one trail entry whether the call
// succeeds or fails.
func callModel(ctx context.Context, d *Deps, agentName, ticketID string, action store.Action, req *llm.Request) (*llm.Response, error) {
	tracker := d.Audit.StartAction(ticketID, agentName, action, audit.Truncate(req.UserMessage))
	defer tracker.Close(ctx)

	resp, err := d.LLM.Complete(ctx, req)
	if err != nil {
		tracker.Fail(err)
		return nil, err
	}

	if _, err := d.Costs.Track(ctx, ticketID, agentName, resp); err != nil {
		tracker.Fail(err)
		return nil, err
	}

	tracker.SetOutput(audit.Truncate(resp.Content), "", nil)

	d.Log.Debug().
		Str("ticket_id", ticketID).
		Str("agent", agentName).
		Str("action", string(action)).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Msg("llm call complete")
	return resp, nil
}

var responseSanitizer = bluemonday.StrictPolicy()

// sanitizeResponse strips any HTML a model may have emitted from a
// customer-facing response.
func sanitizeResponse(s string) string {
	return html.UnescapeString(responseSanitizer.Sanitize(s))
}
