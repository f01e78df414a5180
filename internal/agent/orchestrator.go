package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

// Metadata keys set on tickets during processing.
const (
	MetaClassificationConfidence = "classification_confidence"
	MetaClassificationReasoning  = "classification_reasoning"
	MetaEscalationReason         = "escalation_reason"
	MetaTotalCostUSD             = "total_cost_usd"
)

// Result is the outcome of running one message through the pipeline.
type Result struct {
	Ticket             *store.Ticket    `json:"ticket"`
	Classification     *Classification  `json:"classification"`
	Response           string           `json:"response"`
	HandlerUsed        string           `json:"handler_used"`
	RequiresEscalation bool             `json:"requires_escalation"`
	EscalationReason   string           `json:"escalation_reason,omitempty"`
	CitedPolicies      []*policy.Policy `json:"cited_policies,omitempty"`
}

// TicketDetail bundles a ticket with its audit trail and token usage.
type TicketDetail struct {
	Ticket       *store.Ticket       `json:"ticket"`
	AuditTrail   []*store.AuditEntry `json:"audit_trail"`
	TokenUsage   []*store.TokenUsage `json:"token_usage"`
	TotalCostUSD float64             `json:"total_cost_usd"`
}

// Statistics aggregates system-wide counters.
type Statistics struct {
	Tickets     *store.TicketStats  `json:"tickets"`
	Audit       *store.AuditStats   `json:"audit"`
	Usage       *store.UsageSummary `json:"usage"`
	CostByAgent map[string]float64  `json:"cost_by_agent"`
}

// Orchestrator runs the classify-then-handle workflow. The handler table
// is closed: one handler per category, fixed at construction.
type Orchestrator struct {
	deps       *Deps
	classifier *Classifier
	handlers   map[store.Category]Handler
	injector   *faultInjector
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFaultRand sets the random source used for fault injection, for
// deterministic chaos drills.
func WithFaultRand(rng *rand.Rand) Option {
	return func(o *Orchestrator) {
		o.injector = newFaultInjector(rng)
	}
}

// NewOrchestrator wires the classifier and the three category handlers
// over one shared dependency set.
func NewOrchestrator(deps *Deps, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		deps:       deps,
		classifier: NewClassifier(deps),
		handlers: map[store.Category]Handler{
			store.CategoryPositive: NewPositiveHandler(deps),
			store.CategoryNegative: NewNegativeHandler(deps),
			store.CategoryQuery:    NewQueryHandler(deps),
		},
		injector: newFaultInjector(nil),
	}
	for _, opt := range opts {
		opt(o)
	}
	deps.Log.Info().Msg("orchestrator initialized")
	return o
}

// ProcessMessage runs a customer message through the complete workflow:
// create ticket, classify, route, respond, persist. With chaosMode on,
// each stage may fail with an injected fault; faults propagate without an
// audit entry, while real failures are recorded before returning.
func (o *Orchestrator) ProcessMessage(ctx context.Context, customerID, message string, chaosMode bool) (*Result, error) {
	ctx, span := tracer.Start(ctx, "agent.process_message",
		trace.WithAttributes(
			attribute.String("customer_id", customerID),
			attribute.Bool("chaos_mode", chaosMode),
		))
	defer span.End()

	o.deps.Log.Info().
		Str("customer_id", customerID).
		Int("message_length", len(message)).
		Bool("chaos_mode", chaosMode).
		Msg("processing message")

	// Category is provisional until classification runs.
	ticket := &store.Ticket{
		CustomerID:      customerID,
		CustomerMessage: message,
		Category:        store.CategoryQuery,
	}
	if err := o.deps.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, err
	}

	result, err := o.run(ctx, ticket, message, chaosMode)
	if err == nil {
		return result, nil
	}

	var fault *FaultError
	if errors.As(err, &fault) {
		return nil, err
	}

	o.deps.Log.Error().
		Str("ticket_id", ticket.ID).
		Err(err).
		Msg("message processing failed")

	if logErr := o.deps.Audit.LogAction(ctx, &store.AuditEntry{
		TicketID:      ticket.ID,
		AgentName:     "orchestrator",
		Action:        store.ActionRespond,
		InputSummary:  fmt.Sprintf("Processing message for ticket %s", ticket.ID),
		OutputSummary: "Processing failed",
		Success:       false,
		ErrorMessage:  err.Error(),
	}); logErr != nil {
		o.deps.Log.Error().Err(logErr).Msg("failed to record processing failure")
	}
	return nil, err
}

func (o *Orchestrator) run(ctx context.Context, ticket *store.Ticket, message string, chaosMode bool) (*Result, error) {
	if err := o.maybeFault(StageTicketService, chaosMode); err != nil {
		return nil, err
	}

	if err := o.maybeFault(StageClassifier, chaosMode); err != nil {
		return nil, err
	}
	classification, err := o.classifier.Classify(ctx, ticket.ID, message)
	if err != nil {
		return nil, err
	}

	ticket.Category = classification.Category
	ticket.Metadata[MetaClassificationConfidence] = classification.Confidence
	ticket.Metadata[MetaClassificationReasoning] = classification.Reasoning
	if err := o.deps.DB.UpdateTicket(ctx, ticket); err != nil {
		return nil, err
	}

	if err := o.maybeFault(StageRouter, chaosMode); err != nil {
		return nil, err
	}
	handler, ok := o.handlers[classification.Category]
	if !ok {
		return nil, fmt.Errorf("no handler for category %q", classification.Category)
	}

	confidence := classification.Confidence
	if err := o.deps.Audit.LogAction(ctx, &store.AuditEntry{
		TicketID:        ticket.ID,
		AgentName:       "orchestrator",
		Action:          store.ActionRoute,
		InputSummary:    "category=" + string(classification.Category),
		OutputSummary:   "handler=" + handler.Name(),
		Reasoning:       fmt.Sprintf("Routing to %s based on classification", handler.Name()),
		ConfidenceScore: &confidence,
		Success:         true,
	}); err != nil {
		return nil, err
	}

	if err := o.maybeFault(handler.Name(), chaosMode); err != nil {
		return nil, err
	}
	handlerResp, err := handler.Handle(ctx, ticket)
	if err != nil {
		return nil, err
	}

	ticket.AgentResponse = handlerResp.Response
	ticket.HandlerAgent = handler.Name()
	ticket.Priority = handlerResp.Priority
	ticket.Status = store.StatusResolved
	if handlerResp.RequiresEscalation {
		ticket.Status = store.StatusEscalated
		ticket.Metadata[MetaEscalationReason] = handlerResp.EscalationReason
	}

	if err := o.maybeFault(StageDatabase, chaosMode); err != nil {
		return nil, err
	}
	if err := o.deps.DB.UpdateTicket(ctx, ticket); err != nil {
		return nil, err
	}

	totalCost, err := o.deps.Costs.TicketCost(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	ticket.Metadata[MetaTotalCostUSD] = totalCost

	o.deps.Log.Info().
		Str("ticket_id", ticket.ID).
		Str("customer_id", ticket.CustomerID).
		Str("category", string(classification.Category)).
		Str("handler", handler.Name()).
		Int("priority", int(handlerResp.Priority)).
		Bool("escalated", handlerResp.RequiresEscalation).
		Float64("total_cost_usd", totalCost).
		Msg("message processed")

	return &Result{
		Ticket:             ticket,
		Classification:     classification,
		Response:           handlerResp.Response,
		HandlerUsed:        handler.Name(),
		RequiresEscalation: handlerResp.RequiresEscalation,
		EscalationReason:   handlerResp.EscalationReason,
		CitedPolicies:      handlerResp.CitedPolicies,
	}, nil
}

func (o *Orchestrator) maybeFault(stage string, chaosMode bool) error {
	if !chaosMode {
		return nil
	}
	return o.injector.roll(stage)
}

// TicketDetails returns a ticket with its full audit trail, usage records,
// and total cost.
func (o *Orchestrator) TicketDetails(ctx context.Context, ticketID string) (*TicketDetail, error) {
	ticket, err := o.deps.DB.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	trail, err := o.deps.Audit.Trail(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	usage, err := o.deps.DB.UsageByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	totalCost, err := o.deps.Costs.TicketCost(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return &TicketDetail{
		Ticket:       ticket,
		AuditTrail:   trail,
		TokenUsage:   usage,
		TotalCostUSD: totalCost,
	}, nil
}

// SystemStatistics returns aggregate ticket, audit, and usage counters.
func (o *Orchestrator) SystemStatistics(ctx context.Context) (*Statistics, error) {
	tickets, err := o.deps.DB.TicketStatistics(ctx)
	if err != nil {
		return nil, err
	}
	auditStats, err := o.deps.Audit.Statistics(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := o.deps.Costs.Summary(ctx)
	if err != nil {
		return nil, err
	}
	costByAgent, err := o.deps.Costs.CostByAgent(ctx)
	if err != nil {
		return nil, err
	}
	return &Statistics{
		Tickets:     tickets,
		Audit:       auditStats,
		Usage:       usage,
		CostByAgent: costByAgent,
	}, nil
}
