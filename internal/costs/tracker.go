// Package costs computes and records token cost for model calls. Pricing
// rows are cached per process; costs are computed at record time and never
// restated when pricing changes.
package costs

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

var tracer = supportflowotel.Tracer("github.com/kmufti7/intelliflow-supportflow/internal/costs")

// Tracker records token usage with costs derived from the pricing table.
type Tracker struct {
	db  *store.DB
	log zerolog.Logger

	mu    sync.Mutex
	cache map[string]*store.ModelPricing
}

// NewTracker builds a tracker over the given store.
func NewTracker(db *store.DB, log zerolog.Logger) *Tracker {
	return &Tracker{
		db:    db,
		log:   log.With().Str("component", "costs").Logger(),
		cache: make(map[string]*store.ModelPricing),
	}
}

// Track records one model response against a ticket. Unknown models are
// recorded with zero cost so token counts are never lost.
func (t *Tracker) Track(ctx context.Context, ticketID, agentName string, resp *llm.Response) (*store.TokenUsage, error) {
	ctx, span := tracer.Start(ctx, "costs.track",
		trace.WithAttributes(
			attribute.String("ticket_id", ticketID),
			attribute.String("agent_name", agentName),
			attribute.String(string(supportflowotel.GenAIRequestModel), resp.Model),
		))
	defer span.End()

	pricing, err := t.pricingFor(ctx, resp.Model)
	if err != nil {
		return nil, err
	}

	usage := &store.TokenUsage{
		TicketID:     ticketID,
		AgentName:    agentName,
		ModelName:    resp.Model,
		Provider:     resp.Provider,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		CachedTokens: resp.CachedTokens,
	}

	if pricing != nil {
		uncached := resp.InputTokens - resp.CachedTokens
		if uncached < 0 {
			uncached = 0
		}
		usage.InputCostUSD = float64(uncached)/1000*pricing.InputCostPer1K +
			float64(resp.CachedTokens)/1000*pricing.CachedInputCostPer1K
		usage.OutputCostUSD = float64(resp.OutputTokens) / 1000 * pricing.OutputCostPer1K
	} else {
		t.log.Warn().Str("model", resp.Model).Msg("no pricing for model, recording zero cost")
	}

	if err := t.db.AppendUsage(ctx, usage); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int(string(supportflowotel.GenAIUsageInputTokens), resp.InputTokens),
		attribute.Int(string(supportflowotel.GenAIUsageOutputTokens), resp.OutputTokens),
		attribute.Float64("cost_usd", usage.TotalCostUSD()),
	)
	t.log.Debug().
		Str("ticket_id", ticketID).
		Str("agent", agentName).
		Str("model", resp.Model).
		Int("input_tokens", resp.InputTokens).
		Int("output_tokens", resp.OutputTokens).
		Float64("cost_usd", usage.TotalCostUSD()).
		Msg("token usage recorded")
	return usage, nil
}

func (t *Tracker) pricingFor(ctx context.Context, model string) (*store.ModelPricing, error) {
	t.mu.Lock()
	if p, ok := t.cache[model]; ok {
		t.mu.Unlock()
		return p, nil
	}
	t.mu.Unlock()

	p, err := t.db.ModelPricingFor(ctx, model)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.cache[model] = p
	t.mu.Unlock()
	return p, nil
}

// ClearCache drops cached pricing, forcing a re-read on next use. Call
// after updating the pricing table.
func (t *Tracker) ClearCache() {
	t.mu.Lock()
	t.cache = make(map[string]*store.ModelPricing)
	t.mu.Unlock()
}

// TicketCost returns the total recorded cost for one ticket.
func (t *Tracker) TicketCost(ctx context.Context, ticketID string) (float64, error) {
	return t.db.TicketCost(ctx, ticketID)
}

// Summary returns aggregate usage across all tickets.
func (t *Tracker) Summary(ctx context.Context) (*store.UsageSummary, error) {
	return t.db.GlobalUsageSummary(ctx)
}

// CostByAgent returns total cost grouped by agent name.
func (t *Tracker) CostByAgent(ctx context.Context) (map[string]float64, error) {
	return t.db.CostByAgent(ctx)
}

// CostByModel returns total cost grouped by model name.
func (t *Tracker) CostByModel(ctx context.Context) (map[string]float64, error) {
	return t.db.CostByModel(ctx)
}
