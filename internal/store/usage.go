package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TokenUsage is one append-only record of a model call's token counts and
// the cost computed at creation time. Costs are never recalculated
// retroactively, even if pricing later changes.
type TokenUsage struct {
	ID            string    `json:"id"`
	TicketID      string    `json:"ticket_id"`
	AgentName     string    `json:"agent_name"`
	ModelName     string    `json:"model_name"`
	Provider      string    `json:"provider"`
	InputTokens   int       `json:"input_tokens"`
	OutputTokens  int       `json:"output_tokens"`
	CachedTokens  int       `json:"cached_tokens"`
	InputCostUSD  float64   `json:"input_cost_usd"`
	OutputCostUSD float64   `json:"output_cost_usd"`
	CreatedAt     time.Time `json:"created_at"`
}

// TotalTokens returns input + output tokens.
func (u *TokenUsage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// TotalCostUSD returns input + output cost.
func (u *TokenUsage) TotalCostUSD() float64 {
	return u.InputCostUSD + u.OutputCostUSD
}

// AppendUsage inserts one usage record, filling ID and CreatedAt when unset.
func (s *DB) AppendUsage(ctx context.Context, u *TokenUsage) error {
	ctx, span := tracer.Start(ctx, "store.append_usage",
		trace.WithAttributes(
			attribute.String("ticket_id", u.TicketID),
			attribute.String("agent_name", u.AgentName),
			attribute.String("model_name", u.ModelName),
		))
	defer span.End()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO token_usage
		(id, ticket_id, agent_name, model_name, provider,
		 input_tokens, output_tokens, input_cost_usd, output_cost_usd,
		 cached_tokens, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TicketID, u.AgentName, u.ModelName, u.Provider,
		u.InputTokens, u.OutputTokens, u.InputCostUSD, u.OutputCostUSD,
		u.CachedTokens, u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending usage record: %w", err)
	}
	return nil
}

// UsageByTicket returns a ticket's usage records in chronological order.
func (s *DB) UsageByTicket(ctx context.Context, ticketID string) ([]*TokenUsage, error) {
	ctx, span := tracer.Start(ctx, "store.usage_by_ticket",
		trace.WithAttributes(attribute.String("ticket_id", ticketID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, agent_name, model_name, provider,
		       input_tokens, output_tokens, input_cost_usd, output_cost_usd,
		       cached_tokens, created_at
		FROM token_usage WHERE ticket_id = ? ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("querying usage records: %w", err)
	}
	defer rows.Close()

	var records []*TokenUsage
	for rows.Next() {
		var u TokenUsage
		err := rows.Scan(&u.ID, &u.TicketID, &u.AgentName, &u.ModelName, &u.Provider,
			&u.InputTokens, &u.OutputTokens, &u.InputCostUSD, &u.OutputCostUSD,
			&u.CachedTokens, &u.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning usage record: %w", err)
		}
		records = append(records, &u)
	}
	return records, rows.Err()
}

// TicketCost returns the total cost in USD across a ticket's usage records.
func (s *DB) TicketCost(ctx context.Context, ticketID string) (float64, error) {
	ctx, span := tracer.Start(ctx, "store.ticket_cost",
		trace.WithAttributes(attribute.String("ticket_id", ticketID)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT SUM(input_cost_usd + output_cost_usd)
		FROM token_usage WHERE ticket_id = ?`, ticketID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("summing ticket cost: %w", err)
	}
	span.SetAttributes(attribute.Float64("cost_total_usd", total.Float64))
	return total.Float64, nil
}

// CostByAgent returns total cost per agent across all tickets.
func (s *DB) CostByAgent(ctx context.Context) (map[string]float64, error) {
	ctx, span := tracer.Start(ctx, "store.cost_by_agent")
	defer span.End()

	return s.costGroupedBy(ctx, "agent_name")
}

// CostByModel returns total cost per model across all tickets.
func (s *DB) CostByModel(ctx context.Context) (map[string]float64, error) {
	ctx, span := tracer.Start(ctx, "store.cost_by_model")
	defer span.End()

	return s.costGroupedBy(ctx, "model_name")
}

func (s *DB) costGroupedBy(ctx context.Context, column string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// column is one of two compile-time constants, never user input.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, SUM(input_cost_usd + output_cost_usd)
		FROM token_usage GROUP BY %s`, column, column))
	if err != nil {
		return nil, fmt.Errorf("grouping cost by %s: %w", column, err)
	}
	defer rows.Close()

	out := map[string]float64{}
	for rows.Next() {
		var key string
		var cost sql.NullFloat64
		if err := rows.Scan(&key, &cost); err != nil {
			return nil, fmt.Errorf("scanning grouped cost: %w", err)
		}
		out[key] = cost.Float64
	}
	return out, rows.Err()
}

// UsageSummary holds global token and cost totals.
type UsageSummary struct {
	TotalRequests      int     `json:"total_requests"`
	TotalInputTokens   int     `json:"total_input_tokens"`
	TotalOutputTokens  int     `json:"total_output_tokens"`
	TotalCachedTokens  int     `json:"total_cached_tokens"`
	TotalInputCostUSD  float64 `json:"total_input_cost_usd"`
	TotalOutputCostUSD float64 `json:"total_output_cost_usd"`
}

// TotalTokens returns input + output tokens across all records.
func (u *UsageSummary) TotalTokens() int {
	return u.TotalInputTokens + u.TotalOutputTokens
}

// TotalCostUSD returns input + output cost across all records.
func (u *UsageSummary) TotalCostUSD() float64 {
	return u.TotalInputCostUSD + u.TotalOutputCostUSD
}

// GlobalUsageSummary returns totals across all usage records.
func (s *DB) GlobalUsageSummary(ctx context.Context) (*UsageSummary, error) {
	ctx, span := tracer.Start(ctx, "store.global_usage_summary")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		summary    UsageSummary
		inTok      sql.NullInt64
		outTok     sql.NullInt64
		cachedTok  sql.NullInt64
		inCost     sql.NullFloat64
		outCost    sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(input_tokens), SUM(output_tokens), SUM(cached_tokens),
		       SUM(input_cost_usd), SUM(output_cost_usd)
		FROM token_usage`).
		Scan(&summary.TotalRequests, &inTok, &outTok, &cachedTok, &inCost, &outCost)
	if err != nil {
		return nil, fmt.Errorf("summarizing usage: %w", err)
	}
	summary.TotalInputTokens = int(inTok.Int64)
	summary.TotalOutputTokens = int(outTok.Int64)
	summary.TotalCachedTokens = int(cachedTok.Int64)
	summary.TotalInputCostUSD = inCost.Float64
	summary.TotalOutputCostUSD = outCost.Float64
	return &summary, nil
}
