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

// Action is the kind of agent activity an audit entry records.
type Action string

const (
	ActionClassify     Action = "classify"
	ActionRoute        Action = "route"
	ActionRespond      Action = "respond"
	ActionEscalate     Action = "escalate"
	ActionCreateTicket Action = "create_ticket"
	ActionUpdateTicket Action = "update_ticket"
)

// AuditEntry is one immutable record of an agent action. Entries are
// append-only and never mutated after creation.
type AuditEntry struct {
	ID              string    `json:"id"`
	TicketID        string    `json:"ticket_id"`
	AgentName       string    `json:"agent_name"`
	Action          Action    `json:"action"`
	InputSummary    string    `json:"input_summary"`
	OutputSummary   string    `json:"output_summary"`
	Reasoning       string    `json:"decision_reasoning,omitempty"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	Success         bool      `json:"success"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Signature       string    `json:"signature,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AppendAudit inserts one audit entry, filling ID and CreatedAt when unset.
func (s *DB) AppendAudit(ctx context.Context, e *AuditEntry) error {
	ctx, span := tracer.Start(ctx, "store.append_audit",
		trace.WithAttributes(
			attribute.String("ticket_id", e.TicketID),
			attribute.String("agent_name", e.AgentName),
			attribute.String("action", string(e.Action)),
		))
	defer span.End()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs
		(id, ticket_id, agent_name, action, input_summary, output_summary,
		 decision_reasoning, confidence_score, duration_ms, success, error_message,
		 signature, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TicketID, e.AgentName, string(e.Action), e.InputSummary, e.OutputSummary,
		nullString(e.Reasoning), nullFloat(e.ConfidenceScore), e.DurationMS, e.Success,
		nullString(e.ErrorMessage), e.Signature, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// AuditTrail returns a ticket's audit entries in chronological order.
func (s *DB) AuditTrail(ctx context.Context, ticketID string) ([]*AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "store.audit_trail",
		trace.WithAttributes(attribute.String("ticket_id", ticketID)))
	defer span.End()

	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE ticket_id = ? ORDER BY created_at ASC, rowid ASC`,
		ticketID)
}

// AuditByAgent returns an agent's most recent entries.
func (s *DB) AuditByAgent(ctx context.Context, agentName string, limit int) ([]*AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "store.audit_by_agent",
		trace.WithAttributes(attribute.String("agent_name", agentName)))
	defer span.End()

	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE agent_name = ? ORDER BY created_at DESC LIMIT ?`,
		agentName, limit)
}

// AuditFailures returns the most recent failed entries.
func (s *DB) AuditFailures(ctx context.Context, limit int) ([]*AuditEntry, error) {
	ctx, span := tracer.Start(ctx, "store.audit_failures")
	defer span.End()

	return s.queryAudit(ctx,
		`SELECT `+auditColumns+` FROM audit_logs WHERE success = 0 ORDER BY created_at DESC LIMIT ?`,
		limit)
}

// AuditStats summarizes audit activity.
type AuditStats struct {
	ByAgent            map[string]int     `json:"by_agent"`
	ByAction           map[string]int     `json:"by_action"`
	AvgDurationByAgent map[string]float64 `json:"average_duration_by_agent"`
}

// AuditStatistics returns entry counts by agent and action plus average
// durations per agent.
func (s *DB) AuditStatistics(ctx context.Context) (*AuditStats, error) {
	ctx, span := tracer.Start(ctx, "store.audit_statistics")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &AuditStats{
		ByAgent:            map[string]int{},
		ByAction:           map[string]int{},
		AvgDurationByAgent: map[string]float64{},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_name, COUNT(*), AVG(duration_ms) FROM audit_logs GROUP BY agent_name`)
	if err != nil {
		return nil, fmt.Errorf("counting audit entries by agent: %w", err)
	}
	for rows.Next() {
		var agent string
		var n int
		var avg sql.NullFloat64
		if err := rows.Scan(&agent, &n, &avg); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning agent counts: %w", err)
		}
		stats.ByAgent[agent] = n
		stats.AvgDurationByAgent[agent] = avg.Float64
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT action, COUNT(*) FROM audit_logs GROUP BY action`)
	if err != nil {
		return nil, fmt.Errorf("counting audit entries by action: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var n int
		if err := rows.Scan(&action, &n); err != nil {
			return nil, fmt.Errorf("scanning action counts: %w", err)
		}
		stats.ByAction[action] = n
	}
	return stats, rows.Err()
}

const auditColumns = `id, ticket_id, agent_name, action, input_summary, output_summary,
	decision_reasoning, confidence_score, duration_ms, success, error_message, signature, created_at`

func (s *DB) queryAudit(ctx context.Context, query string, args ...any) ([]*AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var (
			e          AuditEntry
			action     string
			reasoning  sql.NullString
			confidence sql.NullFloat64
			errMsg     sql.NullString
		)
		err := rows.Scan(&e.ID, &e.TicketID, &e.AgentName, &action, &e.InputSummary, &e.OutputSummary,
			&reasoning, &confidence, &e.DurationMS, &e.Success, &errMsg, &e.Signature, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		e.Action = Action(action)
		e.Reasoning = reasoning.String
		e.ErrorMessage = errMsg.String
		if confidence.Valid {
			v := confidence.Float64
			e.ConfidenceScore = &v
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
