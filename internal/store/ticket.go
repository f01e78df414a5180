package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Category labels a customer message.
type Category string

const (
	CategoryPositive Category = "positive"
	CategoryNegative Category = "negative"
	CategoryQuery    Category = "query"
)

// ParseCategory validates a category string.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryPositive, CategoryNegative, CategoryQuery:
		return Category(s), nil
	}
	return "", fmt.Errorf("invalid category: %q", s)
}

// Status is a ticket lifecycle state.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
	StatusEscalated  Status = "escalated"
)

// Priority is a ticket priority level, 1 (critical) through 5 (minimal).
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
	PriorityMinimal  Priority = 5
)

// Ticket is one customer message and its resolution lifecycle.
type Ticket struct {
	ID              string         `json:"id"`
	CustomerID      string         `json:"customer_id"`
	CustomerMessage string         `json:"customer_message"`
	Category        Category       `json:"category"`
	Status          Status         `json:"status"`
	Priority        Priority       `json:"priority"`
	AgentResponse   string         `json:"agent_response,omitempty"`
	HandlerAgent    string         `json:"handler_agent,omitempty"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
}

// CreateTicket inserts a new ticket, filling in ID and timestamps when
// unset. Category is provisional at creation and overwritten once
// classification completes.
func (s *DB) CreateTicket(ctx context.Context, t *Ticket) error {
	ctx, span := tracer.Start(ctx, "store.create_ticket",
		trace.WithAttributes(attribute.String("customer_id", t.CustomerID)))
	defer span.End()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Priority == 0 {
		t.Priority = PriorityMedium
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling ticket metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets
		(id, customer_id, customer_message, category, status, priority,
		 agent_response, handler_agent, metadata, created_at, updated_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.CustomerID, t.CustomerMessage, string(t.Category), string(t.Status), int(t.Priority),
		nullString(t.AgentResponse), nullString(t.HandlerAgent), string(metadata),
		t.CreatedAt, t.UpdatedAt, nullTime(t.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("creating ticket: %w", err)
	}
	return nil
}

// GetTicket returns the ticket with the given id, or ErrTicketNotFound.
func (s *DB) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	ctx, span := tracer.Start(ctx, "store.get_ticket",
		trace.WithAttributes(attribute.String("ticket_id", id)))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying ticket: %w", err)
	}
	return t, nil
}

// UpdateTicket persists all mutable ticket fields. UpdatedAt is bumped;
// ResolvedAt is set the first time the ticket reaches a terminal status.
func (s *DB) UpdateTicket(ctx context.Context, t *Ticket) error {
	ctx, span := tracer.Start(ctx, "store.update_ticket",
		trace.WithAttributes(
			attribute.String("ticket_id", t.ID),
			attribute.String("status", string(t.Status)),
		))
	defer span.End()

	t.UpdatedAt = now()
	if t.ResolvedAt == nil {
		switch t.Status {
		case StatusResolved, StatusEscalated, StatusClosed:
			ts := t.UpdatedAt
			t.ResolvedAt = &ts
		}
	}

	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return fmt.Errorf("marshalling ticket metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET
			customer_message = ?,
			category = ?,
			status = ?,
			priority = ?,
			agent_response = ?,
			handler_agent = ?,
			metadata = ?,
			updated_at = ?,
			resolved_at = ?
		WHERE id = ?`,
		t.CustomerMessage, string(t.Category), string(t.Status), int(t.Priority),
		nullString(t.AgentResponse), nullString(t.HandlerAgent), string(metadata),
		t.UpdatedAt, nullTime(t.ResolvedAt), t.ID,
	)
	if err != nil {
		return fmt.Errorf("updating ticket: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrTicketNotFound, t.ID)
	}
	return nil
}

// TicketsByCustomer returns the customer's tickets, most recent first.
// limit <= 0 means no limit.
func (s *DB) TicketsByCustomer(ctx context.Context, customerID string, limit int) ([]*Ticket, error) {
	ctx, span := tracer.Start(ctx, "store.tickets_by_customer",
		trace.WithAttributes(attribute.String("customer_id", customerID)))
	defer span.End()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE customer_id = ? ORDER BY created_at DESC`
	args := []any{customerID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTickets(ctx, query, args...)
}

// TicketsByStatus returns tickets with the given status, most recent first.
func (s *DB) TicketsByStatus(ctx context.Context, status Status, limit int) ([]*Ticket, error) {
	ctx, span := tracer.Start(ctx, "store.tickets_by_status",
		trace.WithAttributes(attribute.String("status", string(status))))
	defer span.End()

	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE status = ? ORDER BY created_at DESC`
	args := []any{string(status)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryTickets(ctx, query, args...)
}

// TicketStats summarizes ticket counts.
type TicketStats struct {
	Total      int            `json:"total_tickets"`
	ByStatus   map[string]int `json:"by_status"`
	ByCategory map[string]int `json:"by_category"`
}

// TicketStatistics returns counts by status and category.
func (s *DB) TicketStatistics(ctx context.Context) (*TicketStats, error) {
	ctx, span := tracer.Start(ctx, "store.ticket_statistics")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &TicketStats{
		ByStatus:   map[string]int{},
		ByCategory: map[string]int{},
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("counting tickets by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning status count: %w", err)
		}
		stats.ByStatus[status] = n
		stats.Total += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status counts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM tickets GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("counting tickets by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		stats.ByCategory[category] = n
	}
	return stats, rows.Err()
}

// CloseResolvedBefore closes resolved tickets whose resolved_at is older
// than cutoff and returns how many were closed. Used by the sweep trigger.
func (s *DB) CloseResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "store.close_resolved_before")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ?
		WHERE status = ? AND resolved_at IS NOT NULL AND resolved_at < ?`,
		string(StatusClosed), now(), string(StatusResolved), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("closing resolved tickets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting closed tickets: %w", err)
	}
	span.SetAttributes(attribute.Int64("tickets.closed", n))
	return n, nil
}

const ticketColumns = `id, customer_id, customer_message, category, status, priority,
	agent_response, handler_agent, metadata, created_at, updated_at, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var (
		t             Ticket
		category      string
		status        string
		priority      int
		agentResponse sql.NullString
		handlerAgent  sql.NullString
		metadata      string
		resolvedAt    sql.NullTime
	)
	err := row.Scan(&t.ID, &t.CustomerID, &t.CustomerMessage, &category, &status, &priority,
		&agentResponse, &handlerAgent, &metadata, &t.CreatedAt, &t.UpdatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	t.Category = Category(category)
	t.Status = Status(status)
	t.Priority = Priority(priority)
	t.AgentResponse = agentResponse.String
	t.HandlerAgent = handlerAgent.String
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		t.ResolvedAt = &ts
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling ticket metadata: %w", err)
		}
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}

func (s *DB) queryTickets(ctx context.Context, query string, args ...any) ([]*Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
