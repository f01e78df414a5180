// Package store persists tickets, audit entries, token usage, and model
// pricing in SQLite.
//
// One process owns one connection. Requests may run concurrently, so every
// read and write serializes around a single mutex: the pipeline mutates a
// ticket only from the request that owns it, and the global gate is all
// that is needed to keep partial writes from interleaving on the shared
// connection.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
)

var tracer = supportflowotel.Tracer("github.com/kmufti7/intelliflow-supportflow/internal/store")

// ErrTicketNotFound is returned when a ticket lookup misses.
var ErrTicketNotFound = errors.New("ticket not found")

const schema = `
CREATE TABLE IF NOT EXISTS tickets (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    customer_message TEXT NOT NULL,
    category TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    priority INTEGER NOT NULL DEFAULT 3,
    agent_response TEXT,
    handler_agent TEXT,
    metadata TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    resolved_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id TEXT PRIMARY KEY,
    ticket_id TEXT NOT NULL,
    agent_name TEXT NOT NULL,
    action TEXT NOT NULL,
    input_summary TEXT NOT NULL,
    output_summary TEXT NOT NULL,
    decision_reasoning TEXT,
    confidence_score REAL,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    success INTEGER NOT NULL DEFAULT 1,
    error_message TEXT,
    signature TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (ticket_id) REFERENCES tickets(id)
);

CREATE TABLE IF NOT EXISTS token_usage (
    id TEXT PRIMARY KEY,
    ticket_id TEXT NOT NULL,
    agent_name TEXT NOT NULL,
    model_name TEXT NOT NULL,
    provider TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    input_cost_usd REAL NOT NULL DEFAULT 0.0,
    output_cost_usd REAL NOT NULL DEFAULT 0.0,
    cached_tokens INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    FOREIGN KEY (ticket_id) REFERENCES tickets(id)
);

CREATE TABLE IF NOT EXISTS model_pricing (
    model_name TEXT PRIMARY KEY,
    provider TEXT NOT NULL,
    input_cost_per_1k REAL NOT NULL,
    output_cost_per_1k REAL NOT NULL,
    cached_input_cost_per_1k REAL NOT NULL DEFAULT 0.0,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tickets_customer_id ON tickets(customer_id);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_category ON tickets(category);
CREATE INDEX IF NOT EXISTS idx_tickets_created_at ON tickets(created_at);
CREATE INDEX IF NOT EXISTS idx_audit_logs_ticket_id ON audit_logs(ticket_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_agent_name ON audit_logs(agent_name);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created_at ON audit_logs(created_at);
CREATE INDEX IF NOT EXISTS idx_token_usage_ticket_id ON token_usage(ticket_id);
CREATE INDEX IF NOT EXISTS idx_token_usage_agent_name ON token_usage(agent_name);
CREATE INDEX IF NOT EXISTS idx_token_usage_created_at ON token_usage(created_at);
`

// DB is the single storage handle for a SupportFlow process. All access
// goes through the mutex so concurrent requests cannot interleave partial
// writes on the shared connection.
type DB struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the database at path, applies the schema, and
// seeds the model pricing table.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &DB{db: db}
	if err := s.seedPricing(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seeding model pricing: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

func now() time.Time {
	return time.Now().UTC()
}
