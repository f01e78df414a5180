// Package audit records every agent action against a ticket as an
// immutable, signed trail entry. The ActionTracker flow guarantees exactly
// one entry per tracked action, success or failure.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	supportflowotel "github.com/kmufti7/intelliflow-supportflow/internal/otel"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

var tracer = supportflowotel.Tracer("github.com/kmufti7/intelliflow-supportflow/internal/audit")

// maxSummaryLen caps input and output summaries stored in the trail.
const maxSummaryLen = 200

// Truncate shortens a summary to maxSummaryLen runes, ellipsis included.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= maxSummaryLen {
		return s
	}
	return string(runes[:maxSummaryLen-3]) + "..."
}

// Service writes and reads the audit trail.
type Service struct {
	db     *store.DB
	signer *Signer
	log    zerolog.Logger
}

// NewService builds an audit service. Signer may be nil to disable entry
// signatures.
func NewService(db *store.DB, signer *Signer, log zerolog.Logger) *Service {
	return &Service{
		db:     db,
		signer: signer,
		log:    log.With().Str("component", "audit").Logger(),
	}
}

// LogAction appends one entry to the trail. Summaries are truncated, and
// the entry is signed when a signer is configured.
func (s *Service) LogAction(ctx context.Context, e *store.AuditEntry) error {
	ctx, span := tracer.Start(ctx, "audit.log_action")
	defer span.End()

	e.InputSummary = Truncate(e.InputSummary)
	e.OutputSummary = Truncate(e.OutputSummary)

	if s.signer != nil {
		payload, err := signaturePayload(e)
		if err != nil {
			return err
		}
		sig, err := s.signer.Sign(payload)
		if err != nil {
			return err
		}
		e.Signature = sig
	}

	if err := s.db.AppendAudit(ctx, e); err != nil {
		return err
	}

	evt := s.log.Info()
	if !e.Success {
		evt = s.log.Warn()
	}
	evt.Str("ticket_id", e.TicketID).
		Str("agent", e.AgentName).
		Str("action", string(e.Action)).
		Bool("success", e.Success).
		Int64("duration_ms", e.DurationMS).
		Msg("audit logged")
	return nil
}

// VerifyEntry checks an entry's signature against its content. Returns
// true for unsigned entries when no signer is configured.
func (s *Service) VerifyEntry(e *store.AuditEntry) bool {
	if s.signer == nil {
		return e.Signature == ""
	}
	payload, err := signaturePayload(e)
	if err != nil {
		return false
	}
	return s.signer.Verify(payload, e.Signature)
}

// signaturePayload is the canonical byte form signed for an entry. The
// signature and database-assigned fields are excluded.
func signaturePayload(e *store.AuditEntry) ([]byte, error) {
	return json.Marshal(map[string]any{
		"ticket_id":        e.TicketID,
		"agent_name":       e.AgentName,
		"action":           string(e.Action),
		"input_summary":    e.InputSummary,
		"output_summary":   e.OutputSummary,
		"reasoning":        e.Reasoning,
		"confidence_score": e.ConfidenceScore,
		"duration_ms":      e.DurationMS,
		"success":          e.Success,
		"error_message":    e.ErrorMessage,
	})
}

// Trail returns the complete audit trail for a ticket in chronological
// order.
func (s *Service) Trail(ctx context.Context, ticketID string) ([]*store.AuditEntry, error) {
	return s.db.AuditTrail(ctx, ticketID)
}

// ByAgent returns recent entries for one agent.
func (s *Service) ByAgent(ctx context.Context, agentName string, limit int) ([]*store.AuditEntry, error) {
	return s.db.AuditByAgent(ctx, agentName, limit)
}

// Failures returns recent failed actions.
func (s *Service) Failures(ctx context.Context, limit int) ([]*store.AuditEntry, error) {
	return s.db.AuditFailures(ctx, limit)
}

// Statistics returns trail aggregates.
func (s *Service) Statistics(ctx context.Context) (*store.AuditStats, error) {
	return s.db.AuditStatistics(ctx)
}

// ActionTracker collects the outcome of one agent action and flushes it as
// a single trail entry on Close.
type ActionTracker struct {
	svc   *Service
	entry *store.AuditEntry
	start time.Time
	done  bool
}

// StartAction begins tracking an action. Callers must defer Close; the
// entry is written exactly once regardless of outcome.
func (s *Service) StartAction(ticketID, agentName string, action store.Action, inputSummary string) *ActionTracker {
	return &ActionTracker{
		svc: s,
		entry: &store.AuditEntry{
			TicketID:     ticketID,
			AgentName:    agentName,
			Action:       action,
			InputSummary: inputSummary,
			Success:      true,
		},
		start: time.Now(),
	}
}

// SetOutput records the action result. Reasoning and confidence may be
// empty and nil for actions that have none.
func (t *ActionTracker) SetOutput(outputSummary, reasoning string, confidence *float64) {
	t.entry.OutputSummary = outputSummary
	t.entry.Reasoning = reasoning
	t.entry.ConfidenceScore = confidence
}

// Fail marks the action as failed. The output summary is replaced with the
// error.
func (t *ActionTracker) Fail(err error) {
	t.entry.Success = false
	t.entry.ErrorMessage = err.Error()
	t.entry.OutputSummary = "Error: " + err.Error()
}

// Close flushes the entry. Safe to call more than once; only the first
// call writes.
func (t *ActionTracker) Close(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.entry.DurationMS = time.Since(t.start).Milliseconds()
	return t.svc.LogAction(ctx, t.entry)
}
