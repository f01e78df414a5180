package cmd

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kmufti7/intelliflow-supportflow/internal/agent"
	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "0.000000", formatCost(0))
	assert.Equal(t, "< 0.0001", formatCost(0.00005))
	assert.Equal(t, "0.000100", formatCost(0.0001))
	assert.Equal(t, "0.002100", formatCost(0.0021))
	assert.Equal(t, "1.250000", formatCost(1.25))
}

func TestRenderUsageSummary(t *testing.T) {
	var buf bytes.Buffer
	renderUsageSummary(&buf, &store.UsageSummary{
		TotalRequests:      4,
		TotalInputTokens:   2000,
		TotalOutputTokens:  500,
		TotalCachedTokens:  100,
		TotalInputCostUSD:  0.006,
		TotalOutputCostUSD: 0.0075,
	})
	out := buf.String()
	assert.Contains(t, out, "Requests:      4")
	assert.Contains(t, out, "Input tokens:  2000 (cached 100)")
	assert.Contains(t, out, "Output tokens: 500")
	assert.Contains(t, out, "Total cost:    $0.013500")
}

func TestRenderCostBreakdown(t *testing.T) {
	var buf bytes.Buffer
	renderCostBreakdown(&buf, "By agent:", map[string]float64{
		"query_handler": 0.002,
		"classifier":    0.001,
	})
	out := buf.String()
	assert.Contains(t, out, "By agent:")
	// Keys come out sorted.
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("classifier")), bytes.Index(buf.Bytes(), []byte("query_handler")))
	assert.Contains(t, out, "$0.001000")

	buf.Reset()
	renderCostBreakdown(&buf, "Empty:", nil)
	assert.Empty(t, buf.String())
}

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &agent.Result{
		Ticket: &store.Ticket{
			ID:       "tick-1",
			Status:   store.StatusEscalated,
			Priority: store.PriorityCritical,
		},
		Classification: &agent.Classification{
			Category:   store.CategoryNegative,
			Confidence: 0.91,
		},
		Response:           "We take fraud very seriously.",
		HandlerUsed:        "negative_handler",
		RequiresEscalation: true,
		EscalationReason:   "Message contains escalation trigger: 'fraud'",
		CitedPolicies: []*policy.Policy{
			{ID: "POLICY-002", Title: "Fraud Protection"},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Ticket:     tick-1")
	assert.Contains(t, out, "Category:   negative (confidence 0.91)")
	assert.Contains(t, out, "Handler:    negative_handler")
	assert.Contains(t, out, "Status:     escalated (priority 1)")
	assert.Contains(t, out, "Escalated:  Message contains escalation trigger: 'fraud'")
	assert.Contains(t, out, "POLICY-002")
	assert.Contains(t, out, "We take fraud very seriously.")
}

func TestRenderResultNoEscalation(t *testing.T) {
	var buf bytes.Buffer
	renderResult(&buf, &agent.Result{
		Ticket: &store.Ticket{
			ID:       "tick-2",
			Status:   store.StatusResolved,
			Priority: store.PriorityMinimal,
		},
		Classification: &agent.Classification{Category: store.CategoryPositive, Confidence: 0.99},
		Response:       "Thanks so much!",
		HandlerUsed:    "positive_handler",
	})
	out := buf.String()
	assert.NotContains(t, out, "Escalated:")
	assert.NotContains(t, out, "Policies:")
}

func TestRenderTicketDetail(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)
	resolved := created.Add(2 * time.Minute)
	confidence := 0.88

	var buf bytes.Buffer
	renderTicketDetail(&buf, &agent.TicketDetail{
		Ticket: &store.Ticket{
			ID:              "tick-3",
			CustomerID:      "cust-1",
			CustomerMessage: "When do branches open?",
			Category:        store.CategoryQuery,
			Status:          store.StatusResolved,
			Priority:        store.PriorityLow,
			AgentResponse:   "We open at 9 AM.",
			HandlerAgent:    "query_handler",
			CreatedAt:       created,
			ResolvedAt:      &resolved,
		},
		AuditTrail: []*store.AuditEntry{
			{
				AgentName:       "classifier",
				Action:          store.ActionClassify,
				ConfidenceScore: &confidence,
				DurationMS:      120,
				Success:         true,
				CreatedAt:       created,
			},
			{
				AgentName:    "query_handler",
				Action:       store.ActionRespond,
				Success:      false,
				ErrorMessage: "model timeout",
				CreatedAt:    created,
			},
		},
		TokenUsage: []*store.TokenUsage{
			{
				AgentName:     "classifier",
				ModelName:     "claude-3-5-sonnet-20241022",
				InputTokens:   100,
				OutputTokens:  50,
				InputCostUSD:  0.0003,
				OutputCostUSD: 0.00075,
			},
		},
		TotalCostUSD: 0.00105,
	})
	out := buf.String()
	assert.Contains(t, out, "Ticket tick-3")
	assert.Contains(t, out, "Customer:  cust-1")
	assert.Contains(t, out, "Resolved:  2025-06-01 10:32:00")
	assert.Contains(t, out, "Response (query_handler):")
	assert.Contains(t, out, "Audit trail (2 entries):")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "error: model timeout")
	assert.Contains(t, out, "in=100 out=50 cached=0")
	assert.Contains(t, out, "Total cost: $0.001050")
}

func TestRenderStatistics(t *testing.T) {
	var buf bytes.Buffer
	renderStatistics(&buf, &agent.Statistics{
		Tickets: &store.TicketStats{
			Total:      3,
			ByStatus:   map[string]int{"resolved": 2, "escalated": 1},
			ByCategory: map[string]int{"query": 2, "negative": 1},
		},
		Audit: &store.AuditStats{
			ByAgent:            map[string]int{"classifier": 3, "orchestrator": 3},
			ByAction:           map[string]int{"classify": 6, "route": 3},
			AvgDurationByAgent: map[string]float64{"classifier": 150},
		},
		Usage: &store.UsageSummary{
			TotalRequests:      6,
			TotalInputTokens:   600,
			TotalOutputTokens:  300,
			TotalInputCostUSD:  0.0018,
			TotalOutputCostUSD: 0.0045,
		},
		CostByAgent: map[string]float64{"classifier": 0.0018},
	})
	out := buf.String()
	assert.Contains(t, out, "Tickets: 3 total")
	assert.Contains(t, out, "By status:")
	assert.Contains(t, out, "resolved")
	assert.Contains(t, out, "Avg duration:")
	assert.Contains(t, out, "150ms")
	assert.Contains(t, out, "Requests:      6")
	assert.Contains(t, out, "Total tokens:  900")
	assert.Contains(t, out, "Cost by agent:")
}

func TestRenderCounts(t *testing.T) {
	var buf bytes.Buffer
	renderCounts(&buf, "Counts:", map[string]int{"b": 2, "a": 1})
	out := buf.String()
	assert.Contains(t, out, "Counts:")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("a")), bytes.Index(buf.Bytes(), []byte("b")))

	buf.Reset()
	renderCounts(&buf, "Empty:", nil)
	assert.Empty(t, buf.String())
}
