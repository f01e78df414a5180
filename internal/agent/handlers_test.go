package agent

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmufti7/intelliflow-supportflow/internal/store"
	"github.com/kmufti7/intelliflow-supportflow/internal/testutil"
)

func TestCheckEscalation(t *testing.T) {
	tests := []struct {
		message  string
		escalate bool
		keyword  string
	}{
		{"Someone made an unauthorized withdrawal from my account", true, "unauthorized"},
		{"I want to report FRAUD on my card", true, "fraud"},
		{"My wallet was stolen yesterday", true, "stolen"},
		{"I will contact my lawyer about this", true, "lawyer"},
		{"This looks like identity theft", true, "identity theft"},
		{"My card payment was declined at the store", false, ""},
		{"The app is slow today", false, ""},
	}
	for _, tt := range tests {
		escalate, reason := checkEscalation(tt.message)
		assert.Equal(t, tt.escalate, escalate, tt.message)
		if tt.escalate {
			assert.Equal(t, "Message contains escalation trigger: '"+tt.keyword+"'", reason)
		} else {
			assert.Empty(t, reason)
		}
	}
}

func TestComplaintPriority(t *testing.T) {
	assert.Equal(t, store.PriorityCritical, complaintPriority("fraud on my account", true))
	assert.Equal(t, store.PriorityHigh, complaintPriority("I am locked out of my account", false))
	assert.Equal(t, store.PriorityHigh, complaintPriority("this is URGENT", false))
	// Complaints never drop below high.
	assert.Equal(t, store.PriorityHigh, complaintPriority("mildly annoyed about fees", false))
}

func TestQueryPriority(t *testing.T) {
	assert.Equal(t, store.PriorityMedium, queryPriority("How do I set up a wire transfer?"))
	assert.Equal(t, store.PriorityMedium, queryPriority("Tell me about mortgage rates"))
	assert.Equal(t, store.PriorityLow, queryPriority("What are your branch hours?"))
}

func TestSanitizeResponse(t *testing.T) {
	assert.Equal(t, "Hello there", sanitizeResponse("Hello <script>alert(1)</script>there"))
	assert.Equal(t, "Thanks & goodbye", sanitizeResponse("<b>Thanks</b> & goodbye"))
	assert.Equal(t, "plain text", sanitizeResponse("plain text"))
}

func TestPositiveHandler(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "So glad we could help!"}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "You folks are wonderful, thank you!")

	resp, err := NewPositiveHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "So glad we could help!", resp.Response)
	assert.Equal(t, store.PriorityMinimal, resp.Priority)
	assert.False(t, resp.RequiresEscalation)
	assert.Empty(t, resp.CitedPolicies)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, positiveSystemPrompt, calls[0].SystemPrompt)
	assert.Equal(t, 512, calls[0].MaxTokens)
}

func TestNegativeHandlerEscalates(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "I'm very sorry to hear this. Our fraud team will contact you."}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "There are unauthorized charges on my card, this is fraud!")

	resp, err := NewNegativeHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)
	assert.True(t, resp.RequiresEscalation)
	assert.Equal(t, "Message contains escalation trigger: 'fraud'", resp.EscalationReason)
	assert.Equal(t, store.PriorityCritical, resp.Priority)
	assert.NotEmpty(t, resp.CitedPolicies)

	// Policy context rides along in the prompt.
	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, negativeSystemPrompt, calls[0].SystemPrompt)
	assert.Contains(t, calls[0].UserMessage, "[Relevant Bank Policies")
}

func TestNegativeHandlerPlainComplaint(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "I apologize for the inconvenience with our mobile app."}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "Your mobile app keeps crashing and it is really annoying")

	resp, err := NewNegativeHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)
	assert.False(t, resp.RequiresEscalation)
	assert.Empty(t, resp.EscalationReason)
	assert.Equal(t, store.PriorityHigh, resp.Priority)
}

func TestQueryHandlerIncludesHistory(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "Our branches are open 9 to 5 on weekdays."}
	deps := newTestDeps(t, provider)

	previous := newTestTicket(t, deps.DB, "cust-7", "I'd like to dispute a charge from last month")
	previous.Category = store.CategoryNegative
	previous.Status = store.StatusResolved
	require.NoError(t, deps.DB.UpdateTicket(ctx, previous))

	ticket := newTestTicket(t, deps.DB, "cust-7", "What are your branch hours?")

	resp, err := NewQueryHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, "Our branches are open 9 to 5 on weekdays.", resp.Response)
	assert.Equal(t, store.PriorityLow, resp.Priority)
	assert.NotEmpty(t, resp.CitedPolicies)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, querySystemPrompt, calls[0].SystemPrompt)
	assert.Contains(t, calls[0].UserMessage, "[Previous interactions with this customer:]")
	assert.Contains(t, calls[0].UserMessage, "[NEGATIVE]")
	assert.Contains(t, calls[0].UserMessage, "[Current query:]")
	assert.Contains(t, calls[0].UserMessage, "What are your branch hours?")
}

func TestQueryHandlerHistoryPreviewKeepsRunesIntact(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "Happy to help."}
	deps := newTestDeps(t, provider)

	long := strings.Repeat("€", 120)
	previous := newTestTicket(t, deps.DB, "cust-8", long)
	previous.Status = store.StatusResolved
	require.NoError(t, deps.DB.UpdateTicket(ctx, previous))

	ticket := newTestTicket(t, deps.DB, "cust-8", "Can I raise my card limit?")

	_, err := NewQueryHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.True(t, utf8.ValidString(calls[0].UserMessage))
	assert.Contains(t, calls[0].UserMessage, strings.Repeat("€", 100)+"...")
	assert.NotContains(t, calls[0].UserMessage, strings.Repeat("€", 101))
}

func TestQueryHandlerNoHistory(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "You can open an account online in minutes."}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "new-customer", "How does account opening work?")

	resp, err := NewQueryHandler(deps).Handle(ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, store.PriorityMedium, resp.Priority)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.NotContains(t, calls[0].UserMessage, "[Previous interactions")
}
