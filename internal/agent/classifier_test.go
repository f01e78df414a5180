package agent

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmufti7/intelliflow-supportflow/internal/audit"
	"github.com/kmufti7/intelliflow-supportflow/internal/costs"
	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/policy"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
	"github.com/kmufti7/intelliflow-supportflow/internal/testutil"
)

// newTestDeps builds a dependency set over a temp-dir store and the given
// provider. Backoff is shortened so retry paths stay fast.
func newTestDeps(t *testing.T, provider llm.Provider) *Deps {
	t.Helper()
	db := testutil.NewTestDB(t)
	log := zerolog.Nop()
	return &Deps{
		DB:       db,
		LLM:      llm.NewClient(provider, llm.WithBackoff(time.Millisecond, 5*time.Millisecond)),
		Costs:    costs.NewTracker(db, log),
		Audit:    audit.NewService(db, nil, log),
		Policies: policy.NewStore(),
		Log:      log,
	}
}

func newTestTicket(t *testing.T, db *store.DB, customerID, message string) *store.Ticket {
	t.Helper()
	ticket := &store.Ticket{
		CustomerID:      customerID,
		CustomerMessage: message,
		Category:        store.CategoryQuery,
	}
	require.NoError(t, db.CreateTicket(context.Background(), ticket))
	return ticket
}

func TestParseClassification(t *testing.T) {
	t.Run("plain JSON", func(t *testing.T) {
		result, err := parseClassification(`{"category": "negative", "confidence": 0.85, "reasoning": "customer is frustrated"}`)
		require.NoError(t, err)
		assert.Equal(t, store.CategoryNegative, result.Category)
		assert.Equal(t, 0.85, result.Confidence)
		assert.Equal(t, "customer is frustrated", result.Reasoning)
	})

	t.Run("code fenced", func(t *testing.T) {
		result, err := parseClassification("```json\n{\"category\": \"positive\", \"confidence\": 0.9, \"reasoning\": \"thanks\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, store.CategoryPositive, result.Category)
		assert.Equal(t, 0.9, result.Confidence)
	})

	t.Run("category only", func(t *testing.T) {
		result, err := parseClassification(`{"category": "query"}`)
		require.NoError(t, err)
		assert.Equal(t, store.CategoryQuery, result.Category)
	})

	t.Run("cased category lowercased", func(t *testing.T) {
		result, err := parseClassification(`{"category": "POSITIVE", "confidence": 0.9}`)
		require.NoError(t, err)
		assert.Equal(t, store.CategoryPositive, result.Category)

		result, err = parseClassification(`{"category": "Negative"}`)
		require.NoError(t, err)
		assert.Equal(t, store.CategoryNegative, result.Category)
	})

	t.Run("missing confidence defaults", func(t *testing.T) {
		result, err := parseClassification(`{"category": "query", "reasoning": "asking about hours"}`)
		require.NoError(t, err)
		assert.Equal(t, 0.5, result.Confidence)
	})

	t.Run("missing reasoning defaults", func(t *testing.T) {
		result, err := parseClassification(`{"category": "query", "confidence": 0.7}`)
		require.NoError(t, err)
		assert.Equal(t, "No reasoning provided", result.Reasoning)
	})

	t.Run("confidence clamped high", func(t *testing.T) {
		result, err := parseClassification(`{"category": "positive", "confidence": 3.2}`)
		require.NoError(t, err)
		assert.Equal(t, 1.0, result.Confidence)
	})

	t.Run("confidence clamped low", func(t *testing.T) {
		result, err := parseClassification(`{"category": "positive", "confidence": -0.4}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, result.Confidence)
	})

	t.Run("invalid category", func(t *testing.T) {
		_, err := parseClassification(`{"category": "angry"}`)
		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Raw, "angry")
	})

	t.Run("missing category", func(t *testing.T) {
		_, err := parseClassification(`{"confidence": 0.8}`)
		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("not JSON", func(t *testing.T) {
		_, err := parseClassification("I think this message is a complaint.")
		var cerr *ClassificationError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "I think this message is a complaint.", cerr.Raw)
	})
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripCodeFence(`{"a": 1}`))
	assert.Equal(t, `{"a": 1}`, stripCodeFence("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripCodeFence("```\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripCodeFence("  {\"a\": 1}  "))
	// Too short to be a real fence; returned as-is.
	assert.Equal(t, "```", stripCodeFence("```"))
}

func TestClassifyRecordsAuditDetail(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{
		Content:      `{"category": "negative", "confidence": 0.92, "reasoning": "charge dispute"}`,
		InputTokens:  120,
		OutputTokens: 30,
	}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "I was charged twice for the same purchase")

	classifier := NewClassifier(deps)
	result, err := classifier.Classify(ctx, ticket.ID, ticket.CustomerMessage)
	require.NoError(t, err)
	assert.Equal(t, store.CategoryNegative, result.Category)
	assert.Equal(t, 0.92, result.Confidence)

	trail, err := deps.Audit.Trail(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, trail, 2)

	// Raw call entry first, parsed detail second.
	call := trail[0]
	assert.Equal(t, "classifier", call.AgentName)
	assert.Equal(t, store.ActionClassify, call.Action)
	assert.True(t, call.Success)

	detail := trail[1]
	assert.Equal(t, "classifier", detail.AgentName)
	assert.Equal(t, store.ActionClassify, detail.Action)
	assert.Equal(t, "category=negative", detail.OutputSummary)
	assert.Equal(t, "charge dispute", detail.Reasoning)
	require.NotNil(t, detail.ConfidenceScore)
	assert.Equal(t, 0.92, *detail.ConfidenceScore)
}

func TestClassifyParseFailureRecordsCall(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: "not a verdict"}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "hello")

	classifier := NewClassifier(deps)
	_, err := classifier.Classify(ctx, ticket.ID, ticket.CustomerMessage)
	var cerr *ClassificationError
	require.ErrorAs(t, err, &cerr)

	// The model call itself succeeded, so the tracker entry is there and
	// marked successful; only parsing failed.
	trail, trailErr := deps.Audit.Trail(ctx, ticket.ID)
	require.NoError(t, trailErr)
	require.Len(t, trail, 1)
	assert.True(t, trail[0].Success)
}

func TestClassifyUsesBudget(t *testing.T) {
	ctx := context.Background()
	provider := &testutil.MockProvider{Content: `{"category": "query"}`}
	deps := newTestDeps(t, provider)
	ticket := newTestTicket(t, deps.DB, "cust-1", "what are your hours")

	_, err := NewClassifier(deps).Classify(ctx, ticket.ID, ticket.CustomerMessage)
	require.NoError(t, err)

	calls := provider.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, classifierSystemPrompt, calls[0].SystemPrompt)
	assert.Equal(t, classifierMaxTokens, calls[0].MaxTokens)
	assert.Equal(t, classifierTemperature, calls[0].Temperature)
}
