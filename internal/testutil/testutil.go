// Package testutil provides test doubles for the support pipeline: an
// in-memory SQLite store and scriptable model providers.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/kmufti7/intelliflow-supportflow/internal/llm"
	"github.com/kmufti7/intelliflow-supportflow/internal/store"
)

// NewTestDB opens a store backed by a file in a per-test temp directory.
func NewTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "supportflow.db"))
	if err != nil {
		t.Fatalf("opening test store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// MockProvider returns a fixed response for every call. Err, when set,
// is returned instead.
type MockProvider struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	Err          error

	mu    sync.Mutex
	calls []*llm.Request
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	model := m.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	return &llm.Response{
		Content:      m.Content,
		Model:        model,
		Provider:     "mock",
		InputTokens:  m.InputTokens,
		OutputTokens: m.OutputTokens,
		CachedTokens: m.CachedTokens,
		FinishReason: "stop",
	}, nil
}

// Calls returns every request seen so far.
func (m *MockProvider) Calls() []*llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Request(nil), m.calls...)
}

// ScriptStep is one canned turn for a ScriptedProvider.
type ScriptStep struct {
	Content string
	Err     error
}

// ScriptedProvider replays a fixed sequence of responses, one per call.
// The usual script is a classification verdict followed by a handler
// reply. Calls past the end of the script fail.
type ScriptedProvider struct {
	Steps        []ScriptStep
	Model        string
	InputTokens  int
	OutputTokens int

	mu    sync.Mutex
	next  int
	calls []*llm.Request
}

func (p *ScriptedProvider) Name() string { return "scripted" }

func (p *ScriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, req)
	if p.next >= len(p.Steps) {
		return nil, fmt.Errorf("scripted provider exhausted after %d calls", len(p.Steps))
	}
	step := p.Steps[p.next]
	p.next++

	if step.Err != nil {
		return nil, step.Err
	}
	model := p.Model
	if model == "" {
		model = "claude-3-5-sonnet-20241022"
	}
	inputTokens := p.InputTokens
	if inputTokens == 0 {
		inputTokens = 100
	}
	outputTokens := p.OutputTokens
	if outputTokens == 0 {
		outputTokens = 50
	}
	return &llm.Response{
		Content:      step.Content,
		Model:        model,
		Provider:     "scripted",
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		FinishReason: "stop",
	}, nil
}

// CallCount returns how many calls the provider has served.
func (p *ScriptedProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// Calls returns every request seen so far.
func (p *ScriptedProvider) Calls() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*llm.Request(nil), p.calls...)
}
