package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
)

// MockProvider implements llm.Provider with a single canned answer.
// Set Err to simulate a failing backend and LogProb to simulate a backend
// that reports token log-probabilities.
type MockProvider struct {
	Content string
	Err     error
	LogProb *float64
}

// Name returns "mock".
func (m *MockProvider) Name() string { return "mock" }

// Generate returns the canned response or the configured error.
func (m *MockProvider) Generate(_ context.Context, req *llm.Request) (*llm.Response, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &llm.Response{
		Content:      m.Content,
		FinishReason: "stop",
		InputTokens:  10,
		OutputTokens: 20,
		Model:        req.Model,
		LogProb:      m.LogProb,
	}, nil
}

// Rule answers generation calls whose system prompt contains Match.
type Rule struct {
	Match   string
	Content string
	Err     error
	LogProb *float64
}

// ScriptedProvider answers each call with the first Rule whose Match is found
// in the system prompt, so one provider can play classifier, extractor and
// responder in a pipeline test. Calls are recorded for assertions.
type ScriptedProvider struct {
	Rules []Rule
	// Default is returned when no rule matches.
	Default string

	mu    sync.Mutex
	calls []*llm.Request
}

// Name returns "scripted".
func (p *ScriptedProvider) Name() string { return "scripted" }

// Generate matches the request against Rules in order.
func (p *ScriptedProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	system := ""
	for _, m := range req.Messages {
		if m.Role == "system" {
			system += m.Content
		}
	}
	for _, r := range p.Rules {
		if strings.Contains(system, r.Match) {
			if r.Err != nil {
				return nil, r.Err
			}
			return &llm.Response{Content: r.Content, FinishReason: "stop", Model: req.Model, LogProb: r.LogProb}, nil
		}
	}
	return &llm.Response{Content: p.Default, FinishReason: "stop", Model: req.Model}, nil
}

// Calls returns a copy of every request seen so far.
func (p *ScriptedProvider) Calls() []*llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*llm.Request, len(p.calls))
	copy(out, p.calls)
	return out
}

// Float returns a pointer to f, for LogProb fields.
func Float(f float64) *float64 { return &f }
