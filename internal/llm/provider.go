// Package llm provides the generation backends used by the classifier,
// the entity extractor and response generation.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutLLMCall bounds every generation call. A timeout surfaces as an
// external call failure to the pipeline.
const TimeoutLLMCall = 30 * time.Second

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrEmptyCompletion      = errors.New("empty completion")
	ErrUnknownProvider      = errors.New("unknown llm provider")
)

// Provider is the interface all generation backends implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Request represents a generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// LogProbs asks the backend for token log-probabilities. Backends that
	// cannot provide them ignore the flag and leave Response.LogProb nil.
	LogProbs bool
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
	// LogProb is the summed log-probability of the completion tokens, when
	// the backend reported them.
	LogProb *float64
}

// System builds a system message.
func System(content string) Message { return Message{Role: "system", Content: content} }

// User builds a user message.
func User(content string) Message { return Message{Role: "user", Content: content} }
