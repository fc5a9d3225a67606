package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
)

// DefaultReply is used when there is no grounding context and the workflow
// reports no outcome, or when generation returns no text.
const DefaultReply = "Your request has been processed."

const (
	citationFormat      = "\n\n_(Answer based on %d relevant policy document(s))_"
	responseMaxTokens   = 400
	responseTemperature = 0.2
)

// Responder writes the customer reply with one generation call grounded in
// the retrieved context.
type Responder struct {
	provider llm.Provider
	model    string
}

// NewResponder creates a responder.
func NewResponder(provider llm.Provider, model string) *Responder {
	return &Responder{provider: provider, model: model}
}

// Respond writes the reply for in. outcome states what the workflow did, in
// customer-facing words. Without grounding context no generation call is made:
// the reply is outcome itself, or DefaultReply when outcome is empty. With
// context the reply is generated and cites the number of source documents.
func (r *Responder) Respond(ctx context.Context, in *Input, outcome string) (string, error) {
	ctx, span := tracer.Start(ctx, "workflow.respond")
	defer span.End()

	if in.Context.Empty() {
		span.SetAttributes(attribute.Bool("response.templated", true))
		if outcome == "" {
			return DefaultReply, nil
		}
		return outcome, nil
	}

	resp, err := r.provider.Generate(ctx, &llm.Request{
		Model: r.model,
		Messages: []llm.Message{
			llm.System(responsePrompt(in)),
			llm.User(responseUserMessage(in, outcome)),
		},
		Temperature: responseTemperature,
		MaxTokens:   responseMaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "response generation failed")
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := strings.TrimSpace(resp.Content)
	sources := len(in.Context.Sources)
	span.SetAttributes(
		attribute.Int("response.sources", sources),
		attribute.Int("response.length", len(text)),
	)
	if text == "" {
		return DefaultReply, nil
	}
	if sources > 0 {
		text += fmt.Sprintf(citationFormat, sources)
	}
	return text, nil
}

func responsePrompt(in *Input) string {
	var b strings.Builder
	b.WriteString(guardrail.PromptGuidance(in.Intent))
	b.WriteString("\n\nAnswer using the policy context below. If it does not cover the question, say so.\n\n")
	b.WriteString(in.Context.Text)
	b.WriteString("\n")
	b.WriteString("\nReply in plain language in at most a few short paragraphs.")
	return b.String()
}

func responseUserMessage(in *Input, outcome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer request: %s\n", in.Text)
	fmt.Fprintf(&b, "Intent: %s\n", in.Intent.Name())
	if !in.Entities.Empty() {
		if details, err := json.Marshal(in.Entities); err == nil {
			fmt.Fprintf(&b, "Extracted details: %s\n", details)
		}
	}
	if outcome != "" {
		fmt.Fprintf(&b, "What was done: %s\n", outcome)
	} else {
		b.WriteString("What was done: no account changes were made.\n")
	}
	return b.String()
}
