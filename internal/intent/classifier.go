package intent

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/intent")

// Result is the outcome of one classification attempt. Parsed is false when
// the model output did not match the enumeration; Intent is then Fallback.
type Result struct {
	Intent Intent
	Parsed bool
	// Confidence is set only when the backend reported token log-probabilities.
	Confidence *float64
	Raw        string
}

// Classifier maps customer text onto the intent enumeration with a single
// generation call.
type Classifier struct {
	provider llm.Provider
	model    string
}

// NewClassifier creates a classifier using the given backend and model.
func NewClassifier(provider llm.Provider, model string) *Classifier {
	return &Classifier{provider: provider, model: model}
}

// Classify asks the model for exactly one intent. Unparseable output resolves
// to Fallback and is not an error; only a failed generation call returns one.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	ctx, span := tracer.Start(ctx, "intent.classify")
	defer span.End()

	resp, err := c.provider.Generate(ctx, &llm.Request{
		Model: c.model,
		Messages: []llm.Message{
			llm.System(classificationPrompt()),
			llm.User(text),
		},
		Temperature: 0,
		MaxTokens:   16,
		LogProbs:    true,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classification call failed")
		return Result{Intent: Fallback}, fmt.Errorf("classifying intent: %w", err)
	}

	res := Result{Raw: resp.Content}
	res.Intent, res.Parsed = Parse(resp.Content)
	if !res.Parsed {
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Int("raw_len", len(resp.Content)).
			Msg("intent_parse_failed")
	}
	if resp.LogProb != nil {
		conf := math.Exp(*resp.LogProb)
		res.Confidence = &conf
		span.SetAttributes(attribute.Float64("intent.confidence", conf))
	}

	span.SetAttributes(
		svcotel.Intent.String(string(res.Intent)),
		attribute.Bool("intent.parsed", res.Parsed),
	)
	return res, nil
}

func classificationPrompt() string {
	var b strings.Builder
	b.WriteString("You classify bank customer messages. Reply with exactly one label from the list below and nothing else.\n\n")
	for _, i := range all {
		fmt.Fprintf(&b, "%s: %s\n", i.Name(), i.Description())
	}
	return b.String()
}
