// Package guardrail is the deterministic safety gate applied to customer
// input and generated output. Rules are compiled once and shared by every
// request; validation never blocks on I/O.
package guardrail

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/guardrail")

// DefaultConfidenceThreshold applies to intents without a specific cutoff.
const DefaultConfidenceThreshold = 0.70

// Violation is one rule hit. It never carries the matched text.
type Violation struct {
	Rule     string   `json:"rule"`
	Category string   `json:"category"`
	Severity Severity `json:"severity"`
	Stage    Stage    `json:"stage"`
	Message  string   `json:"message"`
	Count    int      `json:"count"`
}

// Blocking reports whether the violation stops the request.
func (v Violation) Blocking() bool { return v.Severity == SeverityError }

// Validator runs compiled rules against text.
type Validator struct {
	rules      []*Rule
	thresholds map[intent.Intent]float64
	defaultMin float64
}

// Option configures a Validator.
type Option func(*validatorConfig)

type validatorConfig struct {
	ruleFile      string
	extraRules    []RuleConfig
	disabledRules []string
	thresholds    map[intent.Intent]float64
	defaultMin    float64
}

// WithRuleFile layers an operator rule file over the embedded defaults.
// A missing file is skipped.
func WithRuleFile(path string) Option {
	return func(c *validatorConfig) { c.ruleFile = path }
}

// WithRules layers extra rule configs after the rule file.
func WithRules(rules []RuleConfig) Option {
	return func(c *validatorConfig) { c.extraRules = append(c.extraRules, rules...) }
}

// WithDisabledRules removes rules by name.
func WithDisabledRules(names ...string) Option {
	return func(c *validatorConfig) { c.disabledRules = append(c.disabledRules, names...) }
}

// WithConfidenceThreshold overrides the cutoff for one intent.
func WithConfidenceThreshold(in intent.Intent, min float64) Option {
	return func(c *validatorConfig) { c.thresholds[in] = min }
}

// WithDefaultConfidenceThreshold overrides the cutoff for intents without
// a specific one.
func WithDefaultConfidenceThreshold(min float64) Option {
	return func(c *validatorConfig) { c.defaultMin = min }
}

// NewValidator compiles the embedded rules plus any overrides.
func NewValidator(opts ...Option) (*Validator, error) {
	cfg := validatorConfig{
		thresholds: map[intent.Intent]float64{
			intent.Dispute:     0.80,
			intent.FraudReport: 0.85,
		},
		defaultMin: DefaultConfidenceThreshold,
	}
	for _, o := range opts {
		o(&cfg)
	}

	defaults, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	var fileRules []RuleConfig
	if cfg.ruleFile != "" {
		rf, err := LoadRuleFile(cfg.ruleFile)
		if err != nil {
			return nil, err
		}
		if rf != nil {
			fileRules = rf.Rules
		}
	}
	merged := MergeRules(defaults, fileRules, cfg.extraRules)

	if len(cfg.disabledRules) > 0 {
		disabled := make(map[string]bool, len(cfg.disabledRules))
		for _, n := range cfg.disabledRules {
			disabled[n] = true
		}
		kept := merged[:0]
		for _, rc := range merged {
			if !disabled[rc.Name] {
				kept = append(kept, rc)
			}
		}
		merged = kept
	}

	rules, err := CompileRules(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling guardrail rules: %w", err)
	}
	return &Validator{rules: rules, thresholds: cfg.thresholds, defaultMin: cfg.defaultMin}, nil
}

// MustNewValidator is like NewValidator but panics on error. The embedded
// defaults are expected to always compile.
func MustNewValidator(opts ...Option) *Validator {
	v, err := NewValidator(opts...)
	if err != nil {
		panic(fmt.Sprintf("guardrail.NewValidator: %v", err))
	}
	return v
}

// Rules returns the compiled rules in evaluation order.
func (v *Validator) Rules() []*Rule { return v.rules }

// ValidateInput checks raw customer text. Any error-severity hit makes the
// input unsafe; warnings are returned alongside. customerID is used only for
// span attribution.
func (v *Validator) ValidateInput(ctx context.Context, text, customerID string) (bool, []Violation) {
	_, span := tracer.Start(ctx, "guardrail.validate_input")
	defer span.End()

	violations := v.run(StageInput, text, "")
	safe := !hasBlocking(violations)

	span.SetAttributes(
		attribute.Bool("guardrail.safe", safe),
		attribute.Int("guardrail.violations", len(violations)),
		attribute.Bool("guardrail.customer_known", customerID != ""),
	)
	return safe, violations
}

// ValidateOutput checks a generated reply. Fabricated identifiers that appear
// verbatim in the grounding context or in the customer's own message are not
// counted: they were quoted, not invented by the model.
func (v *Validator) ValidateOutput(ctx context.Context, response, groundingContext, userInput string) (bool, []Violation) {
	_, span := tracer.Start(ctx, "guardrail.validate_output")
	defer span.End()

	grounding := groundingContext
	if userInput != "" {
		grounding += "\n" + userInput
	}
	violations := v.run(StageOutput, response, grounding)
	safe := !hasBlocking(violations)

	span.SetAttributes(
		attribute.Bool("guardrail.safe", safe),
		attribute.Int("guardrail.violations", len(violations)),
	)
	return safe, violations
}

func (v *Validator) run(stage Stage, text, grounding string) []Violation {
	var out []Violation
	for _, r := range v.rules {
		if !r.AppliesTo(stage) {
			continue
		}
		spans := r.match(text)
		if r.Category == CategoryHallucination && grounding != "" {
			spans = dropGrounded(spans, text, grounding)
		}
		if len(spans) == 0 {
			continue
		}
		out = append(out, Violation{
			Rule:     r.Name,
			Category: r.Category,
			Severity: r.Severity,
			Stage:    stage,
			Message:  r.Message,
			Count:    len(spans),
		})
	}
	return out
}

func dropGrounded(spans [][]int, text, grounding string) [][]int {
	kept := spans[:0]
	for _, sp := range spans {
		if !strings.Contains(grounding, text[sp[0]:sp[1]]) {
			kept = append(kept, sp)
		}
	}
	return kept
}

func hasBlocking(vs []Violation) bool {
	for _, v := range vs {
		if v.Blocking() {
			return true
		}
	}
	return false
}

// CheckConfidenceThreshold compares a classifier confidence with the
// intent's cutoff. Below the cutoff it returns false and a reason suitable
// for an escalation note.
func (v *Validator) CheckConfidenceThreshold(confidence float64, in intent.Intent) (bool, string) {
	min, ok := v.thresholds[in]
	if !ok {
		min = v.defaultMin
	}
	if confidence < min {
		return false, fmt.Sprintf("confidence %.2f for %s is below the %.2f threshold; routing to a human agent",
			confidence, in.Name(), min)
	}
	return true, ""
}

// SanitizePII replaces every PII span with its rule's placeholder. The
// result is for logs and the audit trail only. Overlapping hits collapse
// into one placeholder.
func (v *Validator) SanitizePII(text string) string {
	type hit struct {
		start, end  int
		placeholder string
	}
	var hits []hit
	for _, r := range v.rules {
		if r.Category != CategoryPII {
			continue
		}
		ph := r.Placeholder
		if ph == "" {
			ph = "[" + strings.ToUpper(r.Name) + "_REDACTED]"
		}
		for _, sp := range r.match(text) {
			hits = append(hits, hit{start: sp[0], end: sp[1], placeholder: ph})
		}
	}
	if len(hits) == 0 {
		return text
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].start != hits[j].start {
			return hits[i].start < hits[j].start
		}
		return hits[i].end-hits[i].start > hits[j].end-hits[j].start
	})
	merged := []hit{hits[0]}
	for _, h := range hits[1:] {
		last := &merged[len(merged)-1]
		if h.start < last.end {
			if h.end > last.end {
				last.end = h.end
			}
			continue
		}
		merged = append(merged, h)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, h := range merged {
		b.WriteString(text[prev:h.start])
		b.WriteString(h.placeholder)
		prev = h.end
	}
	b.WriteString(text[prev:])
	return b.String()
}
