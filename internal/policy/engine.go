// Package policy is the business policy gate each workflow consults before it
// performs a side effect. Rules are Rego modules embedded in the binary and
// evaluated with OPA; the gate never calls out of process.
package policy

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/policy")

//go:embed rego/*.rego
var embeddedPolicies embed.FS

// DefaultDisputeEscalationLimit is the dispute amount above which a case is
// escalated to a human instead of being filed automatically.
const DefaultDisputeEscalationLimit = 10000.0

// ErrUnknownGate is returned when no policy is prepared for a gate.
var ErrUnknownGate = errors.New("unknown policy gate")

// Gate names one workflow's policy.
type Gate string

const (
	GateAddress   Gate = "address"
	GateDispute   Gate = "dispute"
	GateFraud     Gate = "fraud"
	GateStatement Gate = "statement"
)

// Action is the outcome of a gate.
type Action string

const (
	ActionAllow    Action = "allow"
	ActionDeny     Action = "deny"
	ActionEscalate Action = "escalate"
)

// Decision represents the result of policy evaluation. Deny wins over
// escalate. Priority is set by gates that rank cases.
type Decision struct {
	Allowed       bool     `json:"allowed"`
	Action        Action   `json:"action"`
	Reasons       []string `json:"reasons,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// Input is the document a gate sees as input. Entities carries the
// extracted record and is addressed as input.entities.<variant>.
type Input struct {
	CustomerID string      `json:"customer_id"`
	Intent     string      `json:"intent"`
	Entities   interface{} `json:"entities"`
}

// regoPolicy maps a Rego file to the package document queried for it.
type regoPolicy struct {
	file  string
	query string
}

var allPolicies = map[Gate]regoPolicy{
	GateAddress:   {file: "rego/address.rego", query: "data.servicing.address"},
	GateDispute:   {file: "rego/dispute.rego", query: "data.servicing.dispute"},
	GateFraud:     {file: "rego/fraud.rego", query: "data.servicing.fraud"},
	GateStatement: {file: "rego/statement.rego", query: "data.servicing.statement"},
}

// Config is loaded into OPA data under data.config.
type Config struct {
	DisputeEscalationLimit float64 `json:"dispute_escalation_limit"`
}

// Engine evaluates the workflow gates using embedded OPA.
type Engine struct {
	prepared map[Gate]rego.PreparedEvalQuery
	version  string
}

// NewEngine compiles every embedded policy once. A zero escalation limit
// selects DefaultDisputeEscalationLimit.
func NewEngine(ctx context.Context, cfg Config) (*Engine, error) {
	ctx, span := tracer.Start(ctx, "policy.engine.new")
	defer span.End()

	if cfg.DisputeEscalationLimit <= 0 {
		cfg.DisputeEscalationLimit = DefaultDisputeEscalationLimit
	}
	data, err := toData(cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("converting policy config to OPA data: %w", err)
	}

	gates := make([]Gate, 0, len(allPolicies))
	for g := range allPolicies {
		gates = append(gates, g)
	}
	sort.Slice(gates, func(i, j int) bool { return gates[i] < gates[j] })

	h := sha256.New()
	prepared := make(map[Gate]rego.PreparedEvalQuery, len(allPolicies))
	for _, g := range gates {
		rp := allPolicies[g]
		content, err := embeddedPolicies.ReadFile(rp.file)
		if err != nil {
			return nil, fmt.Errorf("reading embedded policy %s: %w", rp.file, err)
		}
		h.Write(content)

		r := rego.New(
			rego.Query(rp.query),
			rego.Module(rp.file, string(content)),
			rego.Store(inmem.NewFromObject(map[string]interface{}{"config": data})),
		)
		pq, err := r.PrepareForEval(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("preparing Rego policy %s: %w", rp.file, err)
		}
		prepared[g] = pq
	}
	fmt.Fprintf(h, "%v", cfg.DisputeEscalationLimit)
	sum := hex.EncodeToString(h.Sum(nil))

	span.SetAttributes(attribute.Int("policy.prepared_count", len(prepared)))
	return &Engine{
		prepared: prepared,
		version:  "sha256:" + sum[:8],
	}, nil
}

// MustNewEngine is NewEngine for static configuration; it panics on error.
func MustNewEngine(ctx context.Context, cfg Config) *Engine {
	e, err := NewEngine(ctx, cfg)
	if err != nil {
		panic(err)
	}
	return e
}

// Version identifies the compiled policy set and configuration.
func (e *Engine) Version() string { return e.version }

// Evaluate runs one gate. input is converted to plain JSON values first, so
// callers may pass structs.
func (e *Engine) Evaluate(ctx context.Context, gate Gate, input interface{}) (*Decision, error) {
	ctx, span := tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(
			attribute.String("policy.gate", string(gate)),
			attribute.String("policy.version", e.version),
		))
	defer span.End()

	pq, ok := e.prepared[gate]
	if !ok {
		return nil, fmt.Errorf("%s: %w", gate, ErrUnknownGate)
	}
	in, err := toData(input)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("converting policy input: %w", err)
	}

	results, err := pq.Eval(ctx, rego.EvalInput(in))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("evaluating %s policy: %w", gate, err)
	}

	decision := &Decision{
		Allowed:       true,
		Action:        ActionAllow,
		PolicyVersion: e.version,
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision, nil
	}
	doc, _ := results[0].Expressions[0].Value.(map[string]interface{})

	deny := stringSet(doc["deny"])
	escalate := stringSet(doc["escalate"])
	decision.Priority, _ = doc["priority"].(string)
	switch {
	case len(deny) > 0:
		decision.Allowed = false
		decision.Action = ActionDeny
		decision.Reasons = deny
	case len(escalate) > 0:
		decision.Allowed = false
		decision.Action = ActionEscalate
		decision.Reasons = escalate
	}

	span.SetAttributes(
		attribute.String("policy.action", string(decision.Action)),
		attribute.Int("policy.reasons", len(decision.Reasons)),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "policy evaluation passed")
	}
	return decision, nil
}

// stringSet extracts the strings of a Rego set. OPA returns sets as
// []interface{}; the order is made stable for audit records.
func stringSet(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// toData converts v to map[string]interface{} via JSON for OPA.
func toData(v interface{}) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshalling: %w", err)
	}
	var data map[string]interface{}
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("unmarshalling: %w", err)
	}
	return data, nil
}
