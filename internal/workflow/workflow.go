// Package workflow holds the per-intent workflows the router dispatches to.
// Every workflow runs a policy gate, then its side effect, then response
// generation, and always returns a Result: failures are expressed as a
// status and an error code, never as a returned error.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/integrations"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/metrics"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/workflow")

// Name identifies a workflow in responses and audit records.
type Name string

const (
	AddressWorkflow   Name = "address_workflow"
	DisputeWorkflow   Name = "dispute_workflow"
	FraudWorkflow     Name = "fraud_workflow"
	StatementWorkflow Name = "statement_workflow"
	FallbackWorkflow  Name = "fallback_workflow"
)

// Status is the terminal status of a request.
type Status string

const (
	StatusOK        Status = "ok"
	StatusBlocked   Status = "blocked"
	StatusEscalated Status = "escalated"
	StatusError     Status = "error"
)

// ErrorCode is the internal code recorded with a non-ok status. It never
// reaches the customer.
type ErrorCode string

const (
	CodeInputBlocked         ErrorCode = "INPUT_BLOCKED"
	CodePolicyDenied         ErrorCode = "POLICY_DENIED"
	CodePolicyEscalated      ErrorCode = "POLICY_ESCALATED"
	CodeLowConfidence        ErrorCode = "LOW_CONFIDENCE"
	CodeClassificationFailed ErrorCode = "CLASSIFICATION_FAILED"
	CodeCollaboratorFailed   ErrorCode = "COLLABORATOR_FAILED"
	CodeGenerationFailed     ErrorCode = "GENERATION_FAILED"
	CodeOutputBlocked        ErrorCode = "OUTPUT_BLOCKED"
	CodeRetrievalFailed      ErrorCode = "RETRIEVAL_FAILED"
)

// Customer-facing templates.
const (
	MessageSupport   = "We're sorry, something went wrong while processing your request. Please contact customer support for assistance."
	MessageEscalated = "Your request needs a review by one of our specialists. A member of our team will contact you shortly."
	messageDenied    = "We couldn't complete your request: %s. Please check the details and try again, or contact customer support."
)

// DefaultRecipient receives notifications when the request carries no
// customer e-mail.
const DefaultRecipient = "customer@example.com"

// Input is everything a workflow needs from the earlier pipeline stages.
type Input struct {
	CustomerID string
	Channel    string
	Text       string
	Intent     intent.Intent
	Entities   entity.Record
	Context    retrieval.Context
	Metadata   map[string]string
}

// Recipient is the customer e-mail from request metadata, or DefaultRecipient.
func (in *Input) Recipient() string {
	if e := strings.TrimSpace(in.Metadata["customer_email"]); e != "" {
		return e
	}
	return DefaultRecipient
}

// Result is a workflow outcome.
type Result struct {
	Workflow Name                   `json:"workflow_name"`
	Status   Status                 `json:"status"`
	Code     ErrorCode              `json:"error_code,omitempty"`
	Response string                 `json:"response_text"`
	Decision *policy.Decision       `json:"policy_decision,omitempty"`
	Data     map[string]interface{} `json:"result,omitempty"`
	// Err is the internal cause of a non-ok status, for logs only.
	Err error `json:"-"`
}

// Workflow is one per-intent handler.
type Workflow interface {
	Name() Name
	Run(ctx context.Context, in *Input) Result
}

// PolicyGate evaluates a business policy.
type PolicyGate interface {
	Evaluate(ctx context.Context, gate policy.Gate, input interface{}) (*policy.Decision, error)
}

// AddressUpdater changes a customer's address of record.
type AddressUpdater interface {
	UpdateAddress(ctx context.Context, customerID string, addr entity.Address) (*integrations.AddressUpdate, error)
}

// CaseOpener opens workflow cases.
type CaseOpener interface {
	CreateCase(ctx context.Context, req integrations.CaseRequest) (*integrations.Case, error)
}

// CRMRecorder records CRM cases.
type CRMRecorder interface {
	CreateCase(ctx context.Context, customerID, intent string, details map[string]interface{}) (*integrations.CRMCase, error)
}

// Notifier sends customer e-mail.
type Notifier interface {
	SendEmail(ctx context.Context, e integrations.Email) error
}

// checkGate runs gate and turns a deny or escalate decision into a finished
// Result. ok is true when the workflow may continue.
func checkGate(ctx context.Context, g PolicyGate, name Name, gate policy.Gate, in *Input) (*policy.Decision, Result, bool) {
	d, err := g.Evaluate(ctx, gate, policy.Input{
		CustomerID: in.CustomerID,
		Intent:     string(in.Intent),
		Entities:   in.Entities,
	})
	if err != nil {
		return nil, failed(name, CodeCollaboratorFailed, err), false
	}
	metrics.RecordPolicyDecision(string(gate), string(d.Action))
	log.Info().
		Str("correlation_id", requestctx.CorrelationID(ctx)).
		Str("workflow", string(name)).
		Str("action", string(d.Action)).
		Strs("reasons", d.Reasons).
		Msg("policy_decision")

	switch d.Action {
	case policy.ActionDeny:
		return d, Result{
			Workflow: name,
			Status:   StatusBlocked,
			Code:     CodePolicyDenied,
			Response: deniedMessage(d.Reasons),
			Decision: d,
		}, false
	case policy.ActionEscalate:
		return d, Result{
			Workflow: name,
			Status:   StatusEscalated,
			Code:     CodePolicyEscalated,
			Response: MessageEscalated,
			Decision: d,
		}, false
	}
	return d, Result{}, true
}

func deniedMessage(reasons []string) string {
	return fmt.Sprintf(messageDenied, strings.Join(reasons, "; "))
}

// failed is the templated error result.
func failed(name Name, code ErrorCode, err error) Result {
	return Result{
		Workflow: name,
		Status:   StatusError,
		Code:     code,
		Response: MessageSupport,
		Err:      err,
	}
}
