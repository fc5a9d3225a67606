// Package pipeline runs one customer request through the servicing state
// machine: input guardrails, intent classification, entity extraction,
// retrieval, workflow dispatch and output guardrails. Process never returns
// an error; every failure becomes a status, an error code and a safe reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/metrics"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/pipeline")

// Timeouts applied when no option overrides them.
const (
	DefaultCallTimeout     = 30 * time.Second
	DefaultDispatchTimeout = 60 * time.Second
)

// Customer-facing replies for requests that end before a workflow runs.
const (
	MessageInputBlocked  = "We couldn't process your message because it contains content we can't accept. Please remove any sensitive personal information and try again, or contact customer support."
	MessageOutputBlocked = "We're unable to share the details of this request here. Please contact customer support for assistance."
)

// Classifier resolves the intent of a message.
type Classifier interface {
	Classify(ctx context.Context, text string) (intent.Result, error)
}

// Extractor produces the entity record for an intent.
type Extractor interface {
	Extract(ctx context.Context, in intent.Intent, text string) (entity.Record, error)
}

// Retriever grounds a message in the knowledge base.
type Retriever interface {
	Retrieve(ctx context.Context, query string, in intent.Intent) (retrieval.Context, error)
}

// AuditWriter persists one audit record per request.
type AuditWriter interface {
	Generate(ctx context.Context, params evidence.GenerateParams) (*evidence.Evidence, error)
}

// Pipeline is safe for concurrent use; all per-request data lives in a
// RequestState.
type Pipeline struct {
	guard      *guardrail.Validator
	classifier Classifier
	extractor  Extractor
	registry   *workflow.Registry

	retriever       Retriever
	audit           AuditWriter
	html            *bluemonday.Policy
	model           string
	callTimeout     time.Duration
	dispatchTimeout time.Duration
	now             func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRetriever enables grounding. Without one every request is answered
// without context.
func WithRetriever(r Retriever) Option {
	return func(p *Pipeline) { p.retriever = r }
}

// WithAudit writes an audit record for every request.
func WithAudit(a AuditWriter) Option {
	return func(p *Pipeline) { p.audit = a }
}

// WithModel names the generation model in audit records.
func WithModel(model string) Option {
	return func(p *Pipeline) { p.model = model }
}

// WithCallTimeout bounds each classification, extraction and retrieval call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// WithDispatchTimeout bounds one workflow run.
func WithDispatchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.dispatchTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New builds a pipeline from its required stages.
func New(guard *guardrail.Validator, classifier Classifier, extractor Extractor, registry *workflow.Registry, opts ...Option) *Pipeline {
	p := &Pipeline{
		guard:           guard,
		classifier:      classifier,
		extractor:       extractor,
		registry:        registry,
		html:            bluemonday.StrictPolicy(),
		callTimeout:     DefaultCallTimeout,
		dispatchTimeout: DefaultDispatchTimeout,
		now:             time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process handles one request. Cancelling ctx cancels in-flight calls; a
// side effect that was already dispatched stays committed.
func (p *Pipeline) Process(ctx context.Context, req Request) Response {
	st := newRequestState(p.now)
	st.RequestID = evidence.NewRequestID()
	st.CustomerID = strings.TrimSpace(req.CustomerID)
	st.Channel = req.Channel
	if st.Channel == "" {
		st.Channel = ChannelChat
	}
	st.Metadata = req.Metadata
	st.RawText = req.RawText

	st.CorrelationID = requestctx.CorrelationID(ctx)
	if st.CorrelationID == "" {
		st.CorrelationID = requestctx.NewCorrelationID()
		ctx = requestctx.SetCorrelationID(ctx, st.CorrelationID)
	}
	if st.CustomerID != "" {
		ctx = requestctx.SetCustomerID(ctx, st.CustomerID)
	}

	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(
			svcotel.CorrelationID.String(st.CorrelationID),
			svcotel.Channel.String(string(st.Channel)),
			attribute.String("servicing.request_id", st.RequestID),
		))
	defer span.End()

	p.run(ctx, st)

	span.SetAttributes(
		svcotel.Intent.String(string(st.Intent)),
		svcotel.Workflow.String(string(st.Result.Workflow)),
		svcotel.Status.String(string(st.Status)),
		attribute.String("servicing.stage", string(st.Stage)),
	)
	if st.Status == workflow.StatusError {
		span.RecordError(st.Err)
		span.SetStatus(codes.Error, string(st.Code))
	}

	p.finish(ctx, st)
	return st.response()
}

func (p *Pipeline) run(ctx context.Context, st *RequestState) {
	st.Text = st.RawText
	if st.Channel == ChannelEmail {
		st.Text = stripHTML(p.html, st.RawText)
	}

	// INTAKE -> INPUT_VALIDATED
	start := p.now()
	safe, violations := p.guard.ValidateInput(ctx, st.Text, st.CustomerID)
	st.InputViolations = violations
	p.observe(StageInputValidated, start)
	if !safe {
		st.fail(workflow.StatusBlocked, workflow.CodeInputBlocked, nil, MessageInputBlocked)
		return
	}
	p.advance(st, StageInputValidated)

	// INPUT_VALIDATED -> CLASSIFIED
	start = p.now()
	cctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	res, err := p.classifier.Classify(cctx, st.Text)
	cancel()
	p.observe(StageClassified, start)
	if err != nil {
		st.Intent = intent.Fallback
		st.fail(workflow.StatusError, workflow.CodeClassificationFailed, err, workflow.MessageSupport)
		return
	}
	st.Intent = res.Intent
	st.Confidence = res.Confidence
	if st.Confidence != nil && !st.Intent.Conversational() {
		if ok, reason := p.guard.CheckConfidenceThreshold(*st.Confidence, st.Intent); !ok {
			st.fail(workflow.StatusEscalated, workflow.CodeLowConfidence, errors.New(reason), workflow.MessageEscalated)
			return
		}
	}
	p.advance(st, StageClassified)

	// CLASSIFIED -> EXTRACTED
	start = p.now()
	ectx, cancel := context.WithTimeout(ctx, p.callTimeout)
	rec, err := p.extractor.Extract(ectx, st.Intent, st.Text)
	cancel()
	p.observe(StageExtracted, start)
	if err != nil {
		log.Warn().
			Str("correlation_id", st.CorrelationID).
			Str("intent", string(st.Intent)).
			Err(err).
			Msg("entity_extraction_degraded")
	}
	st.Entities = rec
	p.advance(st, StageExtracted)

	// EXTRACTED -> CONTEXT_READY
	start = p.now()
	st.Context = p.retrieve(ctx, st)
	p.observe(StageContextReady, start)
	p.advance(st, StageContextReady)

	// CONTEXT_READY -> DISPATCHED -> WORKFLOW_COMPLETE
	wf := p.registry.Lookup(st.Intent)
	p.advance(st, StageDispatched)
	log.Info().
		Str("correlation_id", st.CorrelationID).
		Str("intent", string(st.Intent)).
		Str("workflow", string(wf.Name())).
		Msg("workflow_dispatched")

	start = p.now()
	dctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	st.Result = wf.Run(dctx, &workflow.Input{
		CustomerID: st.CustomerID,
		Channel:    string(st.Channel),
		Text:       st.Text,
		Intent:     st.Intent,
		Entities:   st.Entities,
		Context:    st.Context,
		Metadata:   st.Metadata,
	})
	cancel()
	p.observe(StageWorkflowComplete, start)
	metrics.RecordWorkflow(string(st.Result.Workflow), string(st.Result.Status))
	if st.Result.Status == workflow.StatusError {
		st.fail(workflow.StatusError, st.Result.Code, st.Result.Err, st.Result.Response)
		return
	}
	p.advance(st, StageWorkflowComplete)

	// WORKFLOW_COMPLETE -> OUTPUT_VALIDATED
	start = p.now()
	safe, violations = p.guard.ValidateOutput(ctx, st.Result.Response, st.Context.Text, st.Text)
	st.OutputViolations = violations
	p.observe(StageOutputValidated, start)
	if !safe {
		st.fail(workflow.StatusBlocked, workflow.CodeOutputBlocked, nil, MessageOutputBlocked)
		return
	}
	p.advance(st, StageOutputValidated)

	st.Response = st.Result.Response
	st.Status = st.Result.Status
	st.Code = st.Result.Code
	p.advance(st, StageResponded)
}

// retrieve degrades every failure to an empty, skipped context.
func (p *Pipeline) retrieve(ctx context.Context, st *RequestState) retrieval.Context {
	if p.retriever == nil {
		metrics.RecordRetrieval("skipped", 0)
		return retrieval.Context{Skipped: true, SkipReason: "knowledge base not configured"}
	}
	// The fallback workflow answers with a fixed message.
	if !p.registry.Routed(st.Intent) && !retrieval.Skips(st.Intent) {
		metrics.RecordRetrieval("skipped", 0)
		return retrieval.Context{
			Skipped:    true,
			SkipReason: fmt.Sprintf("intent %s has no dedicated workflow", st.Intent.Name()),
		}
	}
	rctx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	out, err := p.retriever.Retrieve(rctx, st.Text, st.Intent)
	if err != nil {
		metrics.RecordRetrieval("failed", 0)
		log.Warn().
			Str("correlation_id", st.CorrelationID).
			Str("intent", string(st.Intent)).
			Err(err).
			Msg("retrieval_degraded")
		return retrieval.Context{
			Skipped:    true,
			SkipReason: fmt.Sprintf("%s: %v", workflow.CodeRetrievalFailed, err),
		}
	}
	switch {
	case out.Skipped:
		metrics.RecordRetrieval("skipped", 0)
	case len(out.Results) == 0:
		metrics.RecordRetrieval("empty", 0)
	default:
		metrics.RecordRetrieval("hit", len(out.Results))
	}
	return out
}

// advance moves st forward. The run order only requests legal transitions,
// so a failure here is a programming error worth logging loudly.
func (p *Pipeline) advance(st *RequestState, to Stage) {
	if err := st.Advance(to); err != nil {
		log.Error().
			Str("correlation_id", st.CorrelationID).
			Err(err).
			Msg("stage_transition_rejected")
	}
}

func (p *Pipeline) observe(stage Stage, start time.Time) {
	metrics.RecordStage(string(stage), p.now().Sub(start))
}

// finish records metrics, the audit record and the summary log line.
func (p *Pipeline) finish(ctx context.Context, st *RequestState) {
	elapsed := p.now().Sub(st.started)
	metrics.RecordRequest(string(st.Channel), string(st.Intent), string(st.Status), elapsed)
	for _, v := range st.InputViolations {
		metrics.RecordViolation(string(v.Stage), v.Category, string(v.Severity))
	}
	for _, v := range st.OutputViolations {
		metrics.RecordViolation(string(v.Stage), v.Category, string(v.Severity))
	}

	// The record is written even when the caller has gone away.
	if p.audit != nil {
		if _, err := p.audit.Generate(context.WithoutCancel(ctx), p.auditParams(st, elapsed)); err != nil {
			log.Error().
				Str("correlation_id", st.CorrelationID).
				Str("request_id", st.RequestID).
				Err(err).
				Msg("audit_write_failed")
		}
	}

	ev := log.Info()
	if st.Status == workflow.StatusError {
		ev = log.Warn()
	}
	ev.Func(svcotel.LogTraceFields(ctx)).
		Str("correlation_id", st.CorrelationID).
		Str("request_id", st.RequestID).
		Str("channel", string(st.Channel)).
		Str("intent", string(st.Intent)).
		Str("workflow", string(st.Result.Workflow)).
		Str("status", string(st.Status)).
		Str("error_code", string(st.Code)).
		Str("stage", string(st.Stage)).
		Int("violations", len(st.InputViolations)+len(st.OutputViolations)).
		Int("context_sources", len(st.Context.Sources)).
		Int64("duration_ms", elapsed.Milliseconds()).
		Msg("request_processed")
	if st.Err != nil {
		log.Debug().
			Str("correlation_id", st.CorrelationID).
			Str("error", p.guard.SanitizePII(st.Err.Error())).
			Msg("request_failure_detail")
	}
}

func (p *Pipeline) auditParams(st *RequestState, elapsed time.Duration) evidence.GenerateParams {
	params := evidence.GenerateParams{
		RequestID:      st.RequestID,
		CorrelationID:  st.CorrelationID,
		CustomerID:     st.CustomerID,
		Channel:        string(st.Channel),
		Intent:         string(st.Intent),
		Confidence:     st.Confidence,
		Workflow:       string(st.Result.Workflow),
		Status:         string(st.Status),
		ErrorCode:      string(st.Code),
		EntityKind:     string(st.Entities.Kind),
		EntityFallback: st.Entities.Fallback,
		Guardrails: evidence.Guardrails{
			InputViolations:  len(st.InputViolations),
			OutputViolations: len(st.OutputViolations),
			Rules:            guardrail.Summarize(st.Violations()).Rules,
			Blocked:          st.Code == workflow.CodeInputBlocked || st.Code == workflow.CodeOutputBlocked,
		},
		Retrieval: evidence.Retrieval{
			Skipped:    st.Context.Skipped,
			SkipReason: st.Context.SkipReason,
		},
		Outcome:     outcome(st.Result.Data),
		ModelUsed:   p.model,
		DurationMS:  elapsed.Milliseconds(),
		Transitions: st.Path(),
		InputText:   st.Text,
		OutputText:  st.Response,
	}
	if st.Err != nil {
		params.Error = st.Err.Error()
	}
	for _, src := range st.Context.Sources {
		params.Retrieval.Sources = append(params.Retrieval.Sources, src.DocumentID)
	}
	if d := st.Result.Decision; d != nil {
		params.PolicyDecision = &evidence.PolicyDecision{
			Allowed:       d.Allowed,
			Action:        string(d.Action),
			Reasons:       d.Reasons,
			Priority:      d.Priority,
			PolicyVersion: d.PolicyVersion,
		}
	}
	return params
}

// outcomeKeys are the result fields kept in the audit record. Entity values
// such as addresses are left out.
var outcomeKeys = []string{"case_id", "crm_case_id", "status", "priority", "notification"}

func outcome(data map[string]interface{}) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string)
	for _, k := range outcomeKeys {
		if v, ok := data[k]; ok {
			out[k] = fmt.Sprint(v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
