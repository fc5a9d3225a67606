package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

// Stage is a state of the request state machine.
type Stage string

const (
	StageIntake           Stage = "INTAKE"
	StageInputValidated   Stage = "INPUT_VALIDATED"
	StageClassified       Stage = "CLASSIFIED"
	StageExtracted        Stage = "EXTRACTED"
	StageContextReady     Stage = "CONTEXT_READY"
	StageDispatched       Stage = "DISPATCHED"
	StageWorkflowComplete Stage = "WORKFLOW_COMPLETE"
	StageOutputValidated  Stage = "OUTPUT_VALIDATED"
	StageResponded        Stage = "RESPONDED"
	StageError            Stage = "ERROR"
)

// ErrInvalidTransition is returned when a stage change skips the order.
var ErrInvalidTransition = errors.New("invalid stage transition")

// transitions lists the legal next stages. ERROR ends every early exit:
// a blocked input, a failed classification, a low-confidence escalation, a
// failed workflow and a blocked reply.
var transitions = map[Stage][]Stage{
	StageIntake:           {StageInputValidated, StageError},
	StageInputValidated:   {StageClassified, StageError},
	StageClassified:       {StageExtracted, StageError},
	StageExtracted:        {StageContextReady},
	StageContextReady:     {StageDispatched},
	StageDispatched:       {StageWorkflowComplete, StageError},
	StageWorkflowComplete: {StageOutputValidated, StageError},
	StageOutputValidated:  {StageResponded},
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool { return s == StageResponded || s == StageError }

// Transition is one recorded stage change.
type Transition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// StageFailure is an internal failure tied to the stage that produced it and
// the code reported for it.
type StageFailure struct {
	Stage Stage
	Code  workflow.ErrorCode
	Err   error
}

func (e *StageFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Code)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Code, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// RequestState is owned by one Process call and never shared. Fields are
// filled in as stages complete; zero values mean the stage has not run.
type RequestState struct {
	RequestID     string
	CorrelationID string
	CustomerID    string
	Channel       Channel
	Metadata      map[string]string
	// RawText is the message as received; Text is what the stages see
	// (HTML stripped for e-mail).
	RawText string
	Text    string

	Stage       Stage
	Transitions []Transition

	Intent     intent.Intent
	Confidence *float64
	Entities   entity.Record
	Context    retrieval.Context

	InputViolations  []guardrail.Violation
	OutputViolations []guardrail.Violation

	Result   workflow.Result
	Response string
	Status   workflow.Status
	Code     workflow.ErrorCode
	Err      error

	started time.Time
	now     func() time.Time
}

func newRequestState(now func() time.Time) *RequestState {
	return &RequestState{
		Stage:   StageIntake,
		started: now(),
		now:     now,
	}
}

// Advance moves to stage to, recording the transition.
func (s *RequestState) Advance(to Stage) error {
	for _, next := range transitions[s.Stage] {
		if next == to {
			s.Transitions = append(s.Transitions, Transition{From: s.Stage, To: to, At: s.now()})
			s.Stage = to
			return nil
		}
	}
	return fmt.Errorf("%s -> %s: %w", s.Stage, to, ErrInvalidTransition)
}

// fail ends the request in ERROR with the given status and customer message.
func (s *RequestState) fail(status workflow.Status, code workflow.ErrorCode, err error, message string) {
	from := s.Stage
	if aerr := s.Advance(StageError); aerr != nil {
		s.Transitions = append(s.Transitions, Transition{From: from, To: StageError, At: s.now()})
		s.Stage = StageError
	}
	s.Status = status
	s.Code = code
	s.Response = message
	s.Err = &StageFailure{Stage: from, Code: code, Err: err}
}

// Path lists the visited stages in order, starting with INTAKE.
func (s *RequestState) Path() []string {
	out := []string{string(StageIntake)}
	for _, t := range s.Transitions {
		out = append(out, string(t.To))
	}
	return out
}

// Violations returns input and output violations together.
func (s *RequestState) Violations() []guardrail.Violation {
	out := make([]guardrail.Violation, 0, len(s.InputViolations)+len(s.OutputViolations))
	out = append(out, s.InputViolations...)
	return append(out, s.OutputViolations...)
}
