package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/integrations"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
)

// Statement records a statement request in the CRM and confirms it by
// e-mail. Like fraud, a failed confirmation does not undo the request.
type Statement struct {
	Policy    PolicyGate
	CRM       CRMRecorder
	Notifier  Notifier
	Responder *Responder
}

func (w *Statement) Name() Name { return StatementWorkflow }

func (w *Statement) Run(ctx context.Context, in *Input) Result {
	ctx, span := tracer.Start(ctx, "workflow.statement")
	defer span.End()

	decision, res, ok := checkGate(ctx, w.Policy, StatementWorkflow, policy.GateStatement, in)
	if !ok {
		return res
	}

	st := in.Entities.Statement
	if st == nil {
		st = &entity.Statement{StatementType: "monthly", DeliveryMethod: "email"}
	}
	details := map[string]interface{}{
		"statement_type":  st.StatementType,
		"start_date":      st.StartDate,
		"end_date":        st.EndDate,
		"delivery_method": st.DeliveryMethod,
	}
	c, err := w.CRM.CreateCase(ctx, in.CustomerID, "statement_request", details)
	if err != nil {
		span.RecordError(err)
		return failed(StatementWorkflow, CodeCollaboratorFailed, err)
	}

	data := map[string]interface{}{
		"status":          "statement_requested",
		"crm_case_id":     c.ID,
		"delivery_method": st.DeliveryMethod,
		"notification":    "sent",
	}
	err = w.Notifier.SendEmail(ctx, integrations.Email{
		To:      in.Recipient(),
		Subject: "Your statement request",
		Body:    fmt.Sprintf("We received your request for a %s statement. It will be delivered by %s.", st.StatementType, st.DeliveryMethod),
	})
	if err != nil {
		span.RecordError(err)
		data["notification"] = "failed"
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Int64("crm_case_id", c.ID).
			Err(err).
			Msg("statement_notification_failed")
	}

	outcome := fmt.Sprintf("A %s statement was requested for delivery by %s.", st.StatementType, st.DeliveryMethod)
	if st.StartDate != "" && st.EndDate != "" {
		outcome = fmt.Sprintf("A %s statement covering %s to %s was requested for delivery by %s.",
			st.StatementType, st.StartDate, st.EndDate, st.DeliveryMethod)
	}
	return respond(ctx, w.Responder, StatementWorkflow, in, decision, outcome, data)
}
