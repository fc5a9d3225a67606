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

// Fraud opens a critical case for every report and confirms it by e-mail.
// The case is committed once opened; a failed e-mail does not fail the
// request.
type Fraud struct {
	Policy    PolicyGate
	Cases     CaseOpener
	Notifier  Notifier
	Responder *Responder
}

func (w *Fraud) Name() Name { return FraudWorkflow }

func (w *Fraud) Run(ctx context.Context, in *Input) Result {
	ctx, span := tracer.Start(ctx, "workflow.fraud")
	defer span.End()

	decision, res, ok := checkGate(ctx, w.Policy, FraudWorkflow, policy.GateFraud, in)
	if !ok {
		return res
	}
	priority := decision.Priority
	if priority == "" {
		priority = "critical"
	}

	d := in.Entities.Dispute
	if d == nil {
		d = &entity.Dispute{IsFraud: true}
	}
	meta := disputeMetadata(in.CustomerID, d)
	meta["channel"] = in.Channel
	c, err := w.Cases.CreateCase(ctx, integrations.CaseRequest{
		CaseType:    "fraud",
		Description: "Suspected fraud reported by customer - " + disputeDescription(d),
		Priority:    priority,
		Metadata:    meta,
	})
	if err != nil {
		span.RecordError(err)
		return failed(FraudWorkflow, CodeCollaboratorFailed, err)
	}

	data := map[string]interface{}{
		"status":       "fraud_case_created",
		"case_id":      c.CaseID,
		"priority":     priority,
		"notification": "sent",
	}
	err = w.Notifier.SendEmail(ctx, integrations.Email{
		To:      in.Recipient(),
		Subject: "We received your fraud report",
		Body: fmt.Sprintf("Your fraud report has been logged as case %s. "+
			"A fraud specialist will contact you shortly. If your card is still in your possession, "+
			"you can freeze it at any time in online banking.", c.CaseID),
	})
	if err != nil {
		span.RecordError(err)
		data["notification"] = "failed"
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Str("case_id", c.CaseID).
			Err(err).
			Msg("fraud_notification_failed")
	}

	outcome := fmt.Sprintf("Fraud case %s was opened with critical priority and a fraud specialist will follow up.", c.CaseID)
	return respond(ctx, w.Responder, FraudWorkflow, in, decision, outcome, data)
}
