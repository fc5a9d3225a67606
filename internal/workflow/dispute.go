package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/integrations"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
)

// Dispute opens a dispute case ranked by amount. Amounts over the
// escalation limit go to a specialist instead.
type Dispute struct {
	Policy    PolicyGate
	Cases     CaseOpener
	Responder *Responder
}

func (w *Dispute) Name() Name { return DisputeWorkflow }

func (w *Dispute) Run(ctx context.Context, in *Input) Result {
	ctx, span := tracer.Start(ctx, "workflow.dispute")
	defer span.End()

	if !hasDispute(in.Entities.Dispute) {
		return respond(ctx, w.Responder, DisputeWorkflow, in, nil, "",
			map[string]interface{}{"status": "information"})
	}

	decision, res, ok := checkGate(ctx, w.Policy, DisputeWorkflow, policy.GateDispute, in)
	if !ok {
		return res
	}

	d := in.Entities.Dispute
	priority := decision.Priority
	if priority == "" {
		priority = "low"
	}
	c, err := w.Cases.CreateCase(ctx, integrations.CaseRequest{
		CaseType:    "dispute",
		Description: disputeDescription(d),
		Priority:    priority,
		Metadata:    disputeMetadata(in.CustomerID, d),
	})
	if err != nil {
		span.RecordError(err)
		return failed(DisputeWorkflow, CodeCollaboratorFailed, err)
	}

	data := map[string]interface{}{
		"status":         "dispute_created",
		"case_id":        c.CaseID,
		"priority":       priority,
		"transaction_id": d.TransactionID,
	}
	if d.Amount != nil {
		data["amount"] = *d.Amount
	}
	outcome := fmt.Sprintf("Dispute case %s was opened with %s priority.", c.CaseID, priority)
	return respond(ctx, w.Responder, DisputeWorkflow, in, decision, outcome, data)
}

func hasDispute(d *entity.Dispute) bool {
	return d != nil && (d.TransactionID != "" || d.Amount != nil || d.Merchant != "" ||
		d.Reason != "" || d.TransactionDate != "")
}

func disputeDescription(d *entity.Dispute) string {
	var b strings.Builder
	merchant := d.Merchant
	if merchant == "" {
		merchant = "merchant"
	}
	fmt.Fprintf(&b, "Transaction dispute for %s", merchant)
	if d.TransactionID != "" {
		fmt.Fprintf(&b, " (Transaction: %s)", d.TransactionID)
	}
	if d.Amount != nil {
		fmt.Fprintf(&b, " - Amount: $%.2f", *d.Amount)
	}
	reason := d.Reason
	if reason == "" {
		reason = "unspecified"
	}
	fmt.Fprintf(&b, " - Reason: %s", reason)
	return b.String()
}

func disputeMetadata(customerID string, d *entity.Dispute) map[string]interface{} {
	m := map[string]interface{}{
		"customer_id":      customerID,
		"transaction_id":   d.TransactionID,
		"transaction_date": d.TransactionDate,
		"reason":           d.Reason,
		"merchant":         d.Merchant,
	}
	if d.Amount != nil {
		m["amount"] = *d.Amount
	}
	return m
}
