package workflow

import (
	"context"
	"fmt"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
)

// Address changes the customer's address of record. A request that names no
// address at all is a question about the process and is answered from the
// policy context without touching core banking.
type Address struct {
	Policy    PolicyGate
	Core      AddressUpdater
	Responder *Responder
}

func (w *Address) Name() Name { return AddressWorkflow }

func (w *Address) Run(ctx context.Context, in *Input) Result {
	ctx, span := tracer.Start(ctx, "workflow.address")
	defer span.End()

	if !hasAddress(in.Entities.Address) {
		return respond(ctx, w.Responder, AddressWorkflow, in, nil, "",
			map[string]interface{}{"status": "information"})
	}

	decision, res, ok := checkGate(ctx, w.Policy, AddressWorkflow, policy.GateAddress, in)
	if !ok {
		return res
	}

	addr := *in.Entities.Address
	ack, err := w.Core.UpdateAddress(ctx, in.CustomerID, addr)
	if err != nil {
		span.RecordError(err)
		return failed(AddressWorkflow, CodeCollaboratorFailed, err)
	}

	outcome := fmt.Sprintf("The %s address on file was updated to %s, %s, %s %s.",
		addr.AddressType, addr.Street, addr.City, addr.State, addr.ZipCode)
	return respond(ctx, w.Responder, AddressWorkflow, in, decision, outcome, map[string]interface{}{
		"status":      "address_updated",
		"core_status": ack.Status,
		"address":     addr,
	})
}

func hasAddress(a *entity.Address) bool {
	return a != nil && (a.Street != "" || a.City != "" || a.State != "" || a.ZipCode != "")
}

// respond finishes a workflow with a generated reply. A generation failure
// after a committed side effect is still an error, but Data keeps the
// side-effect references for the audit trail.
func respond(ctx context.Context, r *Responder, name Name, in *Input, d *policy.Decision, outcome string, data map[string]interface{}) Result {
	text, err := r.Respond(ctx, in, outcome)
	if err != nil {
		res := failed(name, CodeGenerationFailed, err)
		res.Decision = d
		res.Data = data
		return res
	}
	return Result{
		Workflow: name,
		Status:   StatusOK,
		Response: text,
		Decision: d,
		Data:     data,
	}
}
