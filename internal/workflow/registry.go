package workflow

import (
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// Registry maps intents to workflows. It is built once and read-only
// afterwards; intents without an entry get the fallback.
type Registry struct {
	routes   map[intent.Intent]Workflow
	fallback Workflow
}

// NewRegistry builds a registry. A nil fallback selects Fallback.
func NewRegistry(fallback Workflow, routes map[intent.Intent]Workflow) *Registry {
	if fallback == nil {
		fallback = Fallback{}
	}
	r := &Registry{routes: make(map[intent.Intent]Workflow, len(routes)), fallback: fallback}
	for in, w := range routes {
		r.routes[in] = w
	}
	return r
}

// Lookup returns the workflow for in. It never returns nil.
func (r *Registry) Lookup(in intent.Intent) Workflow {
	if w, ok := r.routes[in]; ok && w != nil {
		return w
	}
	return r.fallback
}

// Routed reports whether in has a dedicated workflow.
func (r *Registry) Routed(in intent.Intent) bool {
	w, ok := r.routes[in]
	return ok && w != nil
}

// Routes returns the intents with a dedicated workflow.
func (r *Registry) Routes() map[intent.Intent]Name {
	out := make(map[intent.Intent]Name, len(r.routes))
	for in, w := range r.routes {
		out[in] = w.Name()
	}
	return out
}

// Deps are the collaborators of the standard workflows.
type Deps struct {
	Policy       PolicyGate
	Core         AddressUpdater
	Cases        CaseOpener
	CRM          CRMRecorder
	Notification Notifier
	Responder    *Responder
}

// DefaultRegistry wires the standard workflows.
func DefaultRegistry(d Deps) *Registry {
	address := &Address{Policy: d.Policy, Core: d.Core, Responder: d.Responder}
	dispute := &Dispute{Policy: d.Policy, Cases: d.Cases, Responder: d.Responder}
	fraud := &Fraud{Policy: d.Policy, Cases: d.Cases, Notifier: d.Notification, Responder: d.Responder}
	statement := &Statement{Policy: d.Policy, CRM: d.CRM, Notifier: d.Notification, Responder: d.Responder}

	return NewRegistry(Fallback{}, map[intent.Intent]Workflow{
		intent.AddressUpdate:    address,
		intent.Dispute:          dispute,
		intent.FraudReport:      fraud,
		intent.StatementRequest: statement,
	})
}
