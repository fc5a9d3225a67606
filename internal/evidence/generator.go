package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// Generator creates and persists evidence records.
type Generator struct {
	store     *Store
	sanitizer Sanitizer
	now       func() time.Time
}

// NewGenerator creates an evidence generator backed by the given store.
// sanitizer redacts the stored input preview and error text.
func NewGenerator(store *Store, sanitizer Sanitizer) *Generator {
	return &Generator{store: store, sanitizer: sanitizer, now: time.Now}
}

// GenerateParams holds all inputs for creating an evidence record.
// The pipeline fills it in once a request has reached a terminal stage; the
// Generator hashes the texts, redacts the preview, signs and persists.
type GenerateParams struct {
	RequestID      string // Response request_id; generated when empty
	CorrelationID  string
	CustomerID     string
	Channel        string
	Intent         string
	Confidence     *float64
	Workflow       string
	Status         string
	ErrorCode      string
	EntityKind     string
	EntityFallback bool
	Guardrails     Guardrails
	PolicyDecision *PolicyDecision // nil when no gate ran
	Retrieval      Retrieval
	Outcome        map[string]string // case ids and side-effect status
	ModelUsed      string
	DurationMS     int64
	Transitions    []string
	Error          string
	InputText      string // hashed and previewed, never stored verbatim
	OutputText     string // hashed
}

// NewRequestID returns a short request id ("req_" + 8 hex chars).
func NewRequestID() string {
	return "req_" + uuid.New().String()[:8]
}

// Generate creates and stores an evidence record from the given parameters.
func (g *Generator) Generate(ctx context.Context, params GenerateParams) (*Evidence, error) {
	id := params.RequestID
	if id == "" {
		id = NewRequestID()
	}
	ev := &Evidence{
		ID:             id,
		CorrelationID:  params.CorrelationID,
		Timestamp:      g.now(),
		CustomerID:     params.CustomerID,
		Channel:        params.Channel,
		Intent:         params.Intent,
		Confidence:     params.Confidence,
		Workflow:       params.Workflow,
		Status:         params.Status,
		ErrorCode:      params.ErrorCode,
		EntityKind:     params.EntityKind,
		EntityFallback: params.EntityFallback,
		Guardrails:     params.Guardrails,
		PolicyDecision: params.PolicyDecision,
		Retrieval:      params.Retrieval,
		Outcome:        params.Outcome,
		Execution: Execution{
			ModelUsed:   params.ModelUsed,
			DurationMS:  params.DurationMS,
			Transitions: params.Transitions,
			Error:       SanitizeForEvidence(params.Error, g.sanitizer),
		},
		AuditTrail: AuditTrail{
			InputHash:  hashString(params.InputText),
			OutputHash: hashString(params.OutputText),
		},
		InputPreview: SanitizeForEvidence(params.InputText, g.sanitizer),
	}

	if err := g.store.Store(ctx, ev); err != nil {
		return nil, err
	}

	return ev, nil
}

func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return "sha256:" + hex.EncodeToString(h[:])
}
