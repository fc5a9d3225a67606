// Package evidence provides an HMAC-signed audit trail for servicing requests.
//
// Every request that reaches the pipeline, whether it completed, was blocked
// by a guardrail or policy, or failed, produces an Evidence record that is
// signed (HMAC-SHA256) and persisted in SQLite. Raw customer text is never
// stored: the record keeps content hashes and a PII-redacted preview.
package evidence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/evidence")

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("evidence not found")

// Store persists HMAC-signed evidence records in SQLite.
type Store struct {
	db     *sql.DB
	signer *Signer
}

// Evidence is the full audit record for a single servicing request.
type Evidence struct {
	ID             string            `json:"id"`
	CorrelationID  string            `json:"correlation_id"`
	Timestamp      time.Time         `json:"timestamp"`
	CustomerID     string            `json:"customer_id"`
	Channel        string            `json:"channel"`
	Intent         string            `json:"intent,omitempty"`
	Confidence     *float64          `json:"confidence,omitempty"`
	Workflow       string            `json:"workflow,omitempty"`
	Status         string            `json:"status"`
	ErrorCode      string            `json:"error_code,omitempty"`
	EntityKind     string            `json:"entity_kind,omitempty"`
	EntityFallback bool              `json:"entity_fallback,omitempty"`
	Guardrails     Guardrails        `json:"guardrails"`
	PolicyDecision *PolicyDecision   `json:"policy_decision,omitempty"`
	Retrieval      Retrieval         `json:"retrieval"`
	Outcome        map[string]string `json:"outcome,omitempty"`
	Execution      Execution         `json:"execution"`
	AuditTrail     AuditTrail        `json:"audit_trail"`
	InputPreview   string            `json:"input_preview,omitempty"`
	Signature      string            `json:"signature"`
}

// Guardrails captures what the input and output checks found.
type Guardrails struct {
	InputViolations  int      `json:"input_violations"`
	OutputViolations int      `json:"output_violations"`
	Rules            []string `json:"rules,omitempty"`
	Blocked          bool     `json:"blocked"`
}

// PolicyDecision captures the workflow gate result.
type PolicyDecision struct {
	Allowed       bool     `json:"allowed"`
	Action        string   `json:"action"`
	Reasons       []string `json:"reasons,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	PolicyVersion string   `json:"policy_version"`
}

// Retrieval records which policy documents grounded the response.
type Retrieval struct {
	Sources    []string `json:"sources,omitempty"`
	Skipped    bool     `json:"skipped,omitempty"`
	SkipReason string   `json:"skip_reason,omitempty"`
}

// Execution captures pipeline and LLM call details.
type Execution struct {
	ModelUsed   string   `json:"model_used,omitempty"`
	DurationMS  int64    `json:"duration_ms"`
	Transitions []string `json:"transitions,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// AuditTrail contains content hashes for integrity verification.
type AuditTrail struct {
	InputHash  string `json:"input_hash"`
	OutputHash string `json:"output_hash"`
}

// Filter narrows List and ListIndex. Zero fields match everything.
type Filter struct {
	CustomerID string
	Intent     string
	Status     string
	From       time.Time
	To         time.Time
	Limit      int
}

// NewStore creates an evidence store with HMAC signing.
func NewStore(dbPath string, signingKey string) (*Store, error) {
	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening evidence database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS evidence (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		customer_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		intent TEXT NOT NULL,
		status TEXT NOT NULL,
		evidence_json TEXT NOT NULL,
		signature TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_evidence_customer ON evidence(customer_id);
	CREATE INDEX IF NOT EXISTS idx_evidence_intent ON evidence(intent);
	CREATE INDEX IF NOT EXISTS idx_evidence_timestamp ON evidence(timestamp);
	CREATE INDEX IF NOT EXISTS idx_evidence_correlation ON evidence(correlation_id);
	`

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating evidence schema: %w", err)
	}

	return &Store{
		db:     db,
		signer: signer,
	}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Store signs ev and saves it. The signature covers the JSON encoding of the
// record with an empty Signature field.
func (s *Store) Store(ctx context.Context, ev *Evidence) error {
	ctx, span := tracer.Start(ctx, "evidence.store",
		trace.WithAttributes(
			attribute.String("evidence.id", ev.ID),
			attribute.String("servicing.intent", ev.Intent),
			attribute.String("servicing.status", ev.Status),
		))
	defer span.End()

	ev.Timestamp = ev.Timestamp.UTC()
	ev.Signature = ""
	evidenceJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling evidence: %w", err)
	}
	ev.Signature = s.signer.Sign(evidenceJSON)

	evidenceJSONWithSig, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling signed evidence: %w", err)
	}

	query := `INSERT INTO evidence (id, correlation_id, timestamp, customer_id, channel, intent, status, evidence_json, signature)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		ev.ID, ev.CorrelationID, ev.Timestamp, ev.CustomerID, ev.Channel,
		ev.Intent, ev.Status, string(evidenceJSONWithSig), ev.Signature,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("storing evidence: %w", err)
	}

	return nil
}

// Get retrieves evidence by ID.
func (s *Store) Get(ctx context.Context, id string) (*Evidence, error) {
	ctx, span := tracer.Start(ctx, "evidence.get",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	var evidenceJSON string
	query := `SELECT evidence_json FROM evidence WHERE id = ?`
	err := s.db.QueryRowContext(ctx, query, id).Scan(&evidenceJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}

	var ev Evidence
	if err := json.Unmarshal([]byte(evidenceJSON), &ev); err != nil {
		return nil, fmt.Errorf("unmarshaling evidence: %w", err)
	}

	return &ev, nil
}

// List returns evidence records matching f, newest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Evidence, error) {
	ctx, span := tracer.Start(ctx, "evidence.list",
		trace.WithAttributes(
			attribute.String("servicing.customer_id", f.CustomerID),
			attribute.String("servicing.intent", f.Intent),
		))
	defer span.End()

	query, args := f.sql()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying evidence: %w", err)
	}
	defer rows.Close()

	var results []Evidence
	for rows.Next() {
		var evidenceJSON string
		if err := rows.Scan(&evidenceJSON); err != nil {
			continue
		}

		var ev Evidence
		if err := json.Unmarshal([]byte(evidenceJSON), &ev); err != nil {
			continue
		}

		results = append(results, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading evidence rows: %w", err)
	}

	span.SetAttributes(attribute.Int("evidence.count", len(results)))
	return results, nil
}

func (f Filter) sql() (string, []interface{}) {
	query := `SELECT evidence_json FROM evidence WHERE 1=1`
	args := []interface{}{}

	if f.CustomerID != "" {
		query += ` AND customer_id = ?`
		args = append(args, f.CustomerID)
	}
	if f.Intent != "" {
		query += ` AND intent = ?`
		args = append(args, f.Intent)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if !f.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.To.UTC())
	}

	query += ` ORDER BY timestamp DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return query, args
}

// Verify checks the HMAC signature integrity of an evidence record.
func (s *Store) Verify(ctx context.Context, id string) (bool, error) {
	ctx, span := tracer.Start(ctx, "evidence.verify",
		trace.WithAttributes(attribute.String("evidence.id", id)))
	defer span.End()

	ev, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}

	signature := ev.Signature
	ev.Signature = ""

	evidenceJSON, err := json.Marshal(ev)
	if err != nil {
		return false, fmt.Errorf("marshaling for verification: %w", err)
	}

	valid := s.signer.Verify(evidenceJSON, signature)
	span.SetAttributes(attribute.Bool("evidence.valid", valid))
	return valid, nil
}

// Index is a compact summary used by list views.
type Index struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	CustomerID string    `json:"customer_id"`
	Channel    string    `json:"channel"`
	Intent     string    `json:"intent,omitempty"`
	Workflow   string    `json:"workflow,omitempty"`
	Status     string    `json:"status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

// ListIndex returns lightweight summaries of the records matching f.
func (s *Store) ListIndex(ctx context.Context, f Filter) ([]Index, error) {
	records, err := s.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("querying evidence index: %w", err)
	}
	out := make([]Index, 0, len(records))
	for i := range records {
		out = append(out, toIndex(&records[i]))
	}
	return out, nil
}

// toIndex projects a full Evidence record into a lightweight Index.
func toIndex(full *Evidence) Index {
	return Index{
		ID:         full.ID,
		Timestamp:  full.Timestamp,
		CustomerID: full.CustomerID,
		Channel:    full.Channel,
		Intent:     full.Intent,
		Workflow:   full.Workflow,
		Status:     full.Status,
		ErrorCode:  full.ErrorCode,
		DurationMS: full.Execution.DurationMS,
	}
}
