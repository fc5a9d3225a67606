package evidence

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(filepath.Join(dir, "evidence.db"), testutil.TestSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestGenerator(t *testing.T, store *Store) *Generator {
	t.Helper()
	return NewGenerator(store, guardrail.MustNewValidator())
}

func TestStoreAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	conf := 0.93
	gen := newTestGenerator(t, store)
	ev, err := gen.Generate(ctx, GenerateParams{
		CorrelationID: "corr_test12345678",
		CustomerID:    testutil.TestCustomerID,
		Channel:       "chat",
		Intent:        "dispute",
		Confidence:    &conf,
		Workflow:      "dispute_workflow",
		Status:        "ok",
		EntityKind:    "dispute",
		PolicyDecision: &PolicyDecision{
			Allowed:       true,
			Action:        "allow",
			Priority:      "medium",
			PolicyVersion: "sha256:abc12345",
		},
		Retrieval:  Retrieval{Sources: []string{"POL-DISP-001"}},
		Outcome:    map[string]string{"case_id": "CASE-000001"},
		ModelUsed:  "gpt-4o-mini",
		DurationMS: 250,
		InputText:  "I want to dispute a $250 charge from Amazon",
		OutputText: "We opened a dispute case.",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ev.ID, "req_"))
	assert.True(t, strings.HasPrefix(ev.Signature, SignaturePrefix))

	retrieved, err := store.Get(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, retrieved.ID)
	assert.Equal(t, testutil.TestCustomerID, retrieved.CustomerID)
	assert.Equal(t, "dispute_workflow", retrieved.Workflow)
	assert.Equal(t, "medium", retrieved.PolicyDecision.Priority)
	assert.Equal(t, "CASE-000001", retrieved.Outcome["case_id"])
	require.NotNil(t, retrieved.Confidence)
	assert.InDelta(t, 0.93, *retrieved.Confidence, 1e-9)
	assert.Equal(t, hashString("We opened a dispute case."), retrieved.AuditTrail.OutputHash)
}

func TestGenerate_UsesRequestID(t *testing.T) {
	store := newTestStore(t)
	gen := newTestGenerator(t, store)

	ev, err := gen.Generate(context.Background(), GenerateParams{
		RequestID:  "req_fixed01",
		CustomerID: testutil.TestCustomerID,
		Channel:    "web",
		Status:     "ok",
	})
	require.NoError(t, err)
	assert.Equal(t, "req_fixed01", ev.ID)
}

func TestGenerate_RedactsInputPreview(t *testing.T) {
	store := newTestStore(t)
	gen := newTestGenerator(t, store)

	ev, err := gen.Generate(context.Background(), GenerateParams{
		CustomerID: testutil.TestCustomerID,
		Channel:    "chat",
		Status:     "blocked",
		ErrorCode:  "INPUT_BLOCKED",
		Guardrails: Guardrails{InputViolations: 1, Rules: []string{"ssn"}, Blocked: true},
		InputText:  "My SSN is 123-45-6789, please update it",
		Error:      "input contained 123-45-6789",
	})
	require.NoError(t, err)

	got, err := store.Get(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.InputPreview, "123-45-6789")
	assert.Contains(t, got.InputPreview, "XXX-XX-XXXX")
	assert.NotContains(t, got.Execution.Error, "123-45-6789")
	assert.Equal(t, hashString("My SSN is 123-45-6789, please update it"), got.AuditTrail.InputHash)
}

func TestSanitizeForEvidence(t *testing.T) {
	v := guardrail.MustNewValidator()

	assert.Empty(t, SanitizeForEvidence("call 555-123-4567", nil), "no sanitizer keeps nothing")
	assert.Empty(t, SanitizeForEvidence("", v))
	assert.Equal(t, "call XXX-XXX-XXXX", SanitizeForEvidence("call 555-123-4567", v))

	long := strings.Repeat("a", previewLen+50)
	got := SanitizeForEvidence(long, v)
	assert.Equal(t, previewLen+3, len(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestVerifySignature(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	gen := newTestGenerator(t, store)
	ev, err := gen.Generate(ctx, GenerateParams{
		CorrelationID:  "corr_verify",
		CustomerID:     testutil.TestCustomerID,
		Channel:        "email",
		Status:         "escalated",
		ErrorCode:      "POLICY_ESCALATED",
		PolicyDecision: &PolicyDecision{Allowed: false, Action: "escalate", Reasons: []string{"over limit"}},
		InputText:      "test",
		OutputText:     "response",
	})
	require.NoError(t, err)

	valid, err := store.Verify(ctx, ev.ID)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestVerifyTamperedData(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gen := newTestGenerator(t, store)

	ev, err := gen.Generate(ctx, GenerateParams{
		CorrelationID: "corr_tamper",
		CustomerID:    testutil.TestCustomerID,
		Channel:       "chat",
		Status:        "blocked",
		InputText:     "test",
	})
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx,
		`UPDATE evidence SET evidence_json = REPLACE(evidence_json, '"blocked"', '"ok"') WHERE id = ?`, ev.ID)
	require.NoError(t, err)

	valid, err := store.Verify(ctx, ev.ID)
	require.NoError(t, err)
	assert.False(t, valid, "tampered evidence should fail verification")
}

func TestGetNonexistent(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "req_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = store.Verify(context.Background(), "req_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListWithFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gen := newTestGenerator(t, store)

	seed := []struct{ customer, intent, status string }{
		{"CUST-001", "dispute", "ok"},
		{"CUST-001", "fraud_report", "ok"},
		{"CUST-002", "dispute", "escalated"},
	}
	for _, s := range seed {
		_, err := gen.Generate(ctx, GenerateParams{
			CustomerID: s.customer,
			Channel:    "chat",
			Intent:     s.intent,
			Status:     s.status,
		})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"customer", Filter{CustomerID: "CUST-001"}, 2},
		{"intent", Filter{Intent: "dispute"}, 2},
		{"status", Filter{Status: "escalated"}, 1},
		{"combined", Filter{CustomerID: "CUST-001", Intent: "dispute"}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"no match", Filter{CustomerID: "CUST-999"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestListWithTimeRange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gen := newTestGenerator(t, store)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		gen.now = func() time.Time { return at }
		_, err := gen.Generate(ctx, GenerateParams{
			CustomerID: testutil.TestCustomerID,
			Channel:    "web",
			Status:     "ok",
		})
		require.NoError(t, err)
	}

	got, err := store.List(ctx, Filter{From: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.After(got[1].Timestamp), "newest first")

	got, err = store.List(ctx, Filter{From: base, To: base.Add(90 * time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestListIndex(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	gen := newTestGenerator(t, store)

	_, err := gen.Generate(ctx, GenerateParams{
		CustomerID: testutil.TestCustomerID,
		Channel:    "mobile",
		Intent:     "statement_request",
		Workflow:   "statement_workflow",
		Status:     "error",
		ErrorCode:  "COLLABORATOR_FAILED",
		DurationMS: 42,
	})
	require.NoError(t, err)

	idx, err := store.ListIndex(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, idx, 1)
	assert.Equal(t, "statement_workflow", idx[0].Workflow)
	assert.Equal(t, "COLLABORATOR_FAILED", idx[0].ErrorCode)
	assert.Equal(t, int64(42), idx[0].DurationMS)
}

func TestWriteCSV(t *testing.T) {
	ev := &Evidence{
		ID:             "req_csv00001",
		Timestamp:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		CustomerID:     testutil.TestCustomerID,
		Channel:        "chat",
		Intent:         "dispute",
		Status:         "blocked",
		PolicyDecision: &PolicyDecision{Action: "deny", Reasons: []string{"a", "b"}},
		Retrieval:      Retrieval{Sources: []string{"POL-1", "POL-2"}},
		Guardrails:     Guardrails{InputViolations: 1, OutputViolations: 1},
	}
	rec := ToExportRecord(ev)
	assert.Equal(t, 2, rec.Violations)
	assert.Equal(t, "deny", rec.PolicyAction)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []ExportRecord{rec}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "req_csv00001", rows[1][0])
	assert.Equal(t, "2024-06-01T12:00:00Z", rows[1][1])
	assert.Equal(t, "a;b", rows[1][10])
	assert.Equal(t, "POL-1;POL-2", rows[1][11])
}

func TestNewStoreInvalidSigningKey(t *testing.T) {
	dir := t.TempDir()
	_, err := NewStore(filepath.Join(dir, "ev.db"), "short-key")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSigningKey)
}

func TestSignAndVerify(t *testing.T) {
	signer, err := NewSigner(testutil.TestSigningKey)
	require.NoError(t, err)

	data := []byte(`{"test": "data"}`)

	sig := signer.Sign(data)
	assert.True(t, signer.Verify(data, sig))
	assert.False(t, signer.Verify([]byte("tampered"), sig))
}

func TestSignerWithHexKey(t *testing.T) {
	hexKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	signer, err := NewSigner(hexKey)
	require.NoError(t, err)
	data := []byte("payload")
	assert.True(t, signer.Verify(data, signer.Sign(data)))

	other, err := NewSigner(testutil.TestSigningKey)
	require.NoError(t, err)
	assert.False(t, other.Verify(data, signer.Sign(data)))
}
