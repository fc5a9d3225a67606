package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

// fakeProcessor answers every request with a greeting and remembers what it saw.
type fakeProcessor struct {
	mu            sync.Mutex
	requests      []pipeline.Request
	correlationID string
}

func (p *fakeProcessor) Process(ctx context.Context, req pipeline.Request) pipeline.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	p.correlationID = requestctx.CorrelationID(ctx)
	return pipeline.Response{
		RequestID:      "req_test0001",
		Intent:         intent.Greeting,
		WorkflowName:   workflow.FallbackWorkflow,
		ContextSources: []string{},
		ResponseText:   "Hello! How can I help you with your account today?",
		Status:         workflow.StatusOK,
	}
}

type fakeRoutes map[intent.Intent]workflow.Name

func (f fakeRoutes) Routes() map[intent.Intent]workflow.Name { return f }

func newAuditStore(t *testing.T) (*evidence.Store, *evidence.Generator) {
	t.Helper()
	store, err := evidence.NewStore(filepath.Join(t.TempDir(), "audit.db"), testutil.TestSigningKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, evidence.NewGenerator(store, nil)
}

func seedAudit(t *testing.T, gen *evidence.Generator, id, customer, in, status string) {
	t.Helper()
	_, err := gen.Generate(context.Background(), evidence.GenerateParams{
		RequestID:   id,
		CustomerID:  customer,
		Channel:     "chat",
		Intent:      in,
		Status:      status,
		Transitions: []string{"INTAKE", "RESPONDED"},
		InputText:   "hello",
		OutputText:  "hi",
	})
	require.NoError(t, err)
}

func serve(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	h := NewServer(nil, nil, "secret").Routes()

	rec := serve(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
}

func TestHealthDetail(t *testing.T) {
	store, _ := newAuditStore(t)
	h := NewServer(nil, store, "").Routes()

	rec := serve(h, http.MethodGet, "/v1/health?detail=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	comp, _ := out["components"].(map[string]interface{})
	require.NotNil(t, comp)
	assert.Equal(t, "ok", comp["audit_store"])
	assert.Equal(t, "disabled", comp["pipeline"])
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewServer(nil, nil, "secret").Routes()

	rec := serve(h, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing key", nil, http.StatusUnauthorized},
		{"wrong key", map[string]string{"X-Servicing-Key": "nope"}, http.StatusUnauthorized},
		{"header key", map[string]string{"X-Servicing-Key": "secret"}, http.StatusOK},
		{"bearer key", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
	}
	h := NewServer(&fakeProcessor{}, nil, "secret").Routes()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodGet, "/v1/intents", "", tt.headers)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				var out map[string]string
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
				assert.Equal(t, "unauthorized", out["error"])
			}
		})
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	h := NewServer(&fakeProcessor{}, nil, "").Routes()

	rec := serve(h, http.MethodGet, "/v1/intents", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessEndpoint(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewServer(proc, nil, "").Routes()

	body := `{"raw_text": "Hello", "customer_id": "CUST-001", "channel": "web", "metadata": {"customer_email": "a@example.com"}}`
	rec := serve(h, http.MethodPost, "/v1/process", body, map[string]string{"X-Correlation-ID": "corr_abc123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp pipeline.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, workflow.StatusOK, resp.Status)
	assert.Equal(t, intent.Greeting, resp.Intent)

	require.Len(t, proc.requests, 1)
	assert.Equal(t, pipeline.ChannelWeb, proc.requests[0].Channel)
	assert.Equal(t, "a@example.com", proc.requests[0].Metadata["customer_email"])
	assert.Equal(t, "corr_abc123", proc.correlationID)
	assert.Equal(t, "corr_abc123", rec.Header().Get("X-Correlation-ID"))
}

func TestProcessEndpoint_MintsCorrelationID(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewServer(proc, nil, "").Routes()

	body := `{"raw_text": "Hello", "customer_id": "CUST-001"}`
	rec := serve(h, http.MethodPost, "/v1/process", body, map[string]string{"X-Correlation-ID": "bad id\nwith newline"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Regexp(t, `^corr_[0-9a-f]{12}$`, proc.correlationID)
	assert.Equal(t, proc.correlationID, rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, pipeline.ChannelChat, proc.requests[0].Channel, "channel defaults to chat")
}

func TestProcessEndpoint_CustomerFromHeader(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewServer(proc, nil, "", WithRateLimiter(NewRateLimiter(100, 100))).Routes()

	rec := serve(h, http.MethodPost, "/v1/process", `{"raw_text": "Hello"}`, map[string]string{"X-Customer-ID": "CUST-002"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CUST-002", proc.requests[0].CustomerID)
}

func TestProcessEndpoint_RejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		msg  string
	}{
		{"not json", `{`, "invalid JSON"},
		{"missing customer", `{"raw_text": "Hello"}`, "customer_id is required"},
		{"blank text", `{"raw_text": "   ", "customer_id": "CUST-001"}`, "raw_text is required"},
		{"unknown channel", `{"raw_text": "Hello", "customer_id": "CUST-001", "channel": "fax"}`, "unknown channel"},
	}
	proc := &fakeProcessor{}
	h := NewServer(proc, nil, "").Routes()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/v1/process", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			var out map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
			assert.Equal(t, "invalid_request", out["error"])
			assert.Contains(t, out["message"], tt.msg)
		})
	}
	assert.Empty(t, proc.requests)
}

func TestProcessEndpoint_WithoutPipeline(t *testing.T) {
	h := NewServer(nil, nil, "").Routes()

	rec := serve(h, http.MethodPost, "/v1/process", `{"raw_text": "Hello", "customer_id": "CUST-001"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitPerCustomer(t *testing.T) {
	proc := &fakeProcessor{}
	h := NewServer(proc, nil, "", WithRateLimiter(NewRateLimiter(0.001, 2))).Routes()
	body := `{"raw_text": "Hello", "customer_id": "CUST-001"}`
	first := map[string]string{"X-Customer-ID": "CUST-001"}
	second := map[string]string{"X-Customer-ID": "CUST-002"}

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/v1/process", body, first).Code)
	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/v1/process", body, first).Code)

	rec := serve(h, http.MethodPost, "/v1/process", body, first)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusOK, serve(h, http.MethodPost, "/v1/process", body, second).Code,
		"another customer has its own bucket")
}

func TestNewRateLimiter_DisabledWithoutRate(t *testing.T) {
	assert.Nil(t, NewRateLimiter(0, 10))
	rl := NewRateLimiter(1, 0)
	require.NotNil(t, rl)
	assert.Equal(t, 1, rl.Burst())
}

func TestIntentsEndpoint(t *testing.T) {
	routes := fakeRoutes{
		intent.AddressUpdate: workflow.AddressWorkflow,
		intent.Dispute:       workflow.DisputeWorkflow,
	}
	h := NewServer(nil, nil, "", WithRoutes(routes)).Routes()

	rec := serve(h, http.MethodGet, "/v1/intents", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Intents []intentInfo `json:"intents"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	require.Len(t, out.Intents, len(intent.All()))

	byIntent := map[intent.Intent]intentInfo{}
	for _, info := range out.Intents {
		byIntent[info.Intent] = info
	}
	assert.Equal(t, workflow.AddressWorkflow, byIntent[intent.AddressUpdate].Workflow)
	assert.Equal(t, "ADDRESS_UPDATE", byIntent[intent.AddressUpdate].Name)
	assert.Equal(t, workflow.FallbackWorkflow, byIntent[intent.Greeting].Workflow)
}

func TestAuditEndpoints(t *testing.T) {
	store, gen := newAuditStore(t)
	seedAudit(t, gen, "req_aaaa0001", "CUST-001", "greeting", "ok")
	seedAudit(t, gen, "req_aaaa0002", "CUST-001", "dispute", "escalated")
	seedAudit(t, gen, "req_aaaa0003", "CUST-002", "greeting", "ok")
	h := NewServer(nil, store, "").Routes()

	t.Run("index", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit?customer_id=CUST-001", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Entries []evidence.Index `json:"entries"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		assert.Len(t, out.Entries, 2)
	})

	t.Run("detail", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit?status=escalated&detail=true", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			Records []evidence.Evidence `json:"records"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		require.Len(t, out.Records, 1)
		assert.Equal(t, "req_aaaa0002", out.Records[0].ID)
	})

	t.Run("empty result is an empty list", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit?customer_id=NOBODY", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"entries":[]`)
	})

	t.Run("csv", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit?intent=greeting&format=csv", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 3, "header plus two records")
	})

	t.Run("get", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit/req_aaaa0001", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var ev evidence.Evidence
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&ev))
		assert.Equal(t, "CUST-001", ev.CustomerID)
	})

	t.Run("verify", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/v1/audit/req_aaaa0001/verify", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var out map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
		assert.Equal(t, true, out["valid"])
	})

	t.Run("missing record", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/v1/audit/req_missing", "", nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/v1/audit/req_missing/verify", "", nil).Code)
	})
}

func TestAuditList_RejectsBadFilters(t *testing.T) {
	store, _ := newAuditStore(t)
	h := NewServer(nil, store, "").Routes()

	for _, q := range []string{"limit=abc", "limit=-1", "from=yesterday", "to=2024-13-01"} {
		rec := serve(h, http.MethodGet, "/v1/audit?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := NewServer(nil, nil, "secret", WithCORSOrigins([]string{"https://branch.example.com"})).Routes()

	rec := serve(h, http.MethodOptions, "/v1/process", "", map[string]string{"Origin": "https://branch.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://branch.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Correlation-ID")
}

func TestServerOverHTTP_NoGoroutineLeak(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	proc := &fakeProcessor{}
	ts := httptest.NewServer(NewServer(proc, nil, "secret").Routes())

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/process",
		strings.NewReader(`{"raw_text": "Hello", "customer_id": "CUST-001"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Correlation-ID"))
	require.NoError(t, resp.Body.Close())

	ts.Close()
}
