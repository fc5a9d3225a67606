// Package integrations holds the HTTP clients for the downstream banking
// services: core banking, the case workflow system, the CRM and
// notifications. Every call is bounded by a timeout, carries an
// idempotency key and goes through a per-service circuit breaker.
package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sushiva/omni-channel-ai-servicing/internal/metrics"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/integrations")

// DefaultTimeout bounds each downstream call.
const DefaultTimeout = 10 * time.Second

// IdempotencyHeader carries the key downstream services deduplicate on.
const IdempotencyHeader = "Idempotency-Key"

var (
	// ErrCollaboratorUnavailable wraps every failed downstream call.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrCircuitOpen is returned without calling out while a breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
)

// idempotencyNamespace scopes the name-based keys of this service.
var idempotencyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://servicing.internal/idempotency"))

// IdempotencyKey derives a stable key for one side effect of one request, so
// a retried request never applies the same change twice.
func IdempotencyKey(correlationID, operation string) string {
	if correlationID == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(idempotencyNamespace, []byte(correlationID+"/"+operation)).String()
}

// StatusError is a non-2xx response.
type StatusError struct {
	Service    string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Service, e.Path, e.StatusCode, e.Body)
}

// Unwrap makes every StatusError match ErrCollaboratorUnavailable.
func (e *StatusError) Unwrap() error { return ErrCollaboratorUnavailable }

// Client is the shared JSON-over-HTTP transport of one downstream service.
type Client struct {
	service string
	baseURL string
	http    *http.Client
	timeout time.Duration
	breaker *Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithBreaker replaces the default breaker.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// NewClient creates a client for service rooted at baseURL.
func NewClient(service, baseURL string, opts ...Option) *Client {
	c := &Client{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: DefaultTimeout,
		breaker: NewBreaker(0, 0),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Service returns the service name used in logs and metrics.
func (c *Client) Service() string { return c.service }

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *Breaker { return c.breaker }

// post sends body as JSON and decodes a 2xx response into out (when non-nil).
// operation names the side effect for the idempotency key.
func (c *Client) post(ctx context.Context, path, operation string, body, out interface{}) error {
	ctx, span := tracer.Start(ctx, "integrations."+c.service+"."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("collaborator.service", c.service),
			attribute.String("http.route", path),
		))
	defer span.End()
	start := time.Now()

	if err := c.breaker.Allow(); err != nil {
		metrics.RecordCollaboratorCall(c.service, "circuit_open", 0)
		span.SetStatus(codes.Error, "circuit open")
		return fmt.Errorf("%s: %w: %w", c.service, ErrCollaboratorUnavailable, err)
	}

	err := c.do(ctx, path, operation, body, out)
	status := "success"
	switch {
	case err == nil:
		c.breaker.RecordSuccess()
	case countsAsFailure(err):
		c.breaker.RecordFailure()
		status = "error"
	default:
		// A 4xx means the service is up; the request was wrong.
		c.breaker.RecordSuccess()
		status = "error"
	}
	metrics.RecordCollaboratorCall(c.service, status, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collaborator call failed")
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Str("service", c.service).
			Str("operation", operation).
			Err(err).
			Msg("collaborator_call_failed")
		return err
	}
	return nil
}

func (c *Client) do(ctx context.Context, path, operation string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", c.service, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(IdempotencyHeader, IdempotencyKey(requestctx.CorrelationID(ctx), c.service+"/"+operation))
	if id := requestctx.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", c.service, path, ErrCollaboratorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{
			Service:    c.service,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w: %w", c.service, path, ErrCollaboratorUnavailable, err)
	}
	return nil
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
