// Package requestctx provides request-scoped values set by the HTTP layer and
// the pipeline (customer id, correlation id).
package requestctx

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type contextKey struct{ name string }

var (
	customerIDKey    = &contextKey{"customer_id"}
	correlationIDKey = &contextKey{"correlation_id"}
)

// NewCorrelationID returns a short, log-friendly id ("corr_" + 12 hex chars).
func NewCorrelationID() string {
	return "corr_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// SetCustomerID stores the authenticated customer id in the context.
func SetCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, customerIDKey, customerID)
}

// CustomerID returns the customer id from context, or "" if not set.
func CustomerID(ctx context.Context) string {
	v, _ := ctx.Value(customerIDKey).(string)
	return v
}

// SetCorrelationID stores the correlation id in the context.
func SetCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns the correlation id from context, or "" if not set.
func CorrelationID(ctx context.Context) string {
	v, _ := ctx.Value(correlationIDKey).(string)
	return v
}
