package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
)

func amount(f float64) *float64 { return &f }

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(context.Background(), Config{})
	require.NoError(t, err)
	return e
}

func TestNewEngine(t *testing.T) {
	e := newTestEngine(t)
	assert.Len(t, e.prepared, len(allPolicies))
	assert.Regexp(t, `^sha256:[0-9a-f]{8}$`, e.Version())

	other, err := NewEngine(context.Background(), Config{DisputeEscalationLimit: 500})
	require.NoError(t, err)
	assert.NotEqual(t, e.Version(), other.Version(), "limit is part of the version")
}

func TestEvaluate_Address(t *testing.T) {
	e := newTestEngine(t)
	full := &entity.Address{Street: "123 Main St", City: "Boston", State: "MA", ZipCode: "02101", AddressType: "mailing"}

	tests := []struct {
		name       string
		customer   string
		addr       *entity.Address
		wantAction Action
		wantReason string
	}{
		{name: "complete", customer: "CUST-001", addr: full, wantAction: ActionAllow},
		{name: "no customer", addr: full, wantAction: ActionDeny, wantReason: "a customer id is required to change an address"},
		{name: "missing street", customer: "CUST-001",
			addr:       &entity.Address{City: "Boston", State: "MA", ZipCode: "02101"},
			wantAction: ActionDeny, wantReason: "address street is missing"},
		{name: "no address at all", customer: "CUST-001", wantAction: ActionDeny, wantReason: "address zip_code is missing"},
		{name: "bad state", customer: "CUST-001",
			addr:       &entity.Address{Street: "1 A St", City: "X", State: "Mass", ZipCode: "02101"},
			wantAction: ActionDeny, wantReason: "state must be a two-letter code"},
		{name: "bad zip", customer: "CUST-001",
			addr:       &entity.Address{Street: "1 A St", City: "X", State: "MA", ZipCode: "2101"},
			wantAction: ActionDeny, wantReason: "zip code must be five digits"},
		{name: "bad address type", customer: "CUST-001",
			addr:       &entity.Address{Street: "1 A St", City: "X", State: "MA", ZipCode: "02101", AddressType: "summer"},
			wantAction: ActionDeny, wantReason: "unknown address type: summer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := entity.Record{Kind: entity.KindAddress, Address: tt.addr}
			d, err := e.Evaluate(context.Background(), GateAddress, Input{CustomerID: tt.customer, Entities: rec})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			assert.Equal(t, tt.wantAction == ActionAllow, d.Allowed)
			assert.Equal(t, e.Version(), d.PolicyVersion)
			if tt.wantReason != "" {
				assert.Contains(t, d.Reasons, tt.wantReason)
			} else {
				assert.Empty(t, d.Reasons)
			}
		})
	}
}

func TestEvaluate_Dispute(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name         string
		dispute      *entity.Dispute
		wantAction   Action
		wantPriority string
		wantReason   string
	}{
		{name: "small", dispute: &entity.Dispute{Amount: amount(45), Reason: "double charge"},
			wantAction: ActionAllow, wantPriority: "low"},
		{name: "medium", dispute: &entity.Dispute{Amount: amount(250), Reason: "not received"},
			wantAction: ActionAllow, wantPriority: "medium"},
		{name: "boundary 1000 is medium", dispute: &entity.Dispute{Amount: amount(1000), Reason: "x"},
			wantAction: ActionAllow, wantPriority: "medium"},
		{name: "high", dispute: &entity.Dispute{Amount: amount(1250), Reason: "unauthorized"},
			wantAction: ActionAllow, wantPriority: "high"},
		{name: "no amount", dispute: &entity.Dispute{Reason: "wrong merchant"},
			wantAction: ActionAllow, wantPriority: "low"},
		{name: "missing reason", dispute: &entity.Dispute{Amount: amount(50)},
			wantAction: ActionDeny, wantReason: "a dispute reason is required"},
		{name: "non-positive amount", dispute: &entity.Dispute{Amount: amount(0), Reason: "x"},
			wantAction: ActionDeny, wantReason: "dispute amount must be positive"},
		{name: "over limit escalates", dispute: &entity.Dispute{Amount: amount(12000), Reason: "x"},
			wantAction: ActionEscalate, wantPriority: "high",
			wantReason: "dispute amount 12000 exceeds the escalation limit of 10000"},
		{name: "deny beats escalate", dispute: &entity.Dispute{Amount: amount(12000)},
			wantAction: ActionDeny, wantReason: "a dispute reason is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := entity.Record{Kind: entity.KindDispute, Dispute: tt.dispute}
			d, err := e.Evaluate(context.Background(), GateDispute, Input{CustomerID: "CUST-001", Entities: rec})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			if tt.wantPriority != "" {
				assert.Equal(t, tt.wantPriority, d.Priority)
			}
			if tt.wantReason != "" {
				assert.Contains(t, d.Reasons, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_DisputeCustomLimit(t *testing.T) {
	e, err := NewEngine(context.Background(), Config{DisputeEscalationLimit: 500})
	require.NoError(t, err)

	rec := entity.Record{Kind: entity.KindDispute, Dispute: &entity.Dispute{Amount: amount(600), Reason: "x"}}
	d, err := e.Evaluate(context.Background(), GateDispute, Input{Entities: rec})
	require.NoError(t, err)
	assert.Equal(t, ActionEscalate, d.Action)
	assert.False(t, d.Allowed)
}

func TestEvaluate_FraudAlwaysAllowsCritical(t *testing.T) {
	e := newTestEngine(t)
	for _, rec := range []entity.Record{
		{Kind: entity.KindDispute, Dispute: &entity.Dispute{IsFraud: true, Amount: amount(50000)}},
		entity.FallbackRecord("bad output"),
	} {
		d, err := e.Evaluate(context.Background(), GateFraud, Input{Entities: rec})
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, ActionAllow, d.Action)
		assert.Equal(t, "critical", d.Priority)
	}
}

func TestEvaluate_Statement(t *testing.T) {
	e := newTestEngine(t)

	tests := []struct {
		name       string
		st         *entity.Statement
		wantAction Action
		wantReason string
	}{
		{name: "defaults", st: &entity.Statement{StatementType: "monthly", DeliveryMethod: "email"}, wantAction: ActionAllow},
		{name: "range", st: &entity.Statement{StartDate: "2024-01-01", EndDate: "2024-03-31", DeliveryMethod: "mail"}, wantAction: ActionAllow},
		{name: "same day", st: &entity.Statement{StartDate: "2024-01-01", EndDate: "2024-01-01", DeliveryMethod: "online_portal"}, wantAction: ActionAllow},
		{name: "reversed range", st: &entity.Statement{StartDate: "2024-03-01", EndDate: "2024-01-01", DeliveryMethod: "email"},
			wantAction: ActionDeny, wantReason: "statement end date is before the start date"},
		{name: "unknown delivery", st: &entity.Statement{DeliveryMethod: "fax"},
			wantAction: ActionDeny, wantReason: "unknown delivery method: fax"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := entity.Record{Kind: entity.KindStatement, Statement: tt.st}
			d, err := e.Evaluate(context.Background(), GateStatement, Input{Entities: rec})
			require.NoError(t, err)
			assert.Equal(t, tt.wantAction, d.Action)
			if tt.wantReason != "" {
				assert.Equal(t, []string{tt.wantReason}, d.Reasons)
			}
		})
	}
}

func TestEvaluate_UnknownGate(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.Evaluate(context.Background(), Gate("payments"), Input{})
	assert.ErrorIs(t, err, ErrUnknownGate)
}
