package entity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
)

func TestKindFor(t *testing.T) {
	assert.Equal(t, KindAddress, KindFor(intent.AddressUpdate))
	assert.Equal(t, KindDispute, KindFor(intent.FraudReport))
	assert.Equal(t, KindCard, KindFor(intent.CardReplacement))
	assert.Equal(t, KindGeneric, KindFor(intent.BalanceInquiry))
	assert.Equal(t, KindNone, KindFor(intent.Greeting))
	assert.Equal(t, KindNone, KindFor(intent.Fallback))
}

func TestParseFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"bare json", `{"street": "1 Main St", "zip": "02101"}`, map[string]any{"street": "1 Main St", "zip_code": "02101"}},
		{"fenced json", "```json\n{\"dispute_reason\": \"double charge\"}\n```", map[string]any{"reason": "double charge"}},
		{"json in prose", `Here you go: {"city": "Boston"} hope that helps`, map[string]any{"city": "Boston"}},
		{"key value lines", "state: California\nZip Code: 94102", map[string]any{"state": "California", "zip_code": "94102"}},
		{"bulleted lines", "- Street: 5 Oak Ave\n- City: Austin", map[string]any{"street": "5 Oak Ave", "city": "Austin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFields(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseFields("I could not find anything")
	assert.ErrorIs(t, err, ErrNoFields)
}

func TestStateCode(t *testing.T) {
	assert.Equal(t, "CA", StateCode("California"))
	assert.Equal(t, "CA", StateCode("ca"))
	assert.Equal(t, "NY", StateCode("new  york"))
	assert.Equal(t, "MA", StateCode(" ma. "))
	assert.Equal(t, "NARNIA", StateCode("Narnia"))
}

func TestFromOutput_Address(t *testing.T) {
	e := MustNewExtractor(&testutil.MockProvider{}, "test-model")
	ctx := context.Background()

	t.Run("state name is normalised", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate, "state: California", "")
		require.False(t, rec.Fallback, rec.Error)
		require.NotNil(t, rec.Address)
		assert.Equal(t, "CA", rec.Address.State)
		assert.Equal(t, "mailing", rec.Address.AddressType)
		assert.False(t, rec.Address.Complete())
	})

	t.Run("lowercase code is uppercased", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate,
			`{"street":"123 Main Street","city":"Boston","state":"ma","zip":"02101"}`, "")
		require.NotNil(t, rec.Address)
		assert.Equal(t, "MA", rec.Address.State)
		assert.True(t, rec.Address.Complete())
	})

	t.Run("zip plus four keeps five digits", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate, `{"zip_code":"02101-1234"}`, "")
		require.NotNil(t, rec.Address)
		assert.Equal(t, "02101", rec.Address.ZipCode)
	})

	t.Run("short zip falls back", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate, "zip: 123", "")
		assert.True(t, rec.Fallback)
		assert.Equal(t, KindGeneric, rec.Kind)
		require.NotNil(t, rec.Generic)
		assert.Empty(t, rec.Generic.Summary)
		assert.Nil(t, rec.Address)
		assert.NotEmpty(t, rec.Error)
	})

	t.Run("unknown address type falls back", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate, `{"address_type":"holiday home"}`, "")
		assert.True(t, rec.Fallback)
	})

	t.Run("garbage falls back", func(t *testing.T) {
		rec := e.FromOutput(ctx, intent.AddressUpdate, "sorry, no idea", "")
		assert.True(t, rec.Fallback)
	})
}

func TestFromOutput_Dispute(t *testing.T) {
	e := MustNewExtractor(&testutil.MockProvider{}, "test-model")
	ctx := context.Background()

	rec := e.FromOutput(ctx, intent.Dispute,
		`{"transaction_id":"TXN-12345","amount":"$1,250.00","merchant":"MegaMart","dispute_reason":"charged twice"}`, "")
	require.NotNil(t, rec.Dispute, rec.Error)
	require.NotNil(t, rec.Dispute.Amount)
	assert.InDelta(t, 1250.0, *rec.Dispute.Amount, 1e-9)
	assert.Equal(t, "charged twice", rec.Dispute.Reason)
	assert.False(t, rec.Dispute.IsFraud)

	fraud := e.FromOutput(ctx, intent.FraudReport, `{"reason":"card stolen","amount":80}`, "")
	require.NotNil(t, fraud.Dispute)
	assert.True(t, fraud.Dispute.IsFraud)

	for name, raw := range map[string]string{
		"missing reason":  `{"amount": 20}`,
		"negative amount": `{"amount": -5, "reason": "x"}`,
		"zero amount":     `{"amount": 0, "reason": "x"}`,
		"text amount":     `{"amount": "lots", "reason": "x"}`,
	} {
		t.Run(name, func(t *testing.T) {
			assert.True(t, e.FromOutput(ctx, intent.Dispute, raw, "").Fallback)
		})
	}
}

func TestFromOutput_OtherKinds(t *testing.T) {
	e := MustNewExtractor(&testutil.MockProvider{}, "test-model")
	ctx := context.Background()

	st := e.FromOutput(ctx, intent.StatementRequest, `{"start_date":"2024-01-01","end_date":"2024-01-31","delivery":"Online Portal"}`, "")
	require.NotNil(t, st.Statement, st.Error)
	assert.Equal(t, "monthly", st.Statement.StatementType)
	assert.Equal(t, "online_portal", st.Statement.DeliveryMethod)

	assert.True(t, e.FromOutput(ctx, intent.StatementRequest, `{"start_date":"last month"}`, "").Fallback)

	card := e.FromOutput(ctx, intent.CardReplacement, `{"last4":"4242","action":"Report Stolen"}`, "")
	require.NotNil(t, card.Card, card.Error)
	assert.Equal(t, "report_stolen", card.Card.Action)
	assert.True(t, e.FromOutput(ctx, intent.CardActivation, `{"card_last_four":"42","action":"activate"}`, "").Fallback)

	pay := e.FromOutput(ctx, intent.PaymentIssue, `{"payment_type":"failed","amount":"45.10"}`, "")
	require.NotNil(t, pay.Payment, pay.Error)
	assert.InDelta(t, 45.10, *pay.Payment.Amount, 1e-9)

	gen := e.FromOutput(ctx, intent.BalanceInquiry, "nothing useful", "What is my   checking balance?")
	require.NotNil(t, gen.Generic)
	assert.False(t, gen.Fallback)
	assert.Equal(t, "What is my checking balance?", gen.Generic.Summary)

	details := e.FromOutput(ctx, intent.AccountInquiry, `{"summary":"hours","key_details":"weekend, branch"}`, "")
	require.NotNil(t, details.Generic)
	assert.Equal(t, []string{"weekend", "branch"}, details.Generic.KeyDetails)

	none := e.FromOutput(ctx, intent.Greeting, `{"x":1}`, "hi")
	assert.Equal(t, KindNone, none.Kind)
	assert.True(t, none.Empty())
}

func TestExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("calls backend with the variant prompt", func(t *testing.T) {
		p := &testutil.ScriptedProvider{Rules: []testutil.Rule{
			{Match: "You extract structured fields", Content: `{"street":"9 Elm St","city":"Denver","state":"Colorado","zip_code":"80202"}`},
		}}
		e := MustNewExtractor(p, "m")
		rec, err := e.Extract(ctx, intent.AddressUpdate, "I moved to 9 Elm St, Denver, Colorado 80202")
		require.NoError(t, err)
		require.NotNil(t, rec.Address)
		assert.Equal(t, "CO", rec.Address.State)

		calls := p.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Messages[0].Content, "zip_code")
	})

	t.Run("no payload skips the backend", func(t *testing.T) {
		p := &testutil.ScriptedProvider{}
		rec, err := MustNewExtractor(p, "m").Extract(ctx, intent.ThankYou, "thanks!")
		require.NoError(t, err)
		assert.Equal(t, KindNone, rec.Kind)
		assert.Empty(t, p.Calls())
	})

	t.Run("backend failure returns fallback and error", func(t *testing.T) {
		e := MustNewExtractor(&testutil.MockProvider{Err: errors.New("timeout")}, "m")
		rec, err := e.Extract(ctx, intent.Dispute, "dispute")
		require.Error(t, err)
		assert.True(t, rec.Fallback)
	})
}
