package intent

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		want       Intent
		wantParsed bool
	}{
		{"exact name", "ADDRESS_UPDATE", AddressUpdate, true},
		{"value with noise", " dispute\n", Dispute, true},
		{"greeting", "GREETING", Greeting, true},
		{"unparseable", "Sure! Here's what I think: the user is sad", Fallback, false},
		{"empty", "", Fallback, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClassifier(&testutil.MockProvider{Content: tt.content}, "gpt-4o-mini")
			res, err := c.Classify(context.Background(), "some customer text")
			require.NoError(t, err, "parse failures never surface as errors")
			assert.Equal(t, tt.want, res.Intent)
			assert.Equal(t, tt.wantParsed, res.Parsed)
			assert.Equal(t, tt.content, res.Raw)
			assert.Nil(t, res.Confidence)
		})
	}
}

func TestClassify_ConfidenceFromLogProbs(t *testing.T) {
	c := NewClassifier(&testutil.MockProvider{Content: "DISPUTE", LogProb: testutil.Float(-0.105)}, "gpt-4o-mini")
	res, err := c.Classify(context.Background(), "I was charged twice")
	require.NoError(t, err)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, math.Exp(-0.105), *res.Confidence, 1e-9)
}

func TestClassify_BackendErrorIsReturned(t *testing.T) {
	c := NewClassifier(&testutil.MockProvider{Err: errors.New("timeout")}, "gpt-4o-mini")
	res, err := c.Classify(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, Fallback, res.Intent)
}

func TestClassificationPrompt_ListsEveryIntent(t *testing.T) {
	p := classificationPrompt()
	for _, i := range All() {
		assert.Contains(t, p, i.Name())
	}
}
