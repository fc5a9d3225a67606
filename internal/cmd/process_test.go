package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

func TestReadMessage(t *testing.T) {
	msg, err := readMessage(strings.NewReader("ignored"), []string{"Hello"})
	require.NoError(t, err)
	assert.Equal(t, "Hello", msg)

	msg, err = readMessage(strings.NewReader("from stdin"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)

	msg, err = readMessage(strings.NewReader("no args"), nil)
	require.NoError(t, err)
	assert.Equal(t, "no args", msg)
}

func TestBuildRequest(t *testing.T) {
	req, err := buildRequest("Hello", " CUST-001 ", "email", []string{"customer_email=a@example.com", "subject=Re: a=b"})
	require.NoError(t, err)
	assert.Equal(t, "CUST-001", req.CustomerID)
	assert.Equal(t, pipeline.ChannelEmail, req.Channel)
	assert.Equal(t, "a@example.com", req.Metadata["customer_email"])
	assert.Equal(t, "Re: a=b", req.Metadata["subject"])

	tests := []struct {
		name, text, customer, channel string
		metadata                      []string
	}{
		{"empty text", "  ", "CUST-001", "chat", nil},
		{"no customer", "Hello", "", "chat", nil},
		{"bad channel", "Hello", "CUST-001", "fax", nil},
		{"bad metadata", "Hello", "CUST-001", "chat", []string{"novalue"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildRequest(tt.text, tt.customer, tt.channel, tt.metadata)
			assert.Error(t, err)
		})
	}
}

func TestRenderResponse(t *testing.T) {
	var buf bytes.Buffer
	renderResponse(&buf, pipeline.Response{
		RequestID:      "req_12345678",
		Intent:         intent.Dispute,
		WorkflowName:   workflow.DisputeWorkflow,
		ContextSources: []string{"POL-DISP-001"},
		ResponseText:   "Your dispute has been escalated to a specialist.",
		Status:         workflow.StatusEscalated,
		ErrorCode:      workflow.CodePolicyEscalated,
		GuardrailViolations: []guardrail.Violation{
			{Rule: "profanity", Category: guardrail.CategoryProfanity, Severity: guardrail.SeverityWarning},
		},
	})
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Your dispute has been escalated"))
	assert.Contains(t, out, "status:   escalated (POLICY_ESCALATED)")
	assert.Contains(t, out, "intent:   DISPUTE")
	assert.Contains(t, out, "sources:  POL-DISP-001")
	assert.Contains(t, out, "guardrail: profanity/profanity (warning)")
}

func TestProcessCmd_Flags(t *testing.T) {
	for _, name := range []string{"customer", "channel", "metadata", "json"} {
		assert.NotNil(t, processCmd.Flags().Lookup(name), "process flag %q should be registered", name)
	}
}
