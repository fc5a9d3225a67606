package guardrail

import (
	"strings"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// baseGuidance is the soft layer: instructions embedded in every generation
// prompt. Advisory only; Validator is the enforcing layer.
const baseGuidance = `You are a customer service assistant for a retail bank.
Rules you must follow:
- Never ask for or repeat a full social security number, card number, PIN or password.
- Only discuss the customer's banking request; politely decline unrelated topics.
- Base policy statements on the provided policy context and say so when context is missing.
- Never invent account numbers, policy numbers, case numbers or transaction ids.
- Do not promise outcomes (refunds, approvals) that the policy context does not state.
- Keep a professional, empathetic tone.`

var intentGuidance = map[intent.Intent]string{
	intent.FraudReport: "- Tell the customer their card can be frozen immediately and that a fraud specialist will contact them.",
	intent.Dispute:     "- Explain the dispute timeline and that provisional credit may apply while the case is investigated.",
	intent.AddressUpdate: "- Remind the customer that address changes require identity verification and " +
		"that a confirmation is sent to the previous address.",
	intent.StatementRequest: "- Confirm the statement period and delivery method; never include account numbers in the reply.",
}

// PromptGuidance returns the guardrail instructions for a generation prompt,
// including any intent-specific additions.
func PromptGuidance(in intent.Intent) string {
	extra, ok := intentGuidance[in]
	if !ok {
		return baseGuidance
	}
	return strings.Join([]string{baseGuidance, extra}, "\n")
}
