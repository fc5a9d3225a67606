package workflow

import (
	"context"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

const (
	messageHelp = "I understand you need assistance, but I'm not quite sure what you're asking for. I can help you with:\n" +
		"- Updating your address\n" +
		"- Requesting account statements\n" +
		"- Disputing a transaction\n" +
		"- Reporting fraud or suspicious activity\n\n" +
		"Could you please rephrase your request, or would you like to speak with a representative?"
	messageGreeting = "Hello! I'm the bank's virtual assistant. I can help you update your address, request a statement, dispute a transaction or report fraud. How can I help you today?"
	messageFarewell = "Thank you for contacting us. Have a great day!"
	messageThanks   = "You're welcome! Is there anything else I can help you with?"
)

var conversationalReplies = map[intent.Intent]string{
	intent.Greeting:  messageGreeting,
	intent.SmallTalk: messageGreeting,
	intent.Farewell:  messageFarewell,
	intent.ThankYou:  messageThanks,
}

// Fallback answers every intent without a dedicated workflow. It has no
// gate and no side effect and always succeeds.
type Fallback struct{}

func (Fallback) Name() Name { return FallbackWorkflow }

func (Fallback) Run(ctx context.Context, in *Input) Result {
	_, span := tracer.Start(ctx, "workflow.fallback")
	defer span.End()

	msg, ok := conversationalReplies[in.Intent]
	if !ok {
		msg = messageHelp
	}
	return Result{
		Workflow: FallbackWorkflow,
		Status:   StatusOK,
		Response: msg,
		Data:     map[string]interface{}{"status": "fallback", "intent": string(in.Intent)},
	}
}
