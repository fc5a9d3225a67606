package pipeline

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

// Channel is where a request came from.
type Channel string

const (
	ChannelChat   Channel = "chat"
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
	ChannelVoice  Channel = "voice"
	ChannelWeb    Channel = "web"
)

// Valid reports whether c is a known channel.
func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelEmail, ChannelMobile, ChannelVoice, ChannelWeb:
		return true
	}
	return false
}

// Request is the pipeline entry contract.
type Request struct {
	RawText    string            `json:"raw_text"`
	CustomerID string            `json:"customer_id"`
	Channel    Channel           `json:"channel"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Response is the pipeline result. ResponseText is the only customer-facing
// field; the rest is for the calling channel and operators.
type Response struct {
	RequestID           string                 `json:"request_id"`
	Intent              intent.Intent          `json:"intent,omitempty"`
	WorkflowName        workflow.Name          `json:"workflow_name,omitempty"`
	Entities            entity.Record          `json:"entities"`
	ContextSources      []string               `json:"context_sources"`
	ResponseText        string                 `json:"response_text"`
	GuardrailViolations []guardrail.Violation  `json:"guardrail_violations"`
	Status              workflow.Status        `json:"status"`
	ErrorCode           workflow.ErrorCode     `json:"error_code,omitempty"`
	Result              map[string]interface{} `json:"result,omitempty"`
}

// stripHTML reduces an HTML e-mail body to its text. Tags are removed, their
// entities decoded and whitespace runs collapsed.
func stripHTML(p *bluemonday.Policy, body string) string {
	text := html.UnescapeString(p.Sanitize(body))
	return strings.Join(strings.Fields(text), " ")
}

func (s *RequestState) response() Response {
	resp := Response{
		RequestID:           s.RequestID,
		Intent:              s.Intent,
		WorkflowName:        s.Result.Workflow,
		Entities:            s.Entities,
		ContextSources:      make([]string, 0, len(s.Context.Sources)),
		ResponseText:        s.Response,
		GuardrailViolations: s.Violations(),
		Status:              s.Status,
		ErrorCode:           s.Code,
		Result:              s.Result.Data,
	}
	for _, src := range s.Context.Sources {
		resp.ContextSources = append(resp.ContextSources, src.DocumentID)
	}
	return resp
}
