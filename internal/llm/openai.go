package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/llm")

// OpenAIProvider implements the Provider interface for OpenAI chat completions.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates an OpenAI provider with the given API key.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
	}
}

// NewOpenAIProviderWithBaseURL creates an OpenAI provider against a custom
// base URL (an OpenAI-compatible proxy or a test server).
func NewOpenAIProviderWithBaseURL(apiKey, baseURL string) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = NormalizeOpenAIBaseURL(baseURL)
	return &OpenAIProvider{client: openai.NewClientWithConfig(config)}
}

// NormalizeOpenAIBaseURL appends /v1 unless the URL already ends with it.
func NormalizeOpenAIBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(trimmed, "/v1") {
		return trimmed
	}
	return trimmed + "/v1"
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Generate sends a chat completion request to OpenAI.
func (p *OpenAIProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.generate",
		trace.WithAttributes(svcotel.LLMRequestAttributes("openai", req.Model, req.Temperature, req.MaxTokens)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, TimeoutLLMCall)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		LogProbs:    req.LogProbs,
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "openai api call failed")
		return nil, fmt.Errorf("openai api call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai api call: %w", ErrEmptyCompletion)
	}
	choice := resp.Choices[0]

	span.SetAttributes(
		svcotel.GenAIResponseID.String(resp.ID),
		svcotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens),
		svcotel.GenAIUsageOutputTokens.Int(resp.Usage.CompletionTokens),
		svcotel.GenAIResponseFinishReason.String(string(choice.FinishReason)),
	)
	RecordTokenMetrics(ctx, p.Name(), resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Model:        resp.Model,
	}
	if choice.LogProbs != nil && len(choice.LogProbs.Content) > 0 {
		var sum float64
		for _, lp := range choice.LogProbs.Content {
			sum += lp.LogProb
		}
		out.LogProb = &sum
	}
	return out, nil
}
