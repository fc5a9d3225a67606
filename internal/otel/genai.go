package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

// GenAI semantic convention keys used on generation and embedding spans.
const (
	GenAISystem       = attribute.Key("gen_ai.system") // e.g. "openai", "ollama", "genai"
	GenAIOperation    = attribute.Key("gen_ai.operation.name")
	GenAIRequestModel = attribute.Key("gen_ai.request.model")

	GenAIRequestTemperature = attribute.Key("gen_ai.request.temperature")
	GenAIRequestMaxTokens   = attribute.Key("gen_ai.request.max_tokens")

	GenAIUsageInputTokens  = attribute.Key("gen_ai.usage.input_tokens")
	GenAIUsageOutputTokens = attribute.Key("gen_ai.usage.output_tokens")

	GenAIResponseFinishReason = attribute.Key("gen_ai.response.finish_reason")
	GenAIResponseID           = attribute.Key("gen_ai.response.id")
)

// Servicing-specific span attributes shared across packages.
const (
	CorrelationID = attribute.Key("servicing.correlation_id")
	Channel       = attribute.Key("servicing.channel")
	Intent        = attribute.Key("servicing.intent")
	Workflow      = attribute.Key("servicing.workflow")
	Status        = attribute.Key("servicing.status")
)

// LLMRequestAttributes creates standard attributes for generation requests
func LLMRequestAttributes(system, model string, temperature float64, maxTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIRequestModel.String(model),
		GenAIRequestTemperature.Float64(temperature),
		GenAIRequestMaxTokens.Int(maxTokens),
	}
}

// EmbeddingAttributes creates attributes for an embeddings call.
func EmbeddingAttributes(system, model string) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAISystem.String(system),
		GenAIOperation.String("embeddings"),
		GenAIRequestModel.String(model),
	}
}

// LLMUsageAttributes creates attributes for token usage
func LLMUsageAttributes(inputTokens, outputTokens int) []attribute.KeyValue {
	return []attribute.KeyValue{
		GenAIUsageInputTokens.Int(inputTokens),
		GenAIUsageOutputTokens.Int(outputTokens),
	}
}
