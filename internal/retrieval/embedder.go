package retrieval

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"

	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/retrieval")

// ErrEmptyEmbedding is returned when a backend answers without a vector.
var ErrEmptyEmbedding = errors.New("no embedding returned")

// Embedder converts text to a fixed-dimension vector.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dims   int
}

// NewOpenAIEmbedder creates an embedder for model; baseURL may be empty.
func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = llm.NormalizeOpenAIBaseURL(baseURL)
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	dims := 1536
	if model == string(openai.LargeEmbedding3) {
		dims = 3072
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(cfg), model: model, dims: dims}
}

// Name returns "openai:<model>".
func (e *OpenAIEmbedder) Name() string { return "openai:" + e.model }

// Dimensions returns the vector size of the model.
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.embed",
		trace.WithAttributes(svcotel.EmbeddingAttributes("openai", e.model)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMCall)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("openai embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}
	span.SetAttributes(svcotel.GenAIUsageInputTokens.Int(resp.Usage.PromptTokens))
	return resp.Data[0].Embedding, nil
}

// GenAIEmbedder calls the Gemini embedding API.
type GenAIEmbedder struct {
	client   *genai.Client
	model    string
	taskType string
}

// Gemini embedding task types. Queries and indexed chunks are embedded with
// different tasks.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// NewGenAIEmbedder creates a Gemini embedder for the given task type.
func NewGenAIEmbedder(ctx context.Context, apiKey, model, taskType string) (*GenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	if taskType == "" {
		taskType = TaskRetrievalQuery
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}
	return &GenAIEmbedder{client: client, model: model, taskType: taskType}, nil
}

// Name returns "genai:<model>".
func (e *GenAIEmbedder) Name() string { return "genai:" + e.model }

// Dimensions returns 768, the default output size of gemini-embedding-001.
func (e *GenAIEmbedder) Dimensions() int { return 768 }

// Embed returns the embedding of text.
func (e *GenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "gen_ai.embed",
		trace.WithAttributes(svcotel.EmbeddingAttributes("genai", e.model)...))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, llm.TimeoutLLMCall)
	defer cancel()

	dims := int32(e.Dimensions())
	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{TaskType: e.taskType, OutputDimensionality: &dims},
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("genai embedding: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return result.Embeddings[0].Values, nil
}
