package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
	"github.com/sushiva/omni-channel-ai-servicing/internal/entity"
	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/integrations"
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
	"github.com/sushiva/omni-channel-ai-servicing/internal/pipeline"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
	"github.com/sushiva/omni-channel-ai-servicing/internal/workflow"
)

const (
	embedRetryAttempts = 3
	embedRetryInitial  = 200 * time.Millisecond
	embedRetryMax      = 2 * time.Second
)

// services is everything a request needs, built once per process.
type services struct {
	cfg       *config.Config
	audit     *evidence.Store
	registry  *workflow.Registry
	retriever *retrieval.Retriever // nil when no index has been built
	pipeline  *pipeline.Pipeline
}

func (s *services) Close() error {
	return s.audit.Close()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()
	return cfg, nil
}

// newEmbedder builds the configured embedding backend behind a cache with
// retry. task selects the Gemini task type and is ignored by OpenAI.
func newEmbedder(ctx context.Context, cfg *config.Config, task string) (retrieval.Embedder, error) {
	var inner retrieval.Embedder
	switch cfg.EmbeddingProvider {
	case "genai":
		model := cfg.EmbeddingModel
		if model == config.DefaultEmbeddingModel {
			model = "" // OpenAI model name; use the Gemini default
		}
		e, err := retrieval.NewGenAIEmbedder(ctx, cfg.GeminiKey, model, task)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("openai embeddings: %s not set", config.EnvOpenAIKey)
		}
		inner = retrieval.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	}
	return retrieval.NewCachedEmbedder(inner,
		retrieval.WithRetry(embedRetryAttempts, embedRetryInitial, embedRetryMax)), nil
}

// loadRetriever opens the persisted index. A missing index is not an error:
// the pipeline then answers without grounding.
func loadRetriever(ctx context.Context, cfg *config.Config) (*retrieval.Retriever, error) {
	ix, err := retrieval.LoadIndex(ctx, cfg.IndexPath)
	if errors.Is(err, retrieval.ErrIndexNotFound) {
		log.Warn().Str("index_path", cfg.IndexPath).Msg("knowledge_index_missing")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading knowledge index: %w", err)
	}
	emb, err := newEmbedder(ctx, cfg, retrieval.TaskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	r, err := retrieval.NewRetriever(emb, ix,
		retrieval.WithTopK(cfg.TopK),
		retrieval.WithSimilarityThreshold(cfg.SimilarityThreshold),
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge index %s: %w", cfg.IndexPath, err)
	}
	log.Info().
		Int("chunks", ix.Len()).
		Str("embedder", ix.Embedder()).
		Msg("knowledge_index_loaded")
	return r, nil
}

// newServices wires the pipeline from cfg. The caller closes the result.
func newServices(ctx context.Context, cfg *config.Config) (*services, error) {
	provider, err := llm.NewProvider(llm.ProviderConfig{
		Name:          cfg.LLMProvider,
		APIKey:        cfg.OpenAIKey,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OllamaBaseURL: cfg.OllamaBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	var guardOpts []guardrail.Option
	if cfg.GuardrailRulesFile != "" {
		guardOpts = append(guardOpts, guardrail.WithRuleFile(cfg.GuardrailRulesFile))
	}
	guard, err := guardrail.NewValidator(guardOpts...)
	if err != nil {
		return nil, fmt.Errorf("guardrails: %w", err)
	}

	engine, err := policy.NewEngine(ctx, policy.Config{DisputeEscalationLimit: cfg.DisputeEscalationLimit})
	if err != nil {
		return nil, fmt.Errorf("policy engine: %w", err)
	}

	extractor, err := entity.NewExtractor(provider, cfg.GenerationModel)
	if err != nil {
		return nil, fmt.Errorf("entity extractor: %w", err)
	}

	retriever, err := loadRetriever(ctx, cfg)
	if err != nil {
		return nil, err
	}

	clients := integrations.NewClients(integrations.Config{
		CoreBankingURL:  cfg.CoreBankingURL,
		WorkflowURL:     cfg.WorkflowURL,
		CRMURL:          cfg.CRMURL,
		NotificationURL: cfg.NotificationURL,
		Timeout:         cfg.CollaboratorTimeout,
	})
	registry := workflow.DefaultRegistry(workflow.Deps{
		Policy:       engine,
		Core:         clients.Core,
		Cases:        clients.Workflow,
		CRM:          clients.CRM,
		Notification: clients.Notification,
		Responder:    workflow.NewResponder(provider, cfg.GenerationModel),
	})

	audit, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("initializing audit store: %w", err)
	}

	opts := []pipeline.Option{
		pipeline.WithAudit(evidence.NewGenerator(audit, guard)),
		pipeline.WithModel(cfg.GenerationModel),
	}
	if retriever != nil {
		opts = append(opts, pipeline.WithRetriever(retriever))
	}
	p := pipeline.New(guard,
		intent.NewClassifier(provider, cfg.GenerationModel),
		extractor,
		registry,
		opts...,
	)

	log.Info().
		Str("llm_provider", provider.Name()).
		Str("model", cfg.GenerationModel).
		Str("policy_version", engine.Version()).
		Int("guardrail_rules", len(guard.Rules())).
		Bool("grounded", retriever != nil).
		Msg("pipeline_ready")

	return &services{
		cfg:       cfg,
		audit:     audit,
		registry:  registry,
		retriever: retriever,
		pipeline:  p,
	}, nil
}
