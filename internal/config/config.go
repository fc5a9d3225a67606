// Package config holds operator-level configuration for a servicing
// deployment: storage locations, signing material, model backends,
// downstream service endpoints and retrieval tuning.
//
// Values come from viper, which merges SERVICING_* environment variables,
// an optional servicing.config.yaml and the defaults below. Model API keys
// are read from OPENAI_API_KEY and GEMINI_API_KEY and never from the file.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SERVICING_ prefix
// (e.g. "signing_key" -> SERVICING_SIGNING_KEY) and to a YAML field in
// servicing.config.yaml.
const (
	KeyDataDir                = "data_dir"
	KeySigningKey             = "signing_key"
	KeyAPIKey                 = "api_key"
	KeyLLMProvider            = "llm_provider"
	KeyGenerationModel        = "generation_model"
	KeyEmbeddingProvider      = "embedding_provider"
	KeyEmbeddingModel         = "embedding_model"
	KeyOllamaBaseURL          = "ollama_base_url"
	KeyOpenAIBaseURL          = "openai_base_url"
	KeyKnowledgeDir           = "knowledge_dir"
	KeyIndexPath              = "index_path"
	KeyGuardrailRulesFile     = "guardrail_rules_file"
	KeyCoreBankingURL         = "core_banking_url"
	KeyCRMURL                 = "crm_url"
	KeyWorkflowURL            = "workflow_url"
	KeyNotificationURL        = "notification_url"
	KeyCollaboratorTimeout    = "collaborator_timeout"
	KeyTopK                   = "top_k"
	KeySimilarityThreshold    = "similarity_threshold"
	KeyDisputeEscalationLimit = "dispute_escalation_limit"
	KeyRateLimitRPS           = "rate_limit_rps"
	KeyRateLimitBurst         = "rate_limit_burst"
)

// Defaults.
const (
	DefaultLLMProvider            = "openai"
	DefaultGenerationModel        = "gpt-4o-mini"
	DefaultEmbeddingProvider      = "openai"
	DefaultEmbeddingModel         = "text-embedding-3-small"
	DefaultOllamaURL              = "http://localhost:11434"
	DefaultKnowledgeDir           = "knowledge_base"
	DefaultServicesURL            = "http://localhost:8001"
	DefaultCollaboratorTimeout    = 10 * time.Second
	DefaultTopK                   = 3
	DefaultSimilarityThreshold    = 0.5
	DefaultDisputeEscalationLimit = 10000.0
	DefaultRateLimitRPS           = 5.0
	DefaultRateLimitBurst         = 10
)

// Environment variables holding model credentials.
const (
	EnvOpenAIKey = "OPENAI_API_KEY"
	EnvGeminiKey = "GEMINI_API_KEY"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds resolved configuration for a servicing process.
type Config struct {
	DataDir    string // Base directory for all state (~/.servicing)
	SigningKey string // HMAC-SHA256 key for audit records (>=32 bytes)
	APIKey     string // Bearer token for the HTTP API; empty disables auth

	LLMProvider       string // "openai" or "ollama"
	GenerationModel   string
	EmbeddingProvider string // "openai" or "genai"
	EmbeddingModel    string
	OllamaBaseURL     string
	OpenAIBaseURL     string
	OpenAIKey         string
	GeminiKey         string

	KnowledgeDir       string
	IndexPath          string
	GuardrailRulesFile string

	CoreBankingURL      string
	CRMURL              string
	WorkflowURL         string
	NotificationURL     string
	CollaboratorTimeout time.Duration

	TopK                   int
	SimilarityThreshold    float64
	DisputeEscalationLimit float64
	RateLimitRPS           float64
	RateLimitBurst         int

	usingDefaultSigningKey bool
}

// UsingDefaultSigningKey returns true if the signing key was derived (not set explicitly).
func (c *Config) UsingDefaultSigningKey() bool {
	return c.usingDefaultSigningKey
}

// AuditDBPath returns the full path to the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// WarnIfDefaultKeys logs a warning when the signing key is not explicitly set.
func (c *Config) WarnIfDefaultKeys() {
	if c.usingDefaultSigningKey {
		log.Warn().Msg("Using generated default SERVICING_SIGNING_KEY; set via env var or config file for production")
	}
}

func init() {
	SetDefaults(viper.GetViper())
}

// SetDefaults registers the env prefix and defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix("SERVICING")
	v.AutomaticEnv()
	v.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	v.SetDefault(KeyGenerationModel, DefaultGenerationModel)
	v.SetDefault(KeyEmbeddingProvider, DefaultEmbeddingProvider)
	v.SetDefault(KeyEmbeddingModel, DefaultEmbeddingModel)
	v.SetDefault(KeyOllamaBaseURL, DefaultOllamaURL)
	v.SetDefault(KeyKnowledgeDir, DefaultKnowledgeDir)
	v.SetDefault(KeyCoreBankingURL, DefaultServicesURL)
	v.SetDefault(KeyCRMURL, DefaultServicesURL)
	v.SetDefault(KeyWorkflowURL, DefaultServicesURL)
	v.SetDefault(KeyNotificationURL, DefaultServicesURL)
	v.SetDefault(KeyCollaboratorTimeout, DefaultCollaboratorTimeout)
	v.SetDefault(KeyTopK, DefaultTopK)
	v.SetDefault(KeySimilarityThreshold, DefaultSimilarityThreshold)
	v.SetDefault(KeyDisputeEscalationLimit, DefaultDisputeEscalationLimit)
	v.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	v.SetDefault(KeyRateLimitBurst, DefaultRateLimitBurst)
}

// Load reads configuration from the global viper instance and returns a
// validated Config.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads configuration from v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DataDir:                resolveDataDir(v),
		SigningKey:             v.GetString(KeySigningKey),
		APIKey:                 v.GetString(KeyAPIKey),
		LLMProvider:            v.GetString(KeyLLMProvider),
		GenerationModel:        v.GetString(KeyGenerationModel),
		EmbeddingProvider:      v.GetString(KeyEmbeddingProvider),
		EmbeddingModel:         v.GetString(KeyEmbeddingModel),
		OllamaBaseURL:          v.GetString(KeyOllamaBaseURL),
		OpenAIBaseURL:          v.GetString(KeyOpenAIBaseURL),
		OpenAIKey:              os.Getenv(EnvOpenAIKey),
		GeminiKey:              os.Getenv(EnvGeminiKey),
		KnowledgeDir:           v.GetString(KeyKnowledgeDir),
		IndexPath:              v.GetString(KeyIndexPath),
		GuardrailRulesFile:     v.GetString(KeyGuardrailRulesFile),
		CoreBankingURL:         v.GetString(KeyCoreBankingURL),
		CRMURL:                 v.GetString(KeyCRMURL),
		WorkflowURL:            v.GetString(KeyWorkflowURL),
		NotificationURL:        v.GetString(KeyNotificationURL),
		CollaboratorTimeout:    v.GetDuration(KeyCollaboratorTimeout),
		TopK:                   v.GetInt(KeyTopK),
		SimilarityThreshold:    v.GetFloat64(KeySimilarityThreshold),
		DisputeEscalationLimit: v.GetFloat64(KeyDisputeEscalationLimit),
		RateLimitRPS:           v.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst:         v.GetInt(KeyRateLimitBurst),
	}

	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.DataDir, "index.db")
	}
	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDefaultSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	return cfg, nil
}

func resolveDataDir(v *viper.Viper) string {
	if dir := v.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".servicing"
	}
	return filepath.Join(home, ".servicing")
}

// deriveDefaultKey produces a deterministic 32-byte fallback key (hex) from
// the data directory path and a salt. It is per-machine, not secret; it
// exists so a first run works before an operator sets a key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("servicing:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if err := validateSigningKey(c.SigningKey); err != nil {
		return err
	}
	switch c.LLMProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("llm_provider must be openai or ollama, got %q", c.LLMProvider)
	}
	switch c.EmbeddingProvider {
	case "openai", "genai":
	default:
		return fmt.Errorf("embedding_provider must be openai or genai, got %q", c.EmbeddingProvider)
	}
	for key, raw := range map[string]string{
		KeyCoreBankingURL:  c.CoreBankingURL,
		KeyCRMURL:          c.CRMURL,
		KeyWorkflowURL:     c.WorkflowURL,
		KeyNotificationURL: c.NotificationURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", key, raw)
		}
	}
	if c.CollaboratorTimeout <= 0 {
		return fmt.Errorf("collaborator_timeout must be positive")
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive")
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be between 0 and 1")
	}
	if c.DisputeEscalationLimit <= 0 {
		return fmt.Errorf("dispute_escalation_limit must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}

// validateSigningKey accepts either >=32 raw bytes or >=64 hex characters.
func validateSigningKey(key string) error {
	n := len(key)
	if n >= 64 && n%2 == 0 {
		if _, err := hex.DecodeString(key); err == nil {
			return nil
		}
	}
	if n >= 32 {
		return nil
	}
	return fmt.Errorf("signing_key must be at least 32 bytes or 64+ hex characters (got %d); set SERVICING_SIGNING_KEY", n)
}
