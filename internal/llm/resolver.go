package llm

import "fmt"

// ProviderConfig selects and configures a generation backend.
type ProviderConfig struct {
	Name          string // "openai" or "ollama"
	APIKey        string
	OpenAIBaseURL string
	OllamaBaseURL string
}

// NewProvider builds the configured Provider. OpenAI requires an API key;
// Ollama does not.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Name {
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w (OPENAI_API_KEY not set)", ErrProviderNotAvailable)
		}
		if cfg.OpenAIBaseURL != "" {
			return NewOpenAIProviderWithBaseURL(cfg.APIKey, cfg.OpenAIBaseURL), nil
		}
		return NewOpenAIProvider(cfg.APIKey), nil
	case "ollama":
		return NewOllamaProvider(cfg.OllamaBaseURL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}
}

// ProviderUsesAPIKey reports whether the named provider requires an API key.
func ProviderUsesAPIKey(providerName string) bool {
	return providerName == "openai" || providerName == ""
}
