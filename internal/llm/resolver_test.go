package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      ProviderConfig
		wantName string
		wantErr  error
	}{
		{"openai with key", ProviderConfig{Name: "openai", APIKey: "sk-test"}, "openai", nil},
		{"empty name defaults to openai", ProviderConfig{APIKey: "sk-test"}, "openai", nil},
		{"openai without key", ProviderConfig{Name: "openai"}, "", ErrProviderNotAvailable},
		{"ollama needs no key", ProviderConfig{Name: "ollama"}, "ollama", nil},
		{"unknown", ProviderConfig{Name: "bard"}, "", ErrUnknownProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, p.Name())
		})
	}
	assert.True(t, ProviderUsesAPIKey("openai"))
	assert.False(t, ProviderUsesAPIKey("ollama"))
}
