package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect servicing configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration (secrets redacted)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, span := tracer.Start(cmd.Context(), "config.show")
		defer span.End()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		renderConfig(cmd.OutOrStdout(), cfg)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func renderConfig(w io.Writer, cfg *config.Config) {
	dataDirState := "(will be created)"
	if dirExists(cfg.DataDir) {
		dataDirState = "(exists)"
	}
	signing := "configured"
	if cfg.UsingDefaultSigningKey() {
		signing = "generated default (set SERVICING_SIGNING_KEY for production)"
	}
	index := "(not built)"
	if fileExists(cfg.IndexPath) {
		index = "(exists)"
	}

	fmt.Fprintf(w, "Data directory:     %s %s\n", cfg.DataDir, dataDirState)
	fmt.Fprintf(w, "Audit DB:           %s\n", cfg.AuditDBPath())
	fmt.Fprintf(w, "Signing key:        %s\n", signing)
	fmt.Fprintf(w, "API key:            %s\n", setOrNot(cfg.APIKey))
	fmt.Fprintf(w, "LLM provider:       %s (%s)\n", cfg.LLMProvider, cfg.GenerationModel)
	fmt.Fprintf(w, "Embedding provider: %s (%s)\n", cfg.EmbeddingProvider, cfg.EmbeddingModel)
	fmt.Fprintf(w, "LLM keys (env):     %s=%s %s=%s\n",
		config.EnvOpenAIKey, setOrNot(cfg.OpenAIKey), config.EnvGeminiKey, setOrNot(cfg.GeminiKey))
	fmt.Fprintf(w, "Knowledge dir:      %s\n", cfg.KnowledgeDir)
	fmt.Fprintf(w, "Index:              %s %s\n", cfg.IndexPath, index)
	fmt.Fprintf(w, "Retrieval:          top_k=%d threshold=%.2f\n", cfg.TopK, cfg.SimilarityThreshold)
	fmt.Fprintf(w, "Guardrail rules:    %s\n", orDash(cfg.GuardrailRulesFile))
	fmt.Fprintf(w, "Core banking:       %s\n", cfg.CoreBankingURL)
	fmt.Fprintf(w, "Workflow:           %s\n", cfg.WorkflowURL)
	fmt.Fprintf(w, "CRM:                %s\n", cfg.CRMURL)
	fmt.Fprintf(w, "Notification:       %s\n", cfg.NotificationURL)
	fmt.Fprintf(w, "Service timeout:    %s\n", cfg.CollaboratorTimeout)
	fmt.Fprintf(w, "Dispute escalation: %.2f\n", cfg.DisputeEscalationLimit)
	fmt.Fprintf(w, "Rate limit:         %.1f rps (burst %d)\n", cfg.RateLimitRPS, cfg.RateLimitBurst)
}

func setOrNot(s string) string {
	if s == "" {
		return "not set"
	}
	return "set"
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
