// Package doctor provides preflight checks for a servicing deployment.
// Used by `servicing doctor` before `servicing serve` is started.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
	"github.com/sushiva/omni-channel-ai-servicing/internal/evidence"
	"github.com/sushiva/omni-channel-ai-servicing/internal/guardrail"
	"github.com/sushiva/omni-channel-ai-servicing/internal/policy"
	"github.com/sushiva/omni-channel-ai-servicing/internal/retrieval"
)

// Check statuses.
const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which check categories to run.
type Options struct {
	SkipUpstream bool // Skip downstream connectivity checks (for CI/offline)
	HTTPClient   *http.Client
}

// Run executes all doctor checks against cfg and returns a report.
func Run(ctx context.Context, cfg *config.Config, opts Options) *Report {
	report := &Report{}

	report.Checks = append(report.Checks, checkConfig(ctx, cfg)...)
	report.Checks = append(report.Checks, checkKnowledge(ctx, cfg)...)
	if !opts.SkipUpstream {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: 5 * time.Second}
		}
		report.Checks = append(report.Checks, checkServices(ctx, client, cfg)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case StatusPass:
			report.Summary.Pass++
		case StatusWarn:
			report.Summary.Warn++
		case StatusFail:
			report.Summary.Fail++
		}
	}

	report.Status = StatusPass
	if report.Summary.Warn > 0 {
		report.Status = StatusWarn
	}
	if report.Summary.Fail > 0 {
		report.Status = StatusFail
	}
	return report
}

func checkConfig(ctx context.Context, cfg *config.Config) []CheckResult {
	results := []CheckResult{checkDataDir(cfg)}
	results = append(results, checkModelKeys(cfg)...)
	results = append(results, checkSigningKey(cfg))
	results = append(results, checkAuditDB(ctx, cfg))
	results = append(results, checkPolicy(ctx, cfg))
	results = append(results, checkGuardrailRules(cfg))
	return results
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s not writable: %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkModelKeys(cfg *config.Config) []CheckResult {
	var results []CheckResult
	switch {
	case cfg.LLMProvider == "ollama":
		results = append(results, CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusPass,
			Message: "ollama at " + cfg.OllamaBaseURL,
		})
	case cfg.OpenAIKey == "":
		results = append(results, CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusFail,
			Message: "openai selected but " + config.EnvOpenAIKey + " is not set",
			Fix:     "Export " + config.EnvOpenAIKey + " or set SERVICING_LLM_PROVIDER=ollama",
		})
	default:
		results = append(results, CheckResult{
			Name: "llm_provider", Category: "config", Status: StatusPass,
			Message: "openai (" + cfg.GenerationModel + ")",
		})
	}

	keyEnv, key := config.EnvOpenAIKey, cfg.OpenAIKey
	if cfg.EmbeddingProvider == "genai" {
		keyEnv, key = config.EnvGeminiKey, cfg.GeminiKey
	}
	if key == "" {
		results = append(results, CheckResult{
			Name: "embedding_provider", Category: "config", Status: StatusFail,
			Message: cfg.EmbeddingProvider + " selected but " + keyEnv + " is not set",
			Fix:     "Export " + keyEnv,
		})
	} else {
		results = append(results, CheckResult{
			Name: "embedding_provider", Category: "config", Status: StatusPass,
			Message: cfg.EmbeddingProvider + " (" + cfg.EmbeddingModel + ")",
		})
	}
	return results
}

func checkSigningKey(cfg *config.Config) CheckResult {
	if cfg.UsingDefaultSigningKey() {
		return CheckResult{
			Name: "signing_key", Category: "config", Status: StatusWarn,
			Message: "Using generated default", Fix: "Set SERVICING_SIGNING_KEY for production",
		}
	}
	return CheckResult{Name: "signing_key", Category: "config", Status: StatusPass, Message: "Configured"}
}

func checkAuditDB(ctx context.Context, cfg *config.Config) CheckResult {
	store, err := evidence.NewStore(cfg.AuditDBPath(), cfg.SigningKey)
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "config", Status: StatusFail,
			Message: err.Error(),
		}
	}
	defer store.Close()

	recent, err := store.ListIndex(ctx, evidence.Filter{Limit: 1})
	if err != nil {
		return CheckResult{
			Name: "audit_db", Category: "config", Status: StatusFail,
			Message: fmt.Sprintf("%s: %v", cfg.AuditDBPath(), err),
		}
	}
	msg := cfg.AuditDBPath() + " (empty)"
	if len(recent) > 0 {
		msg = fmt.Sprintf("%s (last record %s)", cfg.AuditDBPath(), recent[0].Timestamp.Format(time.RFC3339))
	}
	return CheckResult{Name: "audit_db", Category: "config", Status: StatusPass, Message: msg}
}

func checkPolicy(ctx context.Context, cfg *config.Config) CheckResult {
	engine, err := policy.NewEngine(ctx, policy.Config{DisputeEscalationLimit: cfg.DisputeEscalationLimit})
	if err != nil {
		return CheckResult{
			Name: "policy_compiles", Category: "config", Status: StatusFail,
			Message: err.Error(),
		}
	}
	return CheckResult{
		Name: "policy_compiles", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (dispute limit %.0f)", engine.Version(), cfg.DisputeEscalationLimit),
	}
}

func checkGuardrailRules(cfg *config.Config) CheckResult {
	var opts []guardrail.Option
	msg := "built-in rules"
	if cfg.GuardrailRulesFile != "" {
		opts = append(opts, guardrail.WithRuleFile(cfg.GuardrailRulesFile))
		msg = cfg.GuardrailRulesFile
	}
	v, err := guardrail.NewValidator(opts...)
	if err != nil {
		return CheckResult{
			Name: "guardrail_rules", Category: "config", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Check YAML syntax and regex patterns in the rule file",
		}
	}
	return CheckResult{
		Name: "guardrail_rules", Category: "config", Status: StatusPass,
		Message: fmt.Sprintf("%s (%d rules)", msg, len(v.Rules())),
	}
}

func checkKnowledge(ctx context.Context, cfg *config.Config) []CheckResult {
	var results []CheckResult
	if info, err := os.Stat(cfg.KnowledgeDir); err != nil || !info.IsDir() {
		results = append(results, CheckResult{
			Name: "knowledge_dir", Category: "knowledge", Status: StatusWarn,
			Message: cfg.KnowledgeDir + " not found",
			Fix:     "Set SERVICING_KNOWLEDGE_DIR to the policies/faqs directory",
		})
	} else {
		results = append(results, CheckResult{
			Name: "knowledge_dir", Category: "knowledge", Status: StatusPass, Message: cfg.KnowledgeDir,
		})
	}

	ix, err := retrieval.LoadIndex(ctx, cfg.IndexPath)
	switch {
	case errors.Is(err, retrieval.ErrIndexNotFound):
		results = append(results, CheckResult{
			Name: "knowledge_index", Category: "knowledge", Status: StatusWarn,
			Message: cfg.IndexPath + " not built; answers will not be grounded",
			Fix:     "Run 'servicing index'",
		})
	case err != nil:
		results = append(results, CheckResult{
			Name: "knowledge_index", Category: "knowledge", Status: StatusFail,
			Message: err.Error(),
			Fix:     "Rebuild with 'servicing index'",
		})
	default:
		results = append(results, CheckResult{
			Name: "knowledge_index", Category: "knowledge", Status: StatusPass,
			Message: fmt.Sprintf("%d chunks, %s, %d dimensions", ix.Len(), ix.Embedder(), ix.Dimensions()),
		})
	}
	return results
}

func checkServices(ctx context.Context, client *http.Client, cfg *config.Config) []CheckResult {
	services := []struct{ name, url string }{
		{"core_banking", cfg.CoreBankingURL},
		{"workflow", cfg.WorkflowURL},
		{"crm", cfg.CRMURL},
		{"notification", cfg.NotificationURL},
	}
	if cfg.LLMProvider == "ollama" {
		services = append(services, struct{ name, url string }{"ollama", cfg.OllamaBaseURL})
	}
	var results []CheckResult
	for _, s := range services {
		results = append(results, checkUpstream(ctx, client, s.name, s.url)...)
	}
	return results
}

func checkUpstream(ctx context.Context, client *http.Client, name, baseURL string) []CheckResult {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if reqErr != nil {
		return []CheckResult{{
			Name: "upstream_" + name, Category: "services", Status: StatusFail,
			Message: fmt.Sprintf("Invalid URL: %v", reqErr),
		}}
	}
	start := time.Now()
	resp, err := client.Do(req) //nolint:gosec // URL from operator configuration
	latency := time.Since(start)
	if err != nil {
		return []CheckResult{{
			Name: "upstream_" + name, Category: "services", Status: StatusFail,
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and the configured URL",
		}}
	}
	resp.Body.Close()

	results := []CheckResult{{
		Name: "upstream_" + name, Category: "services", Status: StatusPass,
		Message: fmt.Sprintf("%s %dms", baseURL, latency.Milliseconds()),
	}}
	if resp.StatusCode >= 500 {
		results[0].Status = StatusWarn
		results[0].Message = fmt.Sprintf("%s answered %d", baseURL, resp.StatusCode)
	}
	if latency > 2*time.Second {
		results = append(results, CheckResult{
			Name: "upstream_latency_" + name, Category: "services", Status: StatusWarn,
			Message: fmt.Sprintf("%.1fs (> 2s threshold)", latency.Seconds()),
		})
	}
	return results
}
