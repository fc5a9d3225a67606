package guardrail

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sushiva/omni-channel-ai-servicing/patterns"
)

// Severity decides whether a violation blocks the request.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Stage is where a rule applies.
type Stage string

const (
	StageInput  Stage = "input"
	StageOutput Stage = "output"
)

// Rule categories.
const (
	CategoryPII           = "pii"
	CategoryInjection     = "injection"
	CategoryProfanity     = "profanity"
	CategoryOffTopic      = "off_topic"
	CategoryHallucination = "hallucination"
	CategoryQuality       = "quality"
)

// Rule kinds understood by CompileRules.
const (
	KindPattern   = "pattern"
	KindDenyList  = "deny_list"
	KindTopic     = "topic"
	KindMinLength = "min_length"
)

// RuleFile is the top-level YAML structure for a guardrail rule file.
type RuleFile struct {
	Rules []RuleConfig `yaml:"rules"`
}

// RuleConfig is one rule as written in YAML.
type RuleConfig struct {
	Name        string          `yaml:"name" json:"name"`
	Kind        string          `yaml:"kind" json:"kind"`
	Category    string          `yaml:"category" json:"category"`
	Severity    Severity        `yaml:"severity" json:"severity"`
	Stages      []Stage         `yaml:"stages" json:"stages"`
	Message     string          `yaml:"message,omitempty" json:"message,omitempty"`
	Enabled     *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Placeholder string          `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Patterns    []PatternConfig `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	DenyList    []string        `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	RequireAny  []string        `yaml:"require_any,omitempty" json:"require_any,omitempty"`
	MinLength   int             `yaml:"min_length,omitempty" json:"min_length,omitempty"`
}

// PatternConfig is a single regex within a pattern rule.
type PatternConfig struct {
	Name  string `yaml:"name" json:"name"`
	Regex string `yaml:"regex" json:"regex"`
}

func (r *RuleConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// ParseRuleFile parses rule YAML bytes.
func ParseRuleFile(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing guardrail YAML: %w", err)
	}
	return &rf, nil
}

// LoadRuleFile reads a rule file from disk. A missing file returns nil, nil
// so an unset operator override is a no-op.
func LoadRuleFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading guardrail file %s: %w", path, err)
	}
	return ParseRuleFile(data)
}

// DefaultRules returns the embedded rule set.
func DefaultRules() ([]RuleConfig, error) {
	rf, err := ParseRuleFile(patterns.GuardrailsYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded guardrail rules: %w", err)
	}
	return rf.Rules, nil
}

// MergeRules overlays later layers onto earlier ones by rule name. New names
// are appended in order.
func MergeRules(layers ...[]RuleConfig) []RuleConfig {
	index := make(map[string]int)
	var merged []RuleConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// matcher returns the byte spans of every hit in text.
type matcher func(text string) [][]int

// Rule is a compiled, immutable guardrail rule.
type Rule struct {
	Name        string
	Category    string
	Severity    Severity
	Message     string
	Placeholder string
	stages      map[Stage]bool
	match       matcher
}

// AppliesTo reports whether the rule runs at the given stage.
func (r *Rule) AppliesTo(s Stage) bool { return r.stages[s] }

// CompileRules validates and compiles rule configs. Disabled rules are
// skipped. Every regex is compiled here and never again.
func CompileRules(configs []RuleConfig) ([]*Rule, error) {
	var rules []*Rule
	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		if rc.Severity != SeverityError && rc.Severity != SeverityWarning {
			return nil, fmt.Errorf("rule %q: unknown severity %q", rc.Name, rc.Severity)
		}
		if len(rc.Stages) == 0 {
			return nil, fmt.Errorf("rule %q: no stages", rc.Name)
		}
		m, err := compileMatcher(rc)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", rc.Name, err)
		}
		stages := make(map[Stage]bool, len(rc.Stages))
		for _, s := range rc.Stages {
			if s != StageInput && s != StageOutput {
				return nil, fmt.Errorf("rule %q: unknown stage %q", rc.Name, s)
			}
			stages[s] = true
		}
		msg := rc.Message
		if msg == "" {
			msg = rc.Name + " rule matched"
		}
		rules = append(rules, &Rule{
			Name:        rc.Name,
			Category:    rc.Category,
			Severity:    rc.Severity,
			Message:     msg,
			Placeholder: rc.Placeholder,
			stages:      stages,
			match:       m,
		})
	}
	return rules, nil
}

func compileMatcher(rc RuleConfig) (matcher, error) {
	switch rc.Kind {
	case KindPattern, "":
		if len(rc.Patterns) == 0 {
			return nil, fmt.Errorf("pattern rule without patterns")
		}
		res := make([]*regexp.Regexp, 0, len(rc.Patterns))
		for _, p := range rc.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q: %w", p.Name, err)
			}
			res = append(res, re)
		}
		return func(text string) [][]int {
			var spans [][]int
			for _, re := range res {
				spans = append(spans, re.FindAllStringIndex(text, -1)...)
			}
			return spans
		}, nil

	case KindDenyList:
		re, err := wordListRegexp(rc.DenyList)
		if err != nil {
			return nil, err
		}
		return func(text string) [][]int { return re.FindAllStringIndex(text, -1) }, nil

	case KindTopic:
		deny, err := wordListRegexp(rc.DenyList)
		if err != nil {
			return nil, err
		}
		require, err := wordListRegexp(rc.RequireAny)
		if err != nil {
			return nil, err
		}
		minLen := rc.MinLength
		return func(text string) [][]int {
			if spans := deny.FindAllStringIndex(text, -1); len(spans) > 0 {
				return spans
			}
			if len(strings.TrimSpace(text)) > minLen && !require.MatchString(text) {
				return [][]int{{0, len(text)}}
			}
			return nil
		}, nil

	case KindMinLength:
		minLen := rc.MinLength
		if minLen <= 0 {
			return nil, fmt.Errorf("min_length rule needs a positive min_length")
		}
		return func(text string) [][]int {
			if n := len(strings.TrimSpace(text)); n < minLen {
				return [][]int{{0, len(text)}}
			}
			return nil
		}, nil
	}
	return nil, fmt.Errorf("unknown rule kind %q", rc.Kind)
}

// wordListRegexp builds one case-insensitive, word-bounded alternation so a
// deny list costs a single regex pass.
func wordListRegexp(words []string) (*regexp.Regexp, error) {
	if len(words) == 0 {
		return nil, fmt.Errorf("empty word list")
	}
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(strings.TrimSpace(w)), " ", `\s+`)
	}
	return regexp.Compile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}
