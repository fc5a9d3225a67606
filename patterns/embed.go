// Package patterns provides the embedded default guardrail rule set.
// Operators can layer an extra YAML file of the same shape on top; rules
// merge by name.
package patterns

import _ "embed"

//go:embed guardrails.yaml
var guardrailsYAML []byte

// GuardrailsYAML returns the embedded default guardrail rules.
func GuardrailsYAML() []byte { return guardrailsYAML }
