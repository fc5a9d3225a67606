package guardrail

// ViolationSummary aggregates violations for logs, metrics and the audit trail.
type ViolationSummary struct {
	Total      int            `json:"total"`
	Errors     int            `json:"errors"`
	Warnings   int            `json:"warnings"`
	HasErrors  bool           `json:"has_errors"`
	ByCategory map[string]int `json:"by_category"`
	Rules      []string       `json:"rules,omitempty"`
}

// Summarize counts violations by severity and category.
func Summarize(violations []Violation) ViolationSummary {
	s := ViolationSummary{ByCategory: make(map[string]int)}
	seen := make(map[string]bool)
	for _, v := range violations {
		s.Total++
		switch v.Severity {
		case SeverityError:
			s.Errors++
		case SeverityWarning:
			s.Warnings++
		}
		s.ByCategory[v.Category]++
		if !seen[v.Rule] {
			seen[v.Rule] = true
			s.Rules = append(s.Rules, v.Rule)
		}
	}
	s.HasErrors = s.Errors > 0
	return s
}
