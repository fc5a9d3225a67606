package evidence

import "unicode/utf8"

// previewLen bounds the redacted input preview kept in a record.
const previewLen = 120

// Sanitizer redacts PII for storage.
type Sanitizer interface {
	SanitizePII(text string) string
}

// SanitizeForEvidence redacts text and truncates it to a short preview.
// With a nil sanitizer nothing is kept: raw customer text never reaches the
// audit store.
func SanitizeForEvidence(text string, s Sanitizer) string {
	if s == nil || text == "" {
		return ""
	}
	red := s.SanitizePII(text)
	if utf8.RuneCountInString(red) <= previewLen {
		return red
	}
	r := []rune(red)
	return string(r[:previewLen]) + "..."
}
