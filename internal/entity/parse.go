package entity

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoFields is returned when model output holds nothing parseable.
var ErrNoFields = errors.New("no fields in model output")

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ParseFields turns raw model output into a field map with canonical keys.
// JSON objects are accepted bare, fenced or embedded in prose; otherwise
// "key: value" lines are read.
func ParseFields(raw string) (map[string]any, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	if obj, ok := parseJSONObject(text); ok {
		out := make(map[string]any, len(obj))
		for k, v := range obj {
			out[canonicalKey(k)] = v
		}
		return out, nil
	}

	out := make(map[string]any)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.Trim(line[:idx], "\"'` ")
		val := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"',")
		if key == "" || strings.ContainsAny(key, "{}") {
			continue
		}
		out[canonicalKey(key)] = val
	}
	if len(out) == 0 {
		return nil, ErrNoFields
	}
	return out, nil
}

func parseJSONObject(text string) (map[string]any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text[start:end+1]), &obj); err != nil {
		return nil, false
	}
	return obj, true
}
