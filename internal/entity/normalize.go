package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type fieldType int

const (
	typeString fieldType = iota
	typeNumber
	typeBool
	typeList
	typeEnum // lower-cased, spaces become underscores
)

type field struct {
	name string
	typ  fieldType
}

var fieldsByKind = map[Kind][]field{
	KindAddress: {
		{"street", typeString}, {"city", typeString}, {"state", typeString},
		{"zip_code", typeString}, {"address_type", typeEnum},
	},
	KindDispute: {
		{"transaction_id", typeString}, {"amount", typeNumber}, {"transaction_date", typeString},
		{"merchant", typeString}, {"reason", typeString}, {"is_fraud", typeBool},
	},
	KindStatement: {
		{"statement_type", typeEnum}, {"start_date", typeString},
		{"end_date", typeString}, {"delivery_method", typeEnum},
	},
	KindPayment: {
		{"payment_type", typeEnum}, {"amount", typeNumber},
		{"payment_date", typeString}, {"payment_method", typeEnum},
	},
	KindCard: {
		{"card_last_four", typeString}, {"card_type", typeEnum},
		{"action", typeEnum}, {"reason", typeString},
	},
	KindGeneric: {
		{"summary", typeString}, {"key_details", typeList},
	},
}

var defaultsByKind = map[Kind]map[string]any{
	KindAddress:   {"address_type": "mailing"},
	KindStatement: {"statement_type": "monthly", "delivery_method": "email"},
}

var (
	zipPlusFour = regexp.MustCompile(`^(\d{5})-\d{4}$`)
	amountJunk  = strings.NewReplacer("$", "", ",", "", "USD", "", "usd", "", " ", "")
)

// normalize keeps the variant's known fields, coerces their types, applies
// field rules and fills defaults. Unknown keys are dropped. A value that
// cannot be coerced is an error.
func normalize(kind Kind, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any)
	for _, f := range fieldsByKind[kind] {
		v, ok := raw[f.name]
		if !ok || isBlank(v) {
			continue
		}
		cv, err := coerce(f, v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", f.name, err)
		}
		out[f.name] = cv
	}

	if s, ok := out["state"].(string); ok {
		out["state"] = StateCode(s)
	}
	if z, ok := out["zip_code"].(string); ok {
		if m := zipPlusFour.FindStringSubmatch(z); m != nil {
			out["zip_code"] = m[1]
		}
	}

	for k, v := range defaultsByKind[kind] {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "null", "none", "n/a", "unknown":
			return true
		}
	case []any:
		return len(t) == 0
	}
	return false
}

func coerce(f field, v any) (any, error) {
	switch f.typ {
	case typeNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			n, err := strconv.ParseFloat(amountJunk.Replace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("not a number: %q", t)
			}
			return n, nil
		}
		return nil, fmt.Errorf("not a number: %v", v)

	case typeBool:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "y", "1":
				return true, nil
			case "false", "no", "n", "0":
				return false, nil
			}
		}
		return nil, fmt.Errorf("not a boolean: %v", v)

	case typeList:
		switch t := v.(type) {
		case []any:
			out := make([]string, 0, len(t))
			for _, item := range t {
				if s := strings.TrimSpace(toString(item)); s != "" {
					out = append(out, s)
				}
			}
			return out, nil
		case string:
			var out []string
			for _, part := range strings.Split(t, ",") {
				if s := strings.TrimSpace(part); s != "" {
					out = append(out, s)
				}
			}
			return out, nil
		}
		return nil, fmt.Errorf("not a list: %v", v)

	case typeEnum:
		s := strings.ToLower(strings.TrimSpace(toString(v)))
		return strings.Join(strings.Fields(s), "_"), nil
	}
	return strings.TrimSpace(toString(v)), nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
