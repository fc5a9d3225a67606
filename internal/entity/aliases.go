package entity

import "strings"

// keyAliases maps names models commonly emit onto canonical field names.
var keyAliases = map[string]string{
	"zip":              "zip_code",
	"zipcode":          "zip_code",
	"postal_code":      "zip_code",
	"postcode":         "zip_code",
	"street_address":   "street",
	"address_line":     "street",
	"address_line_1":   "street",
	"address1":         "street",
	"town":             "city",
	"region":           "state",
	"state_code":       "state",
	"province":         "state",
	"dispute_reason":   "reason",
	"fraud_reason":     "reason",
	"txn_id":           "transaction_id",
	"transaction_ref":  "transaction_id",
	"reference":        "transaction_id",
	"vendor":           "merchant",
	"store":            "merchant",
	"fraud":            "is_fraud",
	"last_four":        "card_last_four",
	"last4":            "card_last_four",
	"card_last_4":      "card_last_four",
	"delivery":         "delivery_method",
	"from":             "start_date",
	"to":               "end_date",
	"method":           "payment_method",
	"details":          "key_details",
	"statement_period": "statement_type",
}

// canonicalKey lower-cases a key, turns spaces and dashes into underscores
// and applies aliases.
func canonicalKey(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.NewReplacer(" ", "_", "-", "_").Replace(k)
	if alias, ok := keyAliases[k]; ok {
		return alias
	}
	return k
}
