// Package intent defines the closed set of customer intents and the classifier
// that maps free text onto it.
package intent

import (
	"strings"
)

// Intent is one member of the closed intent enumeration. The zero value is not
// a valid intent; use Parse or the constants below.
type Intent string

// Intent values. The string form is the lower-case wire value; Name returns
// the SCREAMING_SNAKE name used in prompts and logs.
const (
	AddressUpdate    Intent = "address_update"
	FraudReport      Intent = "fraud_report"
	Dispute          Intent = "dispute"
	StatementRequest Intent = "statement_request"
	AccountInquiry   Intent = "account_inquiry"
	PaymentIssue     Intent = "payment_issue"
	CardActivation   Intent = "card_activation"
	CardReplacement  Intent = "card_replacement"
	BalanceInquiry   Intent = "balance_inquiry"
	Greeting         Intent = "greeting"
	Farewell         Intent = "farewell"
	ThankYou         Intent = "thank_you"
	SmallTalk        Intent = "small_talk"
	Fallback         Intent = "fallback"
)

// SchemaVersion identifies the intent set. Bump when members change so audit
// records can be interpreted against the right enumeration.
const SchemaVersion = "2"

var all = []Intent{
	AddressUpdate, FraudReport, Dispute, StatementRequest, AccountInquiry,
	PaymentIssue, CardActivation, CardReplacement, BalanceInquiry,
	Greeting, Farewell, ThankYou, SmallTalk, Fallback,
}

var descriptions = map[Intent]string{
	AddressUpdate:    "customer wants to change their mailing or billing address",
	FraudReport:      "customer reports unauthorized activity, a stolen card or suspected fraud",
	Dispute:          "customer disputes a specific charge or transaction",
	StatementRequest: "customer requests an account statement or transaction history",
	AccountInquiry:   "general question about account features, fees or settings",
	PaymentIssue:     "problem with a bill payment, transfer or loan payment",
	CardActivation:   "customer wants to activate a new card",
	CardReplacement:  "customer needs a replacement for a lost, damaged or expired card",
	BalanceInquiry:   "customer asks for their balance or available credit",
	Greeting:         "hello or other opening pleasantry with no request",
	Farewell:         "goodbye or closing pleasantry",
	ThankYou:         "customer says thanks with no further request",
	SmallTalk:        "chit-chat unrelated to banking that is not abusive",
	Fallback:         "anything that does not fit the other categories",
}

// All returns every member of the enumeration in declaration order.
func All() []Intent {
	out := make([]Intent, len(all))
	copy(out, all)
	return out
}

// Name returns the SCREAMING_SNAKE form, e.g. "ADDRESS_UPDATE".
func (i Intent) Name() string {
	return strings.ToUpper(string(i))
}

func (i Intent) String() string {
	return string(i)
}

// Description is a one-line explanation used when prompting for classification.
func (i Intent) Description() string {
	return descriptions[i]
}

// Valid reports whether i is a member of the enumeration.
func (i Intent) Valid() bool {
	_, ok := descriptions[i]
	return ok
}

// Conversational reports whether the intent is pleasantry only. These
// intents carry no structured payload and never need policy grounding.
func (i Intent) Conversational() bool {
	switch i {
	case Greeting, Farewell, ThankYou, SmallTalk:
		return true
	}
	return false
}

// Parse matches raw model output against the enumeration, first by value
// then by name, ignoring case, surrounding whitespace, quotes and trailing
// punctuation. It reports false when nothing matches.
func Parse(raw string) (Intent, bool) {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "\"'`.:;!* \t\r\n")
	if s == "" {
		return Fallback, false
	}
	// Models sometimes answer "Intent: DISPUTE".
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = strings.TrimSpace(s[idx+1:])
	}
	for _, i := range all {
		if strings.EqualFold(s, string(i)) {
			return i, true
		}
	}
	for _, i := range all {
		if strings.EqualFold(s, i.Name()) {
			return i, true
		}
	}
	// Accept spaced forms such as "Address Update".
	normalized := strings.ReplaceAll(strings.ToLower(s), " ", "_")
	for _, i := range all {
		if normalized == string(i) {
			return i, true
		}
	}
	return Fallback, false
}
