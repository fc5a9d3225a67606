// Package entity extracts a typed record from customer text once the intent
// is known. Model output that cannot be parsed or validated never fails the
// request; it degrades to an empty generic record.
package entity

import (
	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// Kind names the record variant selected by an intent.
type Kind string

const (
	KindNone      Kind = "none"
	KindAddress   Kind = "address"
	KindDispute   Kind = "dispute"
	KindStatement Kind = "statement"
	KindPayment   Kind = "payment"
	KindCard      Kind = "card"
	KindGeneric   Kind = "generic"
)

var kindByIntent = map[intent.Intent]Kind{
	intent.AddressUpdate:    KindAddress,
	intent.Dispute:          KindDispute,
	intent.FraudReport:      KindDispute,
	intent.StatementRequest: KindStatement,
	intent.PaymentIssue:     KindPayment,
	intent.CardActivation:   KindCard,
	intent.CardReplacement:  KindCard,
	intent.AccountInquiry:   KindGeneric,
	intent.BalanceInquiry:   KindGeneric,
}

// KindFor returns the record variant for an intent. Conversational intents
// and Fallback carry no structured payload.
func KindFor(in intent.Intent) Kind {
	if k, ok := kindByIntent[in]; ok {
		return k
	}
	return KindNone
}

// Address is a postal address change.
type Address struct {
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	ZipCode     string `json:"zip_code,omitempty"`
	AddressType string `json:"address_type,omitempty"`
}

// Complete reports whether every field needed to change an address is set.
func (a *Address) Complete() bool {
	return a != nil && a.Street != "" && a.City != "" && a.State != "" && a.ZipCode != ""
}

// Dispute describes a contested or fraudulent transaction.
type Dispute struct {
	TransactionID   string   `json:"transaction_id,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	TransactionDate string   `json:"transaction_date,omitempty"`
	Merchant        string   `json:"merchant,omitempty"`
	Reason          string   `json:"reason,omitempty"`
	IsFraud         bool     `json:"is_fraud"`
}

// Statement is a statement request.
type Statement struct {
	StatementType  string `json:"statement_type,omitempty"`
	StartDate      string `json:"start_date,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
	DeliveryMethod string `json:"delivery_method,omitempty"`
}

// Payment describes a payment problem or instruction.
type Payment struct {
	PaymentType   string   `json:"payment_type,omitempty"`
	Amount        *float64 `json:"amount,omitempty"`
	PaymentDate   string   `json:"payment_date,omitempty"`
	PaymentMethod string   `json:"payment_method,omitempty"`
}

// Card is a card activation or replacement request.
type Card struct {
	CardLastFour string `json:"card_last_four,omitempty"`
	CardType     string `json:"card_type,omitempty"`
	Action       string `json:"action,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Generic summarises requests without a dedicated structure.
type Generic struct {
	Summary    string   `json:"summary"`
	KeyDetails []string `json:"key_details,omitempty"`
}

// Record is the extracted payload. Exactly one variant pointer is set,
// matching Kind, except for KindNone where all are nil.
type Record struct {
	Kind      Kind       `json:"kind"`
	Address   *Address   `json:"address,omitempty"`
	Dispute   *Dispute   `json:"dispute,omitempty"`
	Statement *Statement `json:"statement,omitempty"`
	Payment   *Payment   `json:"payment,omitempty"`
	Card      *Card      `json:"card,omitempty"`
	Generic   *Generic   `json:"generic,omitempty"`

	// Fallback is true when extraction failed and an empty generic record
	// was substituted. Error holds the reason.
	Fallback bool   `json:"fallback,omitempty"`
	Error    string `json:"error,omitempty"`
}

// None is the record for intents without a payload.
func None() Record { return Record{Kind: KindNone} }

// FallbackRecord is the empty generic record substituted on failure.
func FallbackRecord(reason string) Record {
	return Record{Kind: KindGeneric, Generic: &Generic{}, Fallback: true, Error: reason}
}

// Empty reports whether the record carries no extracted data.
func (r Record) Empty() bool {
	return r.Kind == KindNone || r.Fallback
}
