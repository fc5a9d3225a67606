package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/llm"
	svcotel "github.com/sushiva/omni-channel-ai-servicing/internal/otel"
	"github.com/sushiva/omni-channel-ai-servicing/internal/requestctx"
)

var tracer = svcotel.Tracer("github.com/sushiva/omni-channel-ai-servicing/internal/entity")

const maxSummaryLen = 200

var fieldDocs = map[Kind]string{
	KindAddress: `- street: street address with number
- city
- state: two-letter state code
- zip_code: 5-digit ZIP code
- address_type: mailing, billing or both`,
	KindDispute: `- transaction_id: transaction or reference number
- amount: numeric amount in dollars
- transaction_date: YYYY-MM-DD
- merchant: merchant or store name
- reason: brief reason for the dispute or nature of the fraud (required)
- is_fraud: true if the customer did not make the transaction`,
	KindStatement: `- statement_type: monthly, annual, tax or specific_period
- start_date: YYYY-MM-DD
- end_date: YYYY-MM-DD
- delivery_method: email, mail or online_portal`,
	KindPayment: `- payment_type: schedule, cancel, failed or pending (required)
- amount: numeric amount in dollars
- payment_date: YYYY-MM-DD
- payment_method: checking, savings or debit_card`,
	KindCard: `- card_last_four: last 4 digits of the card
- card_type: debit, credit or prepaid
- action: activate, replace, report_lost or report_stolen (required)
- reason: lost, stolen, damaged or expired`,
	KindGeneric: `- summary: one sentence summary of the request (required)
- key_details: list of short key details`,
}

// Extractor pulls a typed record out of customer text with one generation
// call per request.
type Extractor struct {
	provider llm.Provider
	model    string
	schemas  map[Kind]*gojsonschema.Schema
}

// NewExtractor compiles the embedded record schemas.
func NewExtractor(provider llm.Provider, model string) (*Extractor, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Extractor{provider: provider, model: model, schemas: schemas}, nil
}

// MustNewExtractor is like NewExtractor but panics on error.
func MustNewExtractor(provider llm.Provider, model string) *Extractor {
	e, err := NewExtractor(provider, model)
	if err != nil {
		panic(fmt.Sprintf("entity.NewExtractor: %v", err))
	}
	return e
}

// Extract returns the record for the intent. Intents without a payload
// return None without calling the backend. Invalid model output yields a
// fallback record and no error; only a failed generation call returns an
// error, alongside a fallback record the caller may use.
func (e *Extractor) Extract(ctx context.Context, in intent.Intent, text string) (Record, error) {
	kind := KindFor(in)
	if kind == KindNone {
		return None(), nil
	}

	ctx, span := tracer.Start(ctx, "entity.extract")
	defer span.End()
	span.SetAttributes(svcotel.Intent.String(string(in)), attribute.String("entity.kind", string(kind)))

	resp, err := e.provider.Generate(ctx, &llm.Request{
		Model: e.model,
		Messages: []llm.Message{
			llm.System(extractionPrompt(kind)),
			llm.User(text),
		},
		Temperature: 0,
		MaxTokens:   256,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction call failed")
		return FallbackRecord("extraction call failed"), fmt.Errorf("extracting entities: %w", err)
	}

	rec := e.FromOutput(ctx, in, resp.Content, text)
	span.SetAttributes(attribute.Bool("entity.fallback", rec.Fallback))
	return rec, nil
}

// FromOutput parses, normalises and validates raw model output for an
// intent. It never fails; problems produce a fallback record.
func (e *Extractor) FromOutput(ctx context.Context, in intent.Intent, raw, text string) Record {
	kind := KindFor(in)
	if kind == KindNone {
		return None()
	}

	rec, err := e.decode(kind, in, raw, text)
	if err != nil {
		log.Warn().
			Str("correlation_id", requestctx.CorrelationID(ctx)).
			Str("intent", string(in)).
			Str("kind", string(kind)).
			Err(err).
			Msg("entity_validation_failed")
		return FallbackRecord(err.Error())
	}
	return rec
}

func (e *Extractor) decode(kind Kind, in intent.Intent, raw, text string) (Record, error) {
	fields, err := ParseFields(raw)
	if err != nil {
		if kind != KindGeneric {
			return Record{}, err
		}
		fields = map[string]any{}
	}

	norm, err := normalize(kind, fields)
	if err != nil {
		return Record{}, err
	}
	switch kind {
	case KindDispute:
		if in == intent.FraudReport {
			norm["is_fraud"] = true
		}
	case KindGeneric:
		if _, ok := norm["summary"]; !ok {
			norm["summary"] = summarize(text)
		}
	}

	if err := validateFields(e.schemas[kind], norm); err != nil {
		return Record{}, err
	}

	data, err := json.Marshal(norm)
	if err != nil {
		return Record{}, fmt.Errorf("encoding fields: %w", err)
	}
	rec := Record{Kind: kind}
	var target any
	switch kind {
	case KindAddress:
		rec.Address = &Address{}
		target = rec.Address
	case KindDispute:
		rec.Dispute = &Dispute{}
		target = rec.Dispute
	case KindStatement:
		rec.Statement = &Statement{}
		target = rec.Statement
	case KindPayment:
		rec.Payment = &Payment{}
		target = rec.Payment
	case KindCard:
		rec.Card = &Card{}
		target = rec.Card
	case KindGeneric:
		rec.Generic = &Generic{}
		target = rec.Generic
	}
	if err := json.Unmarshal(data, target); err != nil {
		return Record{}, fmt.Errorf("decoding %s record: %w", kind, err)
	}
	return rec, nil
}

func summarize(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if r := []rune(s); len(r) > maxSummaryLen {
		s = string(r[:maxSummaryLen])
	}
	if s == "" {
		s = "customer request"
	}
	return s
}

func extractionPrompt(kind Kind) string {
	var b strings.Builder
	b.WriteString("You extract structured fields from bank customer messages.\n")
	b.WriteString("Only extract what is explicitly stated; never invent values. Leave out missing fields.\n")
	b.WriteString("Reply with a single JSON object and nothing else. Fields:\n")
	b.WriteString(fieldDocs[kind])
	b.WriteString("\n")
	return b.String()
}
