package retrieval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
	"github.com/sushiva/omni-channel-ai-servicing/internal/testutil"
)

func testChunk(id, text, docType string, intents ...intent.Intent) Chunk {
	return Chunk{
		ID:        id,
		Text:      text,
		Embedding: testutil.HashVector(text),
		Metadata: Metadata{
			DocumentID:   id[:len(id)-4],
			DocumentType: docType,
			Title:        "Title of " + id,
			Intents:      intents,
		},
	}
}

func testIndex(t *testing.T) *Index {
	t.Helper()
	ix, err := NewIndex([]Chunk{
		testChunk("addr-policy#000", "update mailing address change identity verification required", DocTypePolicy, intent.AddressUpdate),
		testChunk("addr-faq#000", "how do i update my mailing address online", DocTypeFAQ, intent.AddressUpdate),
		testChunk("addr-faq#001", "mailing address update takes two business days", DocTypeFAQ, intent.AddressUpdate),
		testChunk("addr-policy#001", "billing address and mailing address may differ", DocTypePolicy, intent.AddressUpdate),
		testChunk("dispute-policy#000", "dispute a charge provisional credit investigation", DocTypePolicy, intent.Dispute),
		testChunk("fraud-policy#000", "report fraud freeze stolen card immediately", DocTypePolicy, intent.FraudReport),
		testChunk("hours-faq#000", "branch hours holidays weekend opening times", DocTypeFAQ),
	}, "hash")
	require.NoError(t, err)
	return ix
}

const addressPolicyDoc = `---
id: POL-ADDR-001
title: Address Change Policy
intents: [ADDRESS_UPDATE]
version: "2.1"
updated_at: 2024-05-01
---
# Address Change Policy

## Verification

Customers must verify their identity before an address change.

## Confirmation

A confirmation letter is sent to the previous address.
`

const disputeFAQDoc = `# Dispute FAQ

## How long does a dispute take?

Most disputes are resolved within 10 business days.
`

const metadataJSON = `{
  "documents": [
    {
      "id": "FAQ-DISPUTE-001",
      "file_path": "knowledge_base/faqs/disputes.md",
      "document_type": "faq",
      "title": "Disputes FAQ",
      "intents": ["DISPUTE", "FRAUD_REPORT", "NOT_AN_INTENT"],
      "keywords": ["dispute", "chargeback"],
      "compliance_tags": ["REG_E"]
    }
  ]
}`

// writeKnowledgeBase lays out a two-document knowledge base under dir.
func writeKnowledgeBase(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policies"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "faqs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies", "address_change.md"), []byte(addressPolicyDoc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faqs", "disputes.md"), []byte(disputeFAQDoc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte(metadataJSON), 0o600))
}
