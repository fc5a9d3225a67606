package retrieval

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	writeKnowledgeBase(t, dir)

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	faq, policy := docs[0], docs[1]

	assert.Equal(t, "FAQ-DISPUTE-001", faq.Metadata.DocumentID)
	assert.Equal(t, DocTypeFAQ, faq.Metadata.DocumentType)
	assert.Equal(t, "Disputes FAQ", faq.Metadata.Title)
	assert.Equal(t, []intent.Intent{intent.Dispute, intent.FraudReport}, faq.Metadata.Intents)
	assert.Equal(t, []string{"REG_E"}, faq.Metadata.ComplianceTags)
	assert.True(t, faq.Metadata.UpdatedAt.IsZero())

	assert.Equal(t, "POL-ADDR-001", policy.Metadata.DocumentID)
	assert.Equal(t, DocTypePolicy, policy.Metadata.DocumentType)
	assert.Equal(t, "Address Change Policy", policy.Metadata.Title)
	assert.Equal(t, []intent.Intent{intent.AddressUpdate}, policy.Metadata.Intents)
	assert.Equal(t, "2.1", policy.Metadata.Version)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), policy.Metadata.UpdatedAt)
	assert.Equal(t, filepath.Join(dir, "policies", "address_change.md"), policy.Metadata.Source)
	assert.NotContains(t, policy.Text, "intents:")
	assert.Contains(t, policy.Text, "## Verification")
}

func TestLoadDocuments_DerivedMetadata(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "faqs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faqs", "card_help.md"), []byte("# Card Help\n\nCall us."), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faqs", "notes.txt"), []byte("ignored"), 0o600))

	docs, err := LoadDocuments(dir)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "card_help", docs[0].Metadata.DocumentID)
	assert.Equal(t, "Card Help", docs[0].Metadata.Title)
	assert.Empty(t, docs[0].Metadata.Intents)
}

func TestLoadDocuments_Errors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.json"), []byte("{not json"), 0o600))
	_, err := LoadDocuments(dir)
	assert.Error(t, err)

	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "policies"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies", "bad.md"), []byte("---\nintents: [a\n---\nbody"), 0o600))
	_, err = LoadDocuments(dir)
	assert.Error(t, err)
}
