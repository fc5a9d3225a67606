// Package retrieval grounds generated replies in the policy knowledge base:
// it embeds the query, searches an immutable in-memory index, reranks the
// candidates with metadata signals and formats them for the prompt.
package retrieval

import (
	"time"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

// Document types recognised by the reranker.
const (
	DocTypePolicy = "policy"
	DocTypeFAQ    = "faq"
)

// Metadata describes the source document of a chunk.
type Metadata struct {
	DocumentID     string          `json:"document_id" yaml:"id"`
	DocumentType   string          `json:"document_type" yaml:"document_type"`
	Title          string          `json:"title" yaml:"title"`
	Intents        []intent.Intent `json:"intents,omitempty" yaml:"-"`
	Keywords       []string        `json:"keywords,omitempty" yaml:"keywords"`
	Version        string          `json:"version,omitempty" yaml:"version"`
	ComplianceTags []string        `json:"compliance_tags,omitempty" yaml:"compliance_tags"`
	UpdatedAt      time.Time       `json:"updated_at,omitempty" yaml:"-"`
	Source         string          `json:"source" yaml:"-"`
}

// HasIntent reports whether the chunk is tagged with in.
func (m *Metadata) HasIntent(in intent.Intent) bool {
	for _, i := range m.Intents {
		if i == in {
			return true
		}
	}
	return false
}

// Chunk is an immutable unit of the knowledge base.
type Chunk struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Index     int       `json:"chunk_index"`
	Total     int       `json:"total_chunks"`
	Embedding []float32 `json:"-"`
	Metadata  Metadata  `json:"metadata"`
}

// Source is the citation record for one chunk used as grounding.
type Source struct {
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title"`
	DocumentType string  `json:"document_type"`
	ChunkID      string  `json:"chunk_id"`
	Score        float64 `json:"score"`
	Path         string  `json:"source,omitempty"`
}
