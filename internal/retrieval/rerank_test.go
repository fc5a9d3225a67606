package retrieval

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushiva/omni-channel-ai-servicing/internal/intent"
)

func cand(id string, score float64, docType string, intents ...intent.Intent) Candidate {
	return Candidate{
		Chunk: &Chunk{ID: id, Text: "text of " + id, Metadata: Metadata{
			DocumentID: strings.TrimSuffix(id, "#000"), Title: id, DocumentType: docType, Intents: intents,
		}},
		Score: score,
	}
}

func ids(rs []Result) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Chunk.ID
	}
	return out
}

func TestRerank_NeverExceedsTopK(t *testing.T) {
	var cands []Candidate
	for i := 0; i < 10; i++ {
		cands = append(cands, cand(fmt.Sprintf("c%02d#000", i), 0.5+float64(i)/100, DocTypeFAQ))
	}
	now := time.Now()
	for k := 0; k <= 12; k++ {
		got := Rerank(cands, intent.AddressUpdate, k, now)
		assert.LessOrEqual(t, len(got), k)
		if k <= len(cands) {
			assert.Len(t, got, k)
		}
	}
}

func TestRerank_IntentMatchWinsOnEqualSimilarity(t *testing.T) {
	cands := []Candidate{
		cand("other#000", 0.7, DocTypeFAQ, intent.Dispute),
		cand("match#000", 0.7, DocTypeFAQ, intent.AddressUpdate),
	}
	got := Rerank(cands, intent.AddressUpdate, 3, time.Now())
	assert.Equal(t, []string{"match#000", "other#000"}, ids(got))
	assert.InDelta(t, 0.8, got[0].Score, 1e-9)
	assert.InDelta(t, 0.7, got[0].Similarity, 1e-9)
}

func TestRerank_PolicyBeatsFAQ(t *testing.T) {
	cands := []Candidate{
		cand("faq#000", 0.7, DocTypeFAQ),
		cand("policy#000", 0.7, DocTypePolicy),
	}
	got := Rerank(cands, intent.Fallback, 3, time.Now())
	assert.Equal(t, []string{"policy#000", "faq#000"}, ids(got))
}

func TestRerank_BoostCanOvertakeHigherSimilarity(t *testing.T) {
	cands := []Candidate{
		cand("close#000", 0.75, DocTypeFAQ),
		cand("tagged#000", 0.70, DocTypePolicy, intent.Dispute),
	}
	got := Rerank(cands, intent.Dispute, 3, time.Now())
	assert.Equal(t, []string{"tagged#000", "close#000"}, ids(got))
}

func TestRerank_DeterministicOnFullTie(t *testing.T) {
	cands := []Candidate{
		cand("b#000", 0.6, DocTypeFAQ),
		cand("a#000", 0.6, DocTypeFAQ),
		cand("c#000", 0.6, DocTypeFAQ),
	}
	got := Rerank(cands, intent.Fallback, 3, time.Now())
	assert.Equal(t, []string{"a#000", "b#000", "c#000"}, ids(got))
}

func TestFreshness(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	assert.InDelta(t, MaxFreshBoost, freshness(now, now), 1e-12)
	assert.InDelta(t, MaxFreshBoost/2, freshness(now.Add(-90*day), now), 1e-12)
	assert.Zero(t, freshness(now.Add(-180*day), now))
	assert.Zero(t, freshness(now.Add(-400*day), now))
	assert.Zero(t, freshness(time.Time{}, now))
	assert.Zero(t, freshness(now.Add(day), now))

	fresh := cand("fresh#000", 0.6, DocTypeFAQ)
	fresh.Chunk.Metadata.UpdatedAt = now.Add(-day)
	stale := cand("stale#000", 0.6, DocTypeFAQ)
	stale.Chunk.Metadata.UpdatedAt = now.Add(-300 * day)
	got := Rerank([]Candidate{stale, fresh}, intent.Fallback, 2, now)
	assert.Equal(t, []string{"fresh#000", "stale#000"}, ids(got))
}

func TestFormat(t *testing.T) {
	results := Rerank([]Candidate{
		cand("POL-1#000", 0.9, DocTypePolicy),
		cand("FAQ-2#000", 0.8, DocTypeFAQ),
	}, intent.Fallback, 3, time.Now())

	text, sources := Format(results, 0)
	require.Len(t, sources, 2)
	assert.True(t, strings.HasPrefix(text, ContextHeader+"\n\n[Document 1 - POL-1: POL-1#000]\ntext of POL-1#000\n"))
	assert.Contains(t, text, "\n---\n\n[Document 2 - FAQ-2: FAQ-2#000]\n")
	assert.Equal(t, "POL-1", sources[0].DocumentID)
	assert.Equal(t, DocTypePolicy, sources[0].DocumentType)
	assert.Equal(t, "FAQ-2#000", sources[1].ChunkID)

	empty, none := Format(nil, 0)
	assert.Empty(t, empty)
	assert.Nil(t, none)
}

func TestFormat_RespectsMaxLength(t *testing.T) {
	long := cand("LONG#000", 0.9, DocTypePolicy)
	long.Chunk.Text = strings.Repeat("x", 1500)
	next := cand("NEXT#000", 0.8, DocTypePolicy)
	next.Chunk.Text = strings.Repeat("y", 800)
	results := Rerank([]Candidate{long, next}, intent.Fallback, 3, time.Now())

	text, sources := Format(results, DefaultMaxContextLen)
	require.Len(t, sources, 1)
	assert.NotContains(t, text, "yyy")

	assert.LessOrEqual(t, len(text), DefaultMaxContextLen)
}

func TestFormat_TruncatesOversizedFirstChunk(t *testing.T) {
	long := cand("LONG#000", 0.9, DocTypePolicy)
	long.Chunk.Text = strings.Repeat("x", 2000)
	next := cand("NEXT#000", 0.8, DocTypePolicy)
	results := Rerank([]Candidate{long, next}, intent.Fallback, 3, time.Now())

	text, sources := Format(results, DefaultMaxContextLen)
	require.Len(t, sources, 1)
	assert.Equal(t, "LONG#000", sources[0].ChunkID)
	assert.Len(t, text, DefaultMaxContextLen)
	assert.True(t, strings.HasPrefix(text, ContextHeader+"\n\n[Document 1 - LONG: LONG#000]\nxxx"))

	text, sources = Format(results, 100)
	require.Len(t, sources, 1)
	assert.Len(t, text, 100)

	text, sources = Format(results, 40)
	assert.Empty(t, text)
	assert.Empty(t, sources)
}

func TestFormat_TruncationKeepsRunesWhole(t *testing.T) {
	r := []Result{{Chunk: &Chunk{ID: "x", Text: strings.Repeat("\u00e9", 100)}, Score: 0.6}}
	text, sources := Format(r, 80)
	require.Len(t, sources, 1)
	assert.True(t, utf8.ValidString(text))
	assert.LessOrEqual(t, len(text), 80)
}

func TestFormat_DefaultsForMissingMetadata(t *testing.T) {
	r := []Result{{Chunk: &Chunk{ID: "x", Text: "body"}, Score: 0.6}}
	text, _ := Format(r, 0)
	assert.Contains(t, text, "[Document 1 - UNKNOWN: Untitled]")
}
