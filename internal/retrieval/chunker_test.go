package retrieval

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextIsOneChunk(t *testing.T) {
	s := NewSplitter(DefaultChunkTokens, DefaultOverlapTokens)
	assert.Equal(t, 2000, s.ChunkSize)
	assert.Equal(t, 200, s.Overlap)

	got := s.Split("# Title\n\nOne short paragraph.")
	assert.Equal(t, []string{"# Title\n\nOne short paragraph."}, got)
	assert.Nil(t, s.Split("  \n "))
}

func TestSplitter_KeepsSectionsTogether(t *testing.T) {
	s := NewSplitter(50, 5) // 200 chars, 20 overlap
	var b strings.Builder
	b.WriteString("# Policy")
	for i := 1; i <= 4; i++ {
		fmt.Fprintf(&b, "\n## Section %d\n%s", i, strings.Repeat(fmt.Sprintf("rule%d ", i), 20))
	}

	chunks := s.Split(b.String())
	require.GreaterOrEqual(t, len(chunks), 4)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), s.ChunkSize)
	}
	headed := 0
	for _, c := range chunks {
		if strings.HasPrefix(c, "## Section") {
			headed++
		}
	}
	assert.GreaterOrEqual(t, headed, 3, "sections start their own chunk")
}

func TestSplitter_OverlapsNeighbours(t *testing.T) {
	s := NewSplitter(50, 5)
	words := make([]string, 300)
	for i := range words {
		words[i] = fmt.Sprintf("w%04d", i)
	}
	chunks := s.Split(strings.Join(words, " "))
	require.Greater(t, len(chunks), 2)

	for i := 0; i < len(chunks)-1; i++ {
		assert.LessOrEqual(t, len(chunks[i]), s.ChunkSize)
		fields := strings.Fields(chunks[i])
		last := fields[len(fields)-1]
		assert.Contains(t, chunks[i+1], last, "chunk %d tail carried into chunk %d", i, i+1)
	}
	assert.Contains(t, chunks[len(chunks)-1], "w0299")
}

func TestSplitter_HardSplitsUnbrokenText(t *testing.T) {
	s := NewSplitter(50, 5)
	chunks := s.Split(strings.Repeat("x", 450))
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), s.ChunkSize)
	}
}

func TestChunkDocuments(t *testing.T) {
	docs := []Document{
		{Text: "short", Metadata: Metadata{DocumentID: "A"}},
		{Text: strings.Repeat("word ", 200), Metadata: Metadata{DocumentID: "B", DocumentType: DocTypeFAQ}},
	}
	chunks := ChunkDocuments(docs, NewSplitter(50, 5))
	require.Greater(t, len(chunks), 2)
	assert.Equal(t, "A#000", chunks[0].ID)
	assert.Equal(t, 1, chunks[0].Total)
	assert.Equal(t, "B#000", chunks[1].ID)
	assert.Equal(t, DocTypeFAQ, chunks[1].Metadata.DocumentType)
	assert.Equal(t, len(chunks)-1, chunks[1].Total)
}
