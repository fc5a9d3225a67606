package retrieval

import (
	"fmt"
	"strings"
)

// Chunking defaults. Token counts are estimated as characters / CharsPerToken.
const (
	DefaultChunkTokens   = 500
	DefaultOverlapTokens = 50
	CharsPerToken        = 4
)

// DefaultSeparators split on markdown section boundaries first, then
// paragraphs, lines and words.
var DefaultSeparators = []string{"\n## ", "\n### ", "\n---", "\n\n", "\n", " "}

// Splitter is a recursive separator text splitter. Each piece keeps the
// separator that preceded it, so headings stay with their sections.
type Splitter struct {
	ChunkSize  int // characters
	Overlap    int // characters
	Separators []string
}

// NewSplitter sizes a splitter in estimated tokens.
func NewSplitter(chunkTokens, overlapTokens int) *Splitter {
	if chunkTokens <= 0 {
		chunkTokens = DefaultChunkTokens
	}
	if overlapTokens < 0 || overlapTokens >= chunkTokens {
		overlapTokens = DefaultOverlapTokens
	}
	return &Splitter{
		ChunkSize:  chunkTokens * CharsPerToken,
		Overlap:    overlapTokens * CharsPerToken,
		Separators: DefaultSeparators,
	}
}

// Split cuts text into chunks no longer than ChunkSize, neighbouring
// chunks sharing up to Overlap characters.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, seps []string) []string {
	sep := ""
	var rest []string
	for i, c := range seps {
		if strings.Contains(text, c) {
			sep, rest = c, seps[i+1:]
			break
		}
	}
	if sep == "" {
		return s.hardSplit(text)
	}

	var out, good []string
	for _, p := range splitKeep(text, sep) {
		if len(p) <= s.ChunkSize {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, s.hardSplit(p)...)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge packs pieces into chunks, carrying trailing pieces of up to Overlap
// characters into the next chunk.
func (s *Splitter) merge(pieces []string) []string {
	var out, cur []string
	total := 0
	flush := func() {
		if doc := strings.TrimSpace(strings.Join(cur, "")); doc != "" {
			out = append(out, doc)
		}
	}
	for _, p := range pieces {
		if total+len(p) > s.ChunkSize && len(cur) > 0 {
			flush()
			for len(cur) > 0 && (total > s.Overlap || total+len(p) > s.ChunkSize) {
				total -= len(cur[0])
				cur = cur[1:]
			}
		}
		cur = append(cur, p)
		total += len(p)
	}
	flush()
	return out
}

func (s *Splitter) hardSplit(text string) []string {
	r := []rune(text)
	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}
	var out []string
	for start := 0; start < len(r); start += step {
		end := start + s.ChunkSize
		if end > len(r) {
			end = len(r)
		}
		if doc := strings.TrimSpace(string(r[start:end])); doc != "" {
			out = append(out, doc)
		}
		if end == len(r) {
			break
		}
	}
	return out
}

func splitKeep(text, sep string) []string {
	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ChunkDocuments splits every document and returns chunks without
// embeddings. Chunk ids are "<document id>#<index>".
func ChunkDocuments(docs []Document, s *Splitter) []Chunk {
	var chunks []Chunk
	for _, d := range docs {
		parts := s.Split(d.Text)
		for i, p := range parts {
			chunks = append(chunks, Chunk{
				ID:       fmt.Sprintf("%s#%03d", d.Metadata.DocumentID, i),
				Text:     p,
				Index:    i,
				Total:    len(parts),
				Metadata: d.Metadata,
			})
		}
	}
	return chunks
}
